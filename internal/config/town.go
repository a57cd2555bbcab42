package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nidhogg/smalltown/internal/world"
)

// Persona describes one town resident as declared in the town file.
type Persona struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Personality    string `yaml:"personality"`
	MorningRoutine string `yaml:"morning_routine"`
	Wallet         string `yaml:"wallet"`
	StartLocation  string `yaml:"start_location"`
}

// Town is the static world definition: the map and its residents.
type Town struct {
	Name      string           `yaml:"name"`
	Locations []world.Location `yaml:"locations"`
	Personas  []Persona        `yaml:"personas"`
}

// LoadTown reads and validates a YAML town file.
func LoadTown(path string) (*Town, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read town file %s: %w", path, err)
	}

	var town Town
	if err := yaml.Unmarshal(data, &town); err != nil {
		return nil, fmt.Errorf("parse town file %s: %w", path, err)
	}

	if len(town.Locations) == 0 {
		return nil, fmt.Errorf("town file %s: no locations", path)
	}
	seen := make(map[string]bool)
	for _, l := range town.Locations {
		if l.ID == "" {
			return nil, fmt.Errorf("town file %s: location %q missing id", path, l.Name)
		}
		if seen[l.ID] {
			return nil, fmt.Errorf("town file %s: duplicate location id %q", path, l.ID)
		}
		seen[l.ID] = true
	}
	for _, p := range town.Personas {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("town file %s: persona missing id or name", path)
		}
		if p.StartLocation != "" && world.FindLocation(town.Locations, p.StartLocation) == nil {
			return nil, fmt.Errorf("town file %s: persona %s start_location %q not found",
				path, p.ID, p.StartLocation)
		}
	}
	return &town, nil
}
