package world

import (
	"math"
	"math/rand"
)

// LocationKind categorizes map areas.
type LocationKind string

const (
	KindBuilding LocationKind = "building"
	KindOutdoor  LocationKind = "outdoor"
	KindPath     LocationKind = "path"
)

// Location is a static rectangular area of the town map, supplied once at
// startup and read-only thereafter.
type Location struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	X           float64      `json:"x" yaml:"x"`
	Y           float64      `json:"y" yaml:"y"`
	Width       float64      `json:"width" yaml:"width"`
	Height      float64      `json:"height" yaml:"height"`
	Kind        LocationKind `json:"kind" yaml:"kind"`
}

// Position is a point in world coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance to another position.
func (p Position) DistanceTo(q Position) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Contains reports whether a position falls inside the location rectangle.
func (l Location) Contains(p Position) bool {
	return p.X >= l.X && p.X <= l.X+l.Width &&
		p.Y >= l.Y && p.Y <= l.Y+l.Height
}

// Center returns the middle of the location rectangle.
func (l Location) Center() Position {
	return Position{X: l.X + l.Width/2, Y: l.Y + l.Height/2}
}

// FindLocation looks a location up by name or id.
func FindLocation(locations []Location, name string) *Location {
	for i := range locations {
		if locations[i].Name == name || locations[i].ID == name {
			return &locations[i]
		}
	}
	return nil
}

// LocationAt returns the location containing the position, if any.
func LocationAt(locations []Location, p Position) *Location {
	for i := range locations {
		if locations[i].Contains(p) {
			return &locations[i]
		}
	}
	return nil
}

// MoveToward advances a position toward a target in a straight line by at
// most step units, snapping onto the target when within reach. Agents walk
// directly to destinations; there is no pathfinding.
func MoveToward(current, target Position, step float64) Position {
	dx := target.X - current.X
	dy := target.Y - current.Y
	dist := math.Sqrt(dx*dx + dy*dy)
	if dist < step {
		return target
	}
	return Position{
		X: current.X + (dx/dist)*step,
		Y: current.Y + (dy/dist)*step,
	}
}

// AtLocation reports whether a position is within threshold of the
// location's center.
func AtLocation(p Position, l Location, threshold float64) bool {
	return p.DistanceTo(l.Center()) < threshold
}

// RandomPositionIn picks a uniformly random point inside the location.
func RandomPositionIn(l Location, rng *rand.Rand) Position {
	return Position{
		X: l.X + rng.Float64()*l.Width,
		Y: l.Y + rng.Float64()*l.Height,
	}
}
