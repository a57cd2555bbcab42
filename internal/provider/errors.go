package provider

import (
	"errors"
	"fmt"
)

// GenerationError wraps any network, timeout, or provider failure from a
// text-generation call. Callers recover with a component-specific fallback
// instead of propagating it to the simulation loop.
type GenerationError struct {
	ProviderID string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.ProviderID != "" {
		return fmt.Sprintf("generation failed (provider %s): %v", e.ProviderID, e.Err)
	}
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is (or wraps) a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
