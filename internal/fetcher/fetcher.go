package fetcher

import (
	"context"
	"errors"
	"fmt"
)

// ErrProviderUnavailable is matched by every ProviderError.
var ErrProviderUnavailable = errors.New("price provider unavailable")

// PriceSource supplies the current value of the tracked asset.
type PriceSource interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// ProviderError describes a failed provider call: transport, authorisation or a malformed payload.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets callers match any provider failure with errors.Is(err, ErrProviderUnavailable).
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderUnavailable
}
