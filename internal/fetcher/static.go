package fetcher

import "context"

// Static always reports the same price. It backs the simulate-alert command.
type Static struct {
	Price float64
}

// FetchPrice returns the configured price.
func (s Static) FetchPrice(ctx context.Context) (float64, error) {
	return s.Price, nil
}

var _ PriceSource = Static{}
