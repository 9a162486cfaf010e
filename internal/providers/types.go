package providers

import (
	"context"

	"github.com/ggonzalez94/safepilot/internal/model"
)

type Provider interface {
	Info() model.ProviderInfo
}

// PriceProvider quotes the native asset and the reference asset in USD.
// Implementations return an error for any response they cannot fully trust;
// a partially populated Price is never returned.
type PriceProvider interface {
	Provider
	Prices(ctx context.Context) (model.Price, error)
}

// PoolProvider lists market pools from an aggregator.
type PoolProvider interface {
	Provider
	TopPools(ctx context.Context) ([]model.Pool, error)
}
