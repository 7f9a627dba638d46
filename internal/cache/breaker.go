package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BreakerCache stops calling a failing cache backend for a while. Misses
// are not failures.
type BreakerCache struct {
	inner   ProductCache
	breaker *circuitbreaker.Breaker
}

func NewBreakerCache(inner ProductCache, settings circuitbreaker.Settings) *BreakerCache {
	settings.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrCacheMiss)
	}
	return &BreakerCache{
		inner:   inner,
		breaker: circuitbreaker.New(settings),
	}
}

func (b *BreakerCache) Get(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	return circuitbreaker.Execute(b.breaker, func() (*domain.Product, error) {
		return b.inner.Get(ctx, id)
	})
}

func (b *BreakerCache) Set(ctx context.Context, product *domain.Product) error {
	_, err := circuitbreaker.Execute(b.breaker, func() (struct{}, error) {
		return struct{}{}, b.inner.Set(ctx, product)
	})
	return err
}

func (b *BreakerCache) Delete(ctx context.Context, id primitive.ObjectID) error {
	_, err := circuitbreaker.Execute(b.breaker, func() (struct{}, error) {
		return struct{}{}, b.inner.Delete(ctx, id)
	})
	return err
}

// State names the breaker state: closed, half-open or open.
func (b *BreakerCache) State() string {
	return b.breaker.State().String()
}
