package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ProductCache holds read-mostly product records for catalog reads.
// The cart engine never reads through it.
type ProductCache interface {
	Get(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	Set(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

var ErrCacheMiss = errors.New("cache miss")
