package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/singleflight"
)

type CatalogService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	cache      cache.ProductCache
	log        *logger.Logger
	sfg        singleflight.Group // collapses concurrent misses for one product
}

func NewCatalogService(products repository.ProductRepository, categories repository.CategoryRepository, cache cache.ProductCache, log *logger.Logger) *CatalogService {
	return &CatalogService{
		products:   products,
		categories: categories,
		cache:      cache,
		log:        log,
	}
}

// GetProduct serves product pages. Cart and checkout read the repository
// directly and never see cached stock.
func (s *CatalogService) GetProduct(ctx context.Context, id primitive.ObjectID) (*domain.Product, error) {
	v, err, _ := s.sfg.Do(id.Hex(), func() (interface{}, error) {
		product, err := s.cache.Get(ctx, id)
		if err == nil {
			return product, nil
		}

		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Ctx(ctx).WithError(err).Warn("product cache get failed")
		}

		product, errGet := s.products.GetProduct(ctx, id)
		if errors.Is(errGet, repository.ErrProductNotFound) {
			return nil, apperr.ErrProductNotFound
		}
		if errGet != nil {
			return nil, fmt.Errorf("failed to load product: %w", errGet)
		}

		go func() {
			setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if errSet := s.cache.Set(setCtx, product); errSet != nil {
				s.log.WithError(errSet).Warn("product cache set failed")
			}
		}()

		return product, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Product), nil
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}
