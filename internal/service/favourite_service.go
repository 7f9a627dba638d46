package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type FavouriteService struct {
	users    repository.UserRepository
	products repository.ProductRepository
}

func NewFavouriteService(users repository.UserRepository, products repository.ProductRepository) *FavouriteService {
	return &FavouriteService{users: users, products: products}
}

func (s *FavouriteService) AddFavourite(ctx context.Context, p Principal, productID primitive.ObjectID) error {
	_, err := s.products.GetProduct(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return apperr.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load product: %w", err)
	}

	return s.mapErr(s.users.AddFavourite(ctx, p.UserID, productID))
}

// RemoveFavourite works for products that were deleted from the catalog.
func (s *FavouriteService) RemoveFavourite(ctx context.Context, p Principal, productID primitive.ObjectID) error {
	return s.mapErr(s.users.RemoveFavourite(ctx, p.UserID, productID))
}

func (s *FavouriteService) ListFavourites(ctx context.Context, p Principal) ([]*domain.Product, error) {
	user, err := loadUser(ctx, s.users, p.UserID)
	if err != nil {
		return nil, err
	}
	return productsInOrder(ctx, s.products, user.FavouriteProducts)
}

func (s *FavouriteService) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrUserNotFound):
		return apperr.ErrNotAuthenticated
	case errors.Is(err, repository.ErrAlreadyFavourite):
		return apperr.ErrAlreadyFavourite
	case errors.Is(err, repository.ErrNotFavourite):
		return apperr.ErrNotFavourite
	default:
		return fmt.Errorf("failed to update favourites: %w", err)
	}
}

func loadUser(ctx context.Context, users repository.UserRepository, userID primitive.ObjectID) (*domain.User, error) {
	user, err := users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperr.ErrNotAuthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// productsInOrder resolves ids in list order and skips products that no
// longer exist. The stored list is not rewritten.
func productsInOrder(ctx context.Context, products repository.ProductRepository, ids []primitive.ObjectID) ([]*domain.Product, error) {
	out := make([]*domain.Product, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	found, err := products.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
