package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	minRating = 1
	maxRating = 5
)

// ReviewService writes product reviews. The product document owns the
// reviews and the derived rating; the user's reviewedProducts list follows it.
type ReviewService struct {
	users    repository.UserRepository
	products repository.ProductRepository
	cache    cache.ProductCache
	log      *logger.Logger
}

func NewReviewService(users repository.UserRepository, products repository.ProductRepository, cache cache.ProductCache, log *logger.Logger) *ReviewService {
	return &ReviewService{
		users:    users,
		products: products,
		cache:    cache,
		log:      log,
	}
}

func (s *ReviewService) AddReview(ctx context.Context, p Principal, productID primitive.ObjectID, rating int, comment string) (*domain.Product, error) {
	if rating < minRating || rating > maxRating {
		return nil, apperr.ErrInvalidRequest.WithMessage(fmt.Sprintf("rating must be between %d and %d", minRating, maxRating))
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, apperr.ErrInvalidRequest.WithMessage("comment is required")
	}

	product, err := s.products.AddReview(ctx, productID, domain.Review{
		ID:        primitive.NewObjectID(),
		UserID:    p.UserID,
		Name:      p.Username,
		Rating:    float64(rating),
		Comment:   comment,
		CreatedAt: time.Now(),
	})
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		return nil, apperr.ErrProductNotFound
	case errors.Is(err, repository.ErrAlreadyReviewed):
		return nil, apperr.ErrAlreadyReviewed
	case err != nil:
		return nil, fmt.Errorf("failed to add review: %w", err)
	}
	s.evict(ctx, productID)

	if err := s.users.MarkReviewed(ctx, p.UserID, productID); err != nil {
		return nil, fmt.Errorf("failed to record reviewed product: %w", err)
	}

	s.log.Ctx(ctx).WithFields(logrus.Fields{
		"user_id":    p.UserID.Hex(),
		"product_id": productID.Hex(),
		"rating":     rating,
	}).Info("review added")
	return product, nil
}

func (s *ReviewService) DeleteReview(ctx context.Context, p Principal, productID primitive.ObjectID) (*domain.Product, error) {
	product, err := s.products.DeleteReview(ctx, productID, p.UserID)
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		return nil, apperr.ErrProductNotFound
	case errors.Is(err, repository.ErrReviewNotFound):
		return nil, apperr.ErrReviewNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to delete review: %w", err)
	}
	s.evict(ctx, productID)

	if err := s.users.UnmarkReviewed(ctx, p.UserID, productID); err != nil {
		return nil, fmt.Errorf("failed to forget reviewed product: %w", err)
	}
	return product, nil
}

// ListReviewed returns the products the caller reviewed that still exist.
func (s *ReviewService) ListReviewed(ctx context.Context, p Principal) ([]*domain.Product, error) {
	user, err := loadUser(ctx, s.users, p.UserID)
	if err != nil {
		return nil, err
	}
	return productsInOrder(ctx, s.products, user.ReviewedProducts)
}

// evict drops the cached product so the next read sees the new rating.
// A failure leaves a stale rating until the TTL runs out.
func (s *ReviewService) evict(ctx context.Context, productID primitive.ObjectID) {
	if err := s.cache.Delete(ctx, productID); err != nil {
		s.log.Ctx(ctx).WithError(err).WithField("product_id", productID.Hex()).Warn("product cache delete failed")
	}
}
