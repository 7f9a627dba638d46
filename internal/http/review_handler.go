package http

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReviewService interface {
	AddReview(ctx context.Context, p service.Principal, productID primitive.ObjectID, rating int, comment string) (*domain.Product, error)
	DeleteReview(ctx context.Context, p service.Principal, productID primitive.ObjectID) (*domain.Product, error)
	ListReviewed(ctx context.Context, p service.Principal) ([]*domain.Product, error)
}

type FavouriteService interface {
	AddFavourite(ctx context.Context, p service.Principal, productID primitive.ObjectID) error
	RemoveFavourite(ctx context.Context, p service.Principal, productID primitive.ObjectID) error
	ListFavourites(ctx context.Context, p service.Principal) ([]*domain.Product, error)
}

// ShopperHandler serves a user's reviews and favourites.
type ShopperHandler struct {
	reviews    ReviewService
	favourites FavouriteService
	validate   *validator.Validate
	log        *logger.Logger
	maxBody    int64
}

func NewShopperHandler(reviews ReviewService, favourites FavouriteService, log *logger.Logger, maxBody int64) *ShopperHandler {
	return &ShopperHandler{
		reviews:    reviews,
		favourites: favourites,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log,
		maxBody:    maxBody,
	}
}

type ReviewRequestDTO struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"required"`
}

func (h *ShopperHandler) AddReview(w http.ResponseWriter, r *http.Request) {
	p, productID, ok := h.principalAndProduct(w, r)
	if !ok {
		return
	}

	var req ReviewRequestDTO
	if err := decodeAndValidate(w, r, h.validate, h.maxBody, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	product, err := h.reviews.AddReview(r.Context(), p, productID, req.Rating, req.Comment)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{
		"message":    "review added",
		"rating":     product.Rating,
		"numReviews": product.NumReviews,
	})
}

func (h *ShopperHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	p, productID, ok := h.principalAndProduct(w, r)
	if !ok {
		return
	}

	product, err := h.reviews.DeleteReview(r.Context(), p, productID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{
		"message":    "review deleted successfully",
		"rating":     product.Rating,
		"numReviews": product.NumReviews,
	})
}

func (h *ShopperHandler) ListReviewed(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r, h.log)
	if !ok {
		return
	}

	products, err := h.reviews.ListReviewed(r.Context(), p)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"products": products})
}

func (h *ShopperHandler) AddFavourite(w http.ResponseWriter, r *http.Request) {
	p, productID, ok := h.principalAndProduct(w, r)
	if !ok {
		return
	}

	if err := h.favourites.AddFavourite(r.Context(), p, productID); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"message": "product is added to favourites successfully"})
}

func (h *ShopperHandler) RemoveFavourite(w http.ResponseWriter, r *http.Request) {
	p, productID, ok := h.principalAndProduct(w, r)
	if !ok {
		return
	}

	if err := h.favourites.RemoveFavourite(r.Context(), p, productID); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"message": "product is removed from favourites successfully"})
}

func (h *ShopperHandler) ListFavourites(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r, h.log)
	if !ok {
		return
	}

	products, err := h.favourites.ListFavourites(r.Context(), p)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"products": products})
}

func (h *ShopperHandler) principalAndProduct(w http.ResponseWriter, r *http.Request) (service.Principal, primitive.ObjectID, bool) {
	p, ok := requirePrincipal(w, r, h.log)
	if !ok {
		return p, primitive.NilObjectID, false
	}
	id, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return p, primitive.NilObjectID, false
	}
	return p, id, true
}
