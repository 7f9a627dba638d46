package http

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CatalogService interface {
	GetProduct(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
}

type ProductHandler struct {
	catalog CatalogService
	log     *logger.Logger
}

func NewProductHandler(catalog CatalogService, log *logger.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, log: log}
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{"product": product})
}

func (h *ProductHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{"categories": categories})
}
