package http

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CartService interface {
	GetCart(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error)
	Reconcile(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, cart.Report, error)
	AddLine(ctx context.Context, userID, productID primitive.ObjectID, qty int) (*domain.Cart, error)
	RemoveLine(ctx context.Context, userID, productID primitive.ObjectID) (*domain.Cart, error)
	SetQuantity(ctx context.Context, userID, productID primitive.ObjectID, qty int) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID primitive.ObjectID) (*domain.Cart, error)
}

type CartHandler struct {
	carts   CartService
	log     *logger.Logger
	maxBody int64
}

func NewCartHandler(carts CartService, log *logger.Logger, maxBody int64) *CartHandler {
	return &CartHandler{carts: carts, log: log, maxBody: maxBody}
}

type QuantityRequestDTO struct {
	Quantity *int `json:"qty"`
}

type ReconcileReportDTO struct {
	Dropped   int  `json:"dropped"`
	Clamped   int  `json:"clamped"`
	Refreshed int  `json:"refreshed"`
	Changed   bool `json:"changed"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	c, err := h.carts.GetCart(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{"cart": c})
}

func (h *CartHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	c, report, err := h.carts.Reconcile(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{
		"cart": c,
		"report": ReconcileReportDTO{
			Dropped:   report.Dropped,
			Clamped:   report.Clamped,
			Refreshed: report.Refreshed,
			Changed:   report.Changed(),
		},
	})
}

// AddLine adds one unit when the body carries no qty.
func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	productID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	var req QuantityRequestDTO
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	c, err := h.carts.AddLine(r.Context(), p.UserID, productID, qty)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{
		"message": "product is added to cart successfully",
		"cart":    c,
	})
}

func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	productID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	c, err := h.carts.RemoveLine(r.Context(), p.UserID, productID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{
		"message": "product is deleted from cart successfully",
		"cart":    c,
	})
}

func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	productID, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	var req QuantityRequestDTO
	if err := decodeJSON(w, r, h.maxBody, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}
	if req.Quantity == nil {
		respondError(w, r, h.log, apperr.ErrInvalidRequest.WithMessage("qty is required"))
		return
	}

	c, err := h.carts.SetQuantity(r.Context(), p.UserID, productID, *req.Quantity)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{
		"message": "product quantity in cart updated successfully",
		"cart":    c,
	})
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	c, err := h.carts.ClearCart(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusOK, envelope{
		"message": "cart is cleared successfully",
		"cart":    c,
	})
}

func (h *CartHandler) principal(w http.ResponseWriter, r *http.Request) (service.Principal, bool) {
	return requirePrincipal(w, r, h.log)
}

func requirePrincipal(w http.ResponseWriter, r *http.Request, log *logger.Logger) (service.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, r, log, apperr.ErrNotAuthenticated)
	}
	return p, ok
}
