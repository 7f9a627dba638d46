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

type OrderService interface {
	PlaceOrder(ctx context.Context, userID primitive.ObjectID, address domain.ShippingAddress, paymentMethod string) (*domain.Order, error)
	ListMine(ctx context.Context, userID primitive.ObjectID) ([]*domain.Order, error)
	ListAll(ctx context.Context) ([]*domain.Order, error)
	GetOrder(ctx context.Context, p service.Principal, id primitive.ObjectID) (*domain.Order, error)
	MarkPaid(ctx context.Context, p service.Principal, id primitive.ObjectID, result domain.PaymentResult) (*domain.Order, error)
	MarkDelivered(ctx context.Context, id primitive.ObjectID) (*domain.Order, error)
	CountOrders(ctx context.Context) (int64, error)
	TotalSales(ctx context.Context) (float64, error)
	SalesByDate(ctx context.Context) ([]domain.DailySales, error)
}

type OrderHandler struct {
	orders   OrderService
	validate *validator.Validate
	log      *logger.Logger
	maxBody  int64
}

func NewOrderHandler(orders OrderService, log *logger.Logger, maxBody int64) *OrderHandler {
	return &OrderHandler{
		orders:   orders,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		maxBody:  maxBody,
	}
}

type PlaceOrderRequestDTO struct {
	ShippingAddress domain.ShippingAddress `json:"shippingAddress" validate:"required"`
	PaymentMethod   string                 `json:"paymentMethod" validate:"required"`
}

type PayerDTO struct {
	EmailAddress string `json:"email_address" validate:"omitempty,email"`
}

type PayOrderRequestDTO struct {
	ID         string   `json:"id" validate:"required"`
	Status     string   `json:"status" validate:"required"`
	UpdateTime string   `json:"update_time"`
	Payer      PayerDTO `json:"payer"`
}

func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r, h.log)
	if !ok {
		return
	}

	var req PlaceOrderRequestDTO
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), p.UserID, req.ShippingAddress, req.PaymentMethod)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	respondSuccess(w, http.StatusCreated, envelope{"order": order})
}

func (h *OrderHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListAll(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"orders": orders})
}

func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r, h.log)
	if !ok {
		return
	}

	orders, err := h.orders.ListMine(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"userOrders": orders})
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r, h.log)
	if !ok {
		return
	}
	id, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), p, id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"order": order})
}

func (h *OrderHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r, h.log)
	if !ok {
		return
	}
	id, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	var req PayOrderRequestDTO
	if err := h.decodeAndValidate(w, r, &req); err != nil {
		respondError(w, r, h.log, err)
		return
	}

	order, err := h.orders.MarkPaid(r.Context(), p, id, domain.PaymentResult{
		ID:           req.ID,
		Status:       req.Status,
		UpdateTime:   req.UpdateTime,
		EmailAddress: req.Payer.EmailAddress,
	})
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"order": order})
}

func (h *OrderHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id, err := objectIDParam(r, "id")
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}

	order, err := h.orders.MarkDelivered(r.Context(), id)
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"order": order})
}

func (h *OrderHandler) CountOrders(w http.ResponseWriter, r *http.Request) {
	n, err := h.orders.CountOrders(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"totalOrders": n})
}

func (h *OrderHandler) TotalSales(w http.ResponseWriter, r *http.Request) {
	total, err := h.orders.TotalSales(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"totalSales": total})
}

func (h *OrderHandler) SalesByDate(w http.ResponseWriter, r *http.Request) {
	sales, err := h.orders.SalesByDate(r.Context())
	if err != nil {
		respondError(w, r, h.log, err)
		return
	}
	respondSuccess(w, http.StatusOK, envelope{"salesByDate": sales})
}

func (h *OrderHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return decodeAndValidate(w, r, h.validate, h.maxBody, dst)
}
