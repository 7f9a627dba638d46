package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderService struct {
	carts     *CartService
	products  repository.ProductRepository
	orders    repository.OrderRepository
	publisher events.Publisher
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewOrderService(
	carts *CartService,
	products repository.ProductRepository,
	orders repository.OrderRepository,
	publisher events.Publisher,
	log *logger.Logger,
	m *metrics.Metrics,
) *OrderService {
	return &OrderService{
		carts:     carts,
		products:  products,
		orders:    orders,
		publisher: publisher,
		log:       log,
		metrics:   m,
		now:       time.Now,
	}
}

// PlaceOrder turns the caller's cart into an order. Prices and stock come
// from the catalog at this moment, not from the cart snapshots. The cart is
// emptied later by the order-placed consumer.
func (s *OrderService) PlaceOrder(ctx context.Context, userID primitive.ObjectID, address domain.ShippingAddress, paymentMethod string) (*domain.Order, error) {
	c, _, err := s.carts.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Lines) == 0 {
		return nil, apperr.ErrEmptyCart
	}

	products, err := s.products.GetProducts(ctx, c.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("failed to load order products: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(c.Lines))
	amounts := make([]domain.LineAmount, 0, len(c.Lines))
	for _, line := range c.Lines {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, apperr.ErrProductNotFound
		}
		if line.Quantity > p.Quantity {
			return nil, apperr.ErrStockExceeded.WithMessage(fmt.Sprintf("only %d of %s available", p.Quantity, p.Name))
		}
		items = append(items, domain.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			Price:     p.Price,
			Quantity:  line.Quantity,
		})
		amounts = append(amounts, domain.LineAmount{Price: p.Price, Quantity: line.Quantity})
	}

	order := &domain.Order{
		UserID:          userID,
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
	}
	order.SetTotals(domain.ComputeTotals(amounts))

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.metrics.OrderPlaced()

	entry := s.log.Ctx(ctx).WithFields(logrus.Fields{
		"order_id": order.ID.Hex(),
		"user_id":  userID.Hex(),
		"total":    order.TotalPrice,
	})
	if err := s.publisher.PublishOrderPlaced(ctx, events.NewOrderPlaced(order)); err != nil {
		s.metrics.EventFailed(events.TopicOrderPlaced)
		entry.WithError(err).Error("failed to publish order-placed event")
	} else {
		entry.Info("order placed")
	}

	return order, nil
}

func (s *OrderService) ListMine(ctx context.Context, userID primitive.ObjectID) ([]*domain.Order, error) {
	orders, err := s.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) ListAll(ctx context.Context) ([]*domain.Order, error) {
	orders, err := s.orders.ListOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrder hides orders of other users behind OrderNotFound.
func (s *OrderService) GetOrder(ctx context.Context, p Principal, id primitive.ObjectID) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, translateOrderErr(err)
	}
	if !p.CanAccess(order.UserID) {
		return nil, apperr.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) MarkPaid(ctx context.Context, p Principal, id primitive.ObjectID, result domain.PaymentResult) (*domain.Order, error) {
	if _, err := s.GetOrder(ctx, p, id); err != nil {
		return nil, err
	}

	order, err := s.orders.MarkPaid(ctx, id, result, s.now())
	if err != nil {
		return nil, translateOrderErr(err)
	}
	return order, nil
}

func (s *OrderService) MarkDelivered(ctx context.Context, id primitive.ObjectID) (*domain.Order, error) {
	order, err := s.orders.MarkDelivered(ctx, id, s.now())
	if err != nil {
		return nil, translateOrderErr(err)
	}
	return order, nil
}

func (s *OrderService) CountOrders(ctx context.Context) (int64, error) {
	n, err := s.orders.CountOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders: %w", err)
	}
	return n, nil
}

func (s *OrderService) TotalSales(ctx context.Context) (float64, error) {
	total, err := s.orders.TotalSales(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sum sales: %w", err)
	}
	return total, nil
}

func (s *OrderService) SalesByDate(ctx context.Context) ([]domain.DailySales, error) {
	sales, err := s.orders.SalesByDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate sales: %w", err)
	}
	return sales, nil
}

func translateOrderErr(err error) error {
	if errors.Is(err, repository.ErrOrderNotFound) {
		return apperr.ErrOrderNotFound
	}
	return fmt.Errorf("order repository: %w", err)
}
