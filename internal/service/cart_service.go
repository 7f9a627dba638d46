package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const removeOrderedAttempts = 3

type CartService struct {
	users   repository.UserRepository
	engine  *cart.Engine
	log     *logger.Logger
	metrics *metrics.Metrics
}

func NewCartService(users repository.UserRepository, engine *cart.Engine, log *logger.Logger, m *metrics.Metrics) *CartService {
	return &CartService{
		users:   users,
		engine:  engine,
		log:     log,
		metrics: m,
	}
}

// GetCart returns the reconciled view of the stored cart. Nothing is written;
// call Reconcile to persist the repaired cart.
func (s *CartService) GetCart(ctx context.Context, userID primitive.ObjectID) (c *domain.Cart, err error) {
	defer s.record("get", &err)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := user.Cart.Clone()
	report, err := s.engine.Reconcile(ctx, &view)
	if err != nil {
		return nil, err
	}
	if report.Changed() {
		s.log.Ctx(ctx).WithFields(reportFields(userID, report)).Debug("cart view differs from stored cart")
	}

	return &view, nil
}

// Reconcile repairs the stored cart and saves it when anything changed.
func (s *CartService) Reconcile(ctx context.Context, userID primitive.ObjectID) (c *domain.Cart, report cart.Report, err error) {
	defer s.record("reconcile", &err)

	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, report, err
	}

	updated := user.Cart.Clone()
	report, err = s.reconcile(ctx, userID, &updated)
	if err != nil {
		return nil, report, err
	}
	if !report.Changed() {
		return &updated, report, nil
	}

	if err = s.save(ctx, user, updated); err != nil {
		return nil, report, err
	}
	return &updated, report, nil
}

func (s *CartService) AddLine(ctx context.Context, userID, productID primitive.ObjectID, qty int) (c *domain.Cart, err error) {
	defer s.record("add", &err)
	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		return s.engine.AddLine(ctx, c, productID, qty)
	})
}

func (s *CartService) RemoveLine(ctx context.Context, userID, productID primitive.ObjectID) (c *domain.Cart, err error) {
	defer s.record("remove", &err)
	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		return s.engine.RemoveLine(c, productID)
	})
}

func (s *CartService) SetQuantity(ctx context.Context, userID, productID primitive.ObjectID, qty int) (c *domain.Cart, err error) {
	defer s.record("update", &err)
	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		return s.engine.SetQuantity(ctx, c, productID, qty)
	})
}

func (s *CartService) ClearCart(ctx context.Context, userID primitive.ObjectID) (c *domain.Cart, err error) {
	defer s.record("clear", &err)
	return s.mutate(ctx, userID, func(c *domain.Cart) error {
		s.engine.Clear(c)
		return nil
	})
}

// RemoveOrderedLines drops the lines for productIDs after a checkout. Lines
// added after the order was placed are left alone. A concurrent cart write
// makes it reload and try again.
func (s *CartService) RemoveOrderedLines(ctx context.Context, userID primitive.ObjectID, productIDs []primitive.ObjectID) (err error) {
	defer s.record("remove_ordered", &err)

	for attempt := 1; attempt <= removeOrderedAttempts; attempt++ {
		err = s.removeOrderedLines(ctx, userID, productIDs)
		if !errors.Is(err, apperr.ErrConflict) {
			return err
		}
		s.log.Ctx(ctx).WithFields(logrus.Fields{
			"user_id": userID.Hex(),
			"attempt": attempt,
		}).Warn("cart changed while removing ordered lines, retrying")
	}
	return err
}

func (s *CartService) removeOrderedLines(ctx context.Context, userID primitive.ObjectID, productIDs []primitive.ObjectID) error {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		s.log.Ctx(ctx).WithField("user_id", userID.Hex()).Warn("user of placed order is gone, nothing to clean")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	updated := user.Cart.Clone()
	removed := 0
	for _, id := range productIDs {
		if s.engine.RemoveLine(&updated, id) == nil {
			removed++
		}
	}
	if removed == 0 {
		return nil
	}

	if _, err := s.reconcile(ctx, userID, &updated); err != nil {
		return err
	}
	return s.save(ctx, user, updated)
}

func (s *CartService) mutate(ctx context.Context, userID primitive.ObjectID, op func(*domain.Cart) error) (*domain.Cart, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	updated := user.Cart.Clone()
	if err := op(&updated); err != nil {
		return nil, err
	}

	if _, err := s.reconcile(ctx, userID, &updated); err != nil {
		return nil, err
	}

	if err := s.save(ctx, user, updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *CartService) reconcile(ctx context.Context, userID primitive.ObjectID, c *domain.Cart) (cart.Report, error) {
	report, err := s.engine.Reconcile(ctx, c)
	if err != nil {
		return report, err
	}

	s.metrics.ReconciledLines("dropped", report.Dropped)
	s.metrics.ReconciledLines("clamped", report.Clamped)
	s.metrics.ReconciledLines("refreshed", report.Refreshed)
	if report.Dropped > 0 || report.Clamped > 0 {
		s.log.Ctx(ctx).WithFields(reportFields(userID, report)).Info("cart reconciled against catalog")
	}
	return report, nil
}

func (s *CartService) loadUser(ctx context.Context, userID primitive.ObjectID) (*domain.User, error) {
	return loadUser(ctx, s.users, userID)
}

func (s *CartService) save(ctx context.Context, user *domain.User, c domain.Cart) error {
	_, err := s.users.SaveCart(ctx, user.ID, c, user.Version)
	if errors.Is(err, repository.ErrVersionConflict) {
		return apperr.ErrConflict.Wrap(err)
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperr.ErrNotAuthenticated
	}
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (s *CartService) record(operation string, errp *error) {
	s.metrics.CartOperation(operation, resultLabel(*errp))
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.From(err).Code)
}

func reportFields(userID primitive.ObjectID, r cart.Report) logrus.Fields {
	return logrus.Fields{
		"user_id":   userID.Hex(),
		"dropped":   r.Dropped,
		"clamped":   r.Clamped,
		"refreshed": r.Refreshed,
	}
}
