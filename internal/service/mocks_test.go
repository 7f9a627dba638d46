package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter("debug", io.Discard)
}

type mockUserRepository struct {
	m     sync.RWMutex
	users map[primitive.ObjectID]*domain.User
	saves int
	err   error
	// beforeSave runs once before the next save, outside the lock.
	beforeSave func()
}

func newMockUserRepository(users ...*domain.User) *mockUserRepository {
	r := &mockUserRepository{users: map[primitive.ObjectID]*domain.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (m *mockUserRepository) GetUser(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	cp.Cart = u.Cart.Clone()
	return &cp, nil
}

func (m *mockUserRepository) SaveCart(_ context.Context, id primitive.ObjectID, cart domain.Cart, expectedVersion int64) (int64, error) {
	if hook := m.takeHook(); hook != nil {
		hook()
	}

	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	if u.Version != expectedVersion {
		return 0, repository.ErrVersionConflict
	}
	u.Cart = cart.Clone()
	u.Version++
	m.saves++
	return u.Version, nil
}

func (m *mockUserRepository) AddFavourite(_ context.Context, id, productID primitive.ObjectID) error {
	return m.editRefs(id, func(u *domain.User) error {
		if containsID(u.FavouriteProducts, productID) {
			return repository.ErrAlreadyFavourite
		}
		u.FavouriteProducts = append(u.FavouriteProducts, productID)
		return nil
	})
}

func (m *mockUserRepository) RemoveFavourite(_ context.Context, id, productID primitive.ObjectID) error {
	return m.editRefs(id, func(u *domain.User) error {
		if !containsID(u.FavouriteProducts, productID) {
			return repository.ErrNotFavourite
		}
		u.FavouriteProducts = withoutID(u.FavouriteProducts, productID)
		return nil
	})
}

func (m *mockUserRepository) MarkReviewed(_ context.Context, id, productID primitive.ObjectID) error {
	return m.editRefs(id, func(u *domain.User) error {
		if !containsID(u.ReviewedProducts, productID) {
			u.ReviewedProducts = append(u.ReviewedProducts, productID)
		}
		return nil
	})
}

func (m *mockUserRepository) UnmarkReviewed(_ context.Context, id, productID primitive.ObjectID) error {
	return m.editRefs(id, func(u *domain.User) error {
		u.ReviewedProducts = withoutID(u.ReviewedProducts, productID)
		return nil
	})
}

func (m *mockUserRepository) editRefs(id primitive.ObjectID, fn func(*domain.User) error) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	return fn(u)
}

func (m *mockUserRepository) user(id primitive.ObjectID) domain.User {
	m.m.RLock()
	defer m.m.RUnlock()
	u := *m.users[id]
	u.FavouriteProducts = append([]primitive.ObjectID(nil), u.FavouriteProducts...)
	u.ReviewedProducts = append([]primitive.ObjectID(nil), u.ReviewedProducts...)
	return u
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func withoutID(ids []primitive.ObjectID, id primitive.ObjectID) []primitive.ObjectID {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (m *mockUserRepository) takeHook() func() {
	m.m.Lock()
	defer m.m.Unlock()
	hook := m.beforeSave
	m.beforeSave = nil
	return hook
}

func (m *mockUserRepository) stored(id primitive.ObjectID) domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.users[id].Cart.Clone()
}

func (m *mockUserRepository) saveCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.saves
}

// bump simulates a concurrent writer.
func (m *mockUserRepository) bump(id primitive.ObjectID, mutate func(*domain.Cart)) {
	m.m.Lock()
	defer m.m.Unlock()
	u := m.users[id]
	if mutate != nil {
		mutate(&u.Cart)
	}
	u.Version++
}

type mockProductRepository struct {
	m        sync.RWMutex
	products map[primitive.ObjectID]*domain.Product
	calls    int
	err      error
}

func newMockProductRepository(products ...*domain.Product) *mockProductRepository {
	r := &mockProductRepository{products: map[primitive.ObjectID]*domain.Product{}}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (m *mockProductRepository) GetProduct(_ context.Context, id primitive.ObjectID) (*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) GetProducts(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := map[primitive.ObjectID]*domain.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *mockProductRepository) AddReview(_ context.Context, productID primitive.ObjectID, review domain.Review) (*domain.Product, error) {
	return m.editReviews(productID, func(p *domain.Product) error {
		if p.ReviewedBy(review.UserID) {
			return repository.ErrAlreadyReviewed
		}
		p.Reviews = append(p.Reviews, review)
		return nil
	})
}

func (m *mockProductRepository) DeleteReview(_ context.Context, productID, userID primitive.ObjectID) (*domain.Product, error) {
	return m.editReviews(productID, func(p *domain.Product) error {
		if !p.ReviewedBy(userID) {
			return repository.ErrReviewNotFound
		}
		kept := p.Reviews[:0:0]
		for _, r := range p.Reviews {
			if r.UserID != userID {
				kept = append(kept, r)
			}
		}
		p.Reviews = kept
		return nil
	})
}

func (m *mockProductRepository) editReviews(productID primitive.ObjectID, fn func(*domain.Product) error) (*domain.Product, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.RecomputeRating()
	cp := *p
	return &cp, nil
}

func (m *mockProductRepository) update(id primitive.ObjectID, fn func(*domain.Product)) {
	m.m.Lock()
	defer m.m.Unlock()
	fn(m.products[id])
}

func (m *mockProductRepository) delete(id primitive.ObjectID) {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.products, id)
}

func (m *mockProductRepository) callCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.calls
}

type mockCategoryRepository struct {
	categories []*domain.Category
	err        error
}

func (m *mockCategoryRepository) ListCategories(context.Context) ([]*domain.Category, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.categories, nil
}

type mockOrderRepository struct {
	m      sync.RWMutex
	orders map[primitive.ObjectID]*domain.Order
	err    error
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{orders: map[primitive.ObjectID]*domain.Order{}}
}

func (m *mockOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	order.CreatedAt = time.Now()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *mockOrderRepository) GetOrder(_ context.Context, id primitive.ObjectID) (*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepository) ListOrders(context.Context) ([]*domain.Order, error) {
	return m.filter(func(*domain.Order) bool { return true }), nil
}

func (m *mockOrderRepository) ListOrdersByUser(_ context.Context, userID primitive.ObjectID) ([]*domain.Order, error) {
	return m.filter(func(o *domain.Order) bool { return o.UserID == userID }), nil
}

func (m *mockOrderRepository) filter(keep func(*domain.Order) bool) []*domain.Order {
	m.m.RLock()
	defer m.m.RUnlock()
	out := []*domain.Order{}
	for _, o := range m.orders {
		if keep(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func (m *mockOrderRepository) MarkPaid(_ context.Context, id primitive.ObjectID, result domain.PaymentResult, at time.Time) (*domain.Order, error) {
	return m.update(id, func(o *domain.Order) {
		o.IsPaid = true
		o.PaidAt = &at
		o.PaymentResult = &result
	})
}

func (m *mockOrderRepository) MarkDelivered(_ context.Context, id primitive.ObjectID, at time.Time) (*domain.Order, error) {
	return m.update(id, func(o *domain.Order) {
		o.IsDelivered = true
		o.DeliveredAt = &at
	})
}

func (m *mockOrderRepository) update(id primitive.ObjectID, fn func(*domain.Order)) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	fn(o)
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepository) CountOrders(context.Context) (int64, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	return int64(len(m.orders)), m.err
}

func (m *mockOrderRepository) TotalSales(context.Context) (float64, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	total := 0.0
	for _, o := range m.orders {
		total += o.TotalPrice
	}
	return total, m.err
}

func (m *mockOrderRepository) SalesByDate(context.Context) ([]domain.DailySales, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	byDay := map[string]float64{}
	for _, o := range m.orders {
		if o.IsPaid && o.PaidAt != nil {
			byDay[o.PaidAt.Format("2006-01-02")] += o.TotalPrice
		}
	}
	out := []domain.DailySales{}
	for d, v := range byDay {
		out = append(out, domain.DailySales{Date: d, TotalSales: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, m.err
}

type mockCache struct {
	m        sync.RWMutex
	products map[primitive.ObjectID]*domain.Product
	sets     int
	deletes  int
	err      error
}

func newMockCache() *mockCache {
	return &mockCache{products: map[primitive.ObjectID]*domain.Product{}}
}

func (m *mockCache) Get(_ context.Context, id primitive.ObjectID) (*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return p, nil
}

func (m *mockCache) Set(_ context.Context, p *domain.Product) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.sets++
	if m.err != nil {
		return m.err
	}
	m.products[p.ID] = p
	return nil
}

func (m *mockCache) Delete(_ context.Context, id primitive.ObjectID) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.deletes++
	delete(m.products, id)
	return m.err
}

func (m *mockCache) has(id primitive.ObjectID) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.products[id]
	return ok
}

type mockPublisher struct {
	m      sync.Mutex
	events []events.OrderPlaced
	err    error
}

func (m *mockPublisher) PublishOrderPlaced(_ context.Context, ev events.OrderPlaced) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) published() []events.OrderPlaced {
	m.m.Lock()
	defer m.m.Unlock()
	return append([]events.OrderPlaced(nil), m.events...)
}
