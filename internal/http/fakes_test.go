package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

type fakeUsers struct {
	m       sync.Mutex
	users   map[primitive.ObjectID]*domain.User
	lookups int
}

func (f *fakeUsers) lookupCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.lookups
}

func (f *fakeUsers) GetUser(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.lookups++
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

type cartCall struct {
	op        string
	userID    primitive.ObjectID
	productID primitive.ObjectID
	qty       int
}

type fakeCarts struct {
	m      sync.Mutex
	calls  []cartCall
	cart   *domain.Cart
	report cart.Report
	err    error
}

func (f *fakeCarts) record(c cartCall) (*domain.Cart, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, f.err
	}
	return f.cart, nil
}

func (f *fakeCarts) lastCall() cartCall {
	f.m.Lock()
	defer f.m.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeCarts) GetCart(_ context.Context, userID primitive.ObjectID) (*domain.Cart, error) {
	return f.record(cartCall{op: "get", userID: userID})
}

func (f *fakeCarts) Reconcile(_ context.Context, userID primitive.ObjectID) (*domain.Cart, cart.Report, error) {
	c, err := f.record(cartCall{op: "reconcile", userID: userID})
	return c, f.report, err
}

func (f *fakeCarts) AddLine(_ context.Context, userID, productID primitive.ObjectID, qty int) (*domain.Cart, error) {
	return f.record(cartCall{op: "add", userID: userID, productID: productID, qty: qty})
}

func (f *fakeCarts) RemoveLine(_ context.Context, userID, productID primitive.ObjectID) (*domain.Cart, error) {
	return f.record(cartCall{op: "remove", userID: userID, productID: productID})
}

func (f *fakeCarts) SetQuantity(_ context.Context, userID, productID primitive.ObjectID, qty int) (*domain.Cart, error) {
	return f.record(cartCall{op: "update", userID: userID, productID: productID, qty: qty})
}

func (f *fakeCarts) ClearCart(_ context.Context, userID primitive.ObjectID) (*domain.Cart, error) {
	return f.record(cartCall{op: "clear", userID: userID})
}

type fakeCatalog struct {
	product    *domain.Product
	categories []*domain.Category
	err        error
}

func (f *fakeCatalog) GetProduct(_ context.Context, id primitive.ObjectID) (*domain.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.product == nil || f.product.ID != id {
		return nil, apperr.ErrProductNotFound
	}
	return f.product, nil
}

func (f *fakeCatalog) ListCategories(context.Context) ([]*domain.Category, error) {
	return f.categories, f.err
}

type fakeOrders struct {
	m         sync.Mutex
	order     *domain.Order
	orders    []*domain.Order
	placed    *domain.ShippingAddress
	payment   *domain.PaymentResult
	principal service.Principal
	err       error
}

func (f *fakeOrders) PlaceOrder(_ context.Context, userID primitive.ObjectID, address domain.ShippingAddress, paymentMethod string) (*domain.Order, error) {
	f.m.Lock()
	defer f.m.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.placed = &address
	return &domain.Order{ID: primitive.NewObjectID(), UserID: userID, ShippingAddress: address, PaymentMethod: paymentMethod}, nil
}

func (f *fakeOrders) ListMine(context.Context, primitive.ObjectID) ([]*domain.Order, error) {
	return f.orders, f.err
}

func (f *fakeOrders) ListAll(context.Context) ([]*domain.Order, error) {
	return f.orders, f.err
}

func (f *fakeOrders) GetOrder(_ context.Context, p service.Principal, _ primitive.ObjectID) (*domain.Order, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.principal = p
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, p service.Principal, _ primitive.ObjectID, result domain.PaymentResult) (*domain.Order, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.principal = p
	f.payment = &result
	if f.err != nil {
		return nil, f.err
	}
	return f.order, nil
}

func (f *fakeOrders) MarkDelivered(context.Context, primitive.ObjectID) (*domain.Order, error) {
	return f.order, f.err
}

func (f *fakeOrders) CountOrders(context.Context) (int64, error) {
	return int64(len(f.orders)), f.err
}

func (f *fakeOrders) TotalSales(context.Context) (float64, error) {
	return 99.5, f.err
}

func (f *fakeOrders) SalesByDate(context.Context) ([]domain.DailySales, error) {
	return []domain.DailySales{{Date: "2026-01-02", TotalSales: 99.5}}, f.err
}

type shopperCall struct {
	op        string
	principal service.Principal
	productID primitive.ObjectID
	rating    int
	comment   string
}

type fakeShopper struct {
	m        sync.Mutex
	calls    []shopperCall
	product  *domain.Product
	products []*domain.Product
	err      error
}

func (f *fakeShopper) record(c shopperCall) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeShopper) lastCall() shopperCall {
	f.m.Lock()
	defer f.m.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeShopper) callCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return len(f.calls)
}

func (f *fakeShopper) AddReview(_ context.Context, p service.Principal, productID primitive.ObjectID, rating int, comment string) (*domain.Product, error) {
	if err := f.record(shopperCall{op: "review", principal: p, productID: productID, rating: rating, comment: comment}); err != nil {
		return nil, err
	}
	return f.product, nil
}

func (f *fakeShopper) DeleteReview(_ context.Context, p service.Principal, productID primitive.ObjectID) (*domain.Product, error) {
	if err := f.record(shopperCall{op: "unreview", principal: p, productID: productID}); err != nil {
		return nil, err
	}
	return f.product, nil
}

func (f *fakeShopper) ListReviewed(_ context.Context, p service.Principal) ([]*domain.Product, error) {
	if err := f.record(shopperCall{op: "reviewed", principal: p}); err != nil {
		return nil, err
	}
	return f.products, nil
}

func (f *fakeShopper) AddFavourite(_ context.Context, p service.Principal, productID primitive.ObjectID) error {
	return f.record(shopperCall{op: "favourite", principal: p, productID: productID})
}

func (f *fakeShopper) RemoveFavourite(_ context.Context, p service.Principal, productID primitive.ObjectID) error {
	return f.record(shopperCall{op: "unfavourite", principal: p, productID: productID})
}

func (f *fakeShopper) ListFavourites(_ context.Context, p service.Principal) ([]*domain.Product, error) {
	if err := f.record(shopperCall{op: "favourites", principal: p}); err != nil {
		return nil, err
	}
	return f.products, nil
}

type testServer struct {
	handler http.Handler
	carts   *fakeCarts
	catalog *fakeCatalog
	orders  *fakeOrders
	shopper *fakeShopper
	users   *fakeUsers
	user    *domain.User
	admin   *domain.User
}

func newTestServer(t *testing.T, opts ...func(*RouterConfig)) *testServer {
	t.Helper()
	user := &domain.User{ID: primitive.NewObjectID(), Username: "jane"}
	admin := &domain.User{ID: primitive.NewObjectID(), Username: "root", IsAdmin: true}
	users := &fakeUsers{users: map[primitive.ObjectID]*domain.User{user.ID: user, admin.ID: admin}}
	log := logger.NewWithWriter("error", io.Discard)

	ts := &testServer{
		carts:   &fakeCarts{cart: &domain.Cart{Lines: []domain.CartLine{}}},
		catalog: &fakeCatalog{},
		orders:  &fakeOrders{},
		shopper: &fakeShopper{},
		users:   users,
		user:    user,
		admin:   admin,
	}
	cfg := RouterConfig{
		Carts:          ts.carts,
		Catalog:        ts.catalog,
		Orders:         ts.orders,
		Reviews:        ts.shopper,
		Favourites:     ts.shopper,
		Auth:           NewAuthenticator(testSecret, users, log),
		RateLimiter:    NewRateLimiter(1000, 1000, log),
		IPRateLimiter:  NewIPRateLimiter(1000, 1000, log),
		Metrics:        metrics.New(),
		Log:            log,
		CacheState:     func() string { return "closed" },
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ts.handler = NewRouter(cfg)
	return ts
}

func signToken(t *testing.T, secret string, userID primitive.ObjectID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func withCookie(t *testing.T, req *http.Request, userID primitive.ObjectID) *http.Request {
	req.AddCookie(&http.Cookie{Name: tokenCookie, Value: signToken(t, testSecret, userID)})
	return req
}
