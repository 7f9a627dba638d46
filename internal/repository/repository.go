package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	// ErrVersionConflict means the user document changed since it was loaded.
	ErrVersionConflict = errors.New("user document version conflict")

	ErrAlreadyReviewed  = errors.New("product already reviewed by user")
	ErrReviewNotFound   = errors.New("review not found")
	ErrAlreadyFavourite = errors.New("product already in favourites")
	ErrNotFavourite     = errors.New("product not in favourites")
)

const (
	usersCollection      = "users"
	productsCollection   = "products"
	ordersCollection     = "orders"
	categoriesCollection = "categories"
)

// UserRepository loads users and replaces their embedded cart.
// SaveCart only succeeds when the stored version equals expectedVersion and
// returns the new version.
type UserRepository interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	SaveCart(ctx context.Context, id primitive.ObjectID, cart domain.Cart, expectedVersion int64) (int64, error)

	// AddFavourite and RemoveFavourite return ErrAlreadyFavourite and
	// ErrNotFavourite when the list already is in the requested state.
	AddFavourite(ctx context.Context, id, productID primitive.ObjectID) error
	RemoveFavourite(ctx context.Context, id, productID primitive.ObjectID) error
	// MarkReviewed and UnmarkReviewed are idempotent.
	MarkReviewed(ctx context.Context, id, productID primitive.ObjectID) error
	UnmarkReviewed(ctx context.Context, id, productID primitive.ObjectID) error
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id primitive.ObjectID) (*domain.Product, error)
	// GetProducts returns the products that exist; missing ids are simply absent from the map.
	GetProducts(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.Product, error)
	// AddReview appends a review and recomputes rating and numReviews in the
	// same update. One review per user: a second one is ErrAlreadyReviewed.
	AddReview(ctx context.Context, productID primitive.ObjectID, review domain.Review) (*domain.Product, error)
	DeleteReview(ctx context.Context, productID, userID primitive.ObjectID) (*domain.Product, error)
}

type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]*domain.Category, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, id primitive.ObjectID) (*domain.Order, error)
	ListOrders(ctx context.Context) ([]*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID primitive.ObjectID) ([]*domain.Order, error)
	MarkPaid(ctx context.Context, id primitive.ObjectID, result domain.PaymentResult, at time.Time) (*domain.Order, error)
	MarkDelivered(ctx context.Context, id primitive.ObjectID, at time.Time) (*domain.Order, error)
	CountOrders(ctx context.Context) (int64, error)
	TotalSales(ctx context.Context) (float64, error)
	SalesByDate(ctx context.Context) ([]domain.DailySales, error)
}
