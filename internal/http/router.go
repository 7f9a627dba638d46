package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	Carts      CartService
	Catalog    CatalogService
	Orders     OrderService
	Reviews    ReviewService
	Favourites FavouriteService
	Auth       *Authenticator
	// RateLimiter throttles per caller, IPRateLimiter guards token checks.
	RateLimiter   *RateLimiter
	IPRateLimiter *RateLimiter
	Metrics       *metrics.Metrics
	Log           *logger.Logger
	// CacheState reports the product cache breaker on /health when set.
	CacheState func() string

	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler(cfg.Carts, cfg.Log, cfg.MaxBodyBytes)
	productHandler := NewProductHandler(cfg.Catalog, cfg.Log)
	orderHandler := NewOrderHandler(cfg.Orders, cfg.Log, cfg.MaxBodyBytes)
	shopperHandler := NewShopperHandler(cfg.Reviews, cfg.Favourites, cfg.Log, cfg.MaxBodyBytes)
	adminOnly := RequireAdmin(cfg.Log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(cfg.Metrics.Middleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if cfg.CacheState != nil {
			body["cache"] = cfg.CacheState()
		}
		respondJSON(w, http.StatusOK, body)
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	authenticated := chi.Chain(cfg.IPRateLimiter.Handler, cfg.Auth.Handler, cfg.RateLimiter.Handler)
	public := chi.Chain(cfg.RateLimiter.Handler)

	r.Route("/api", func(r chi.Router) {
		r.With(authenticated...).Get("/products/reviews", shopperHandler.ListReviewed)
		r.With(public...).Get("/products/{id}", productHandler.GetProduct)
		r.With(authenticated...).Post("/products/{id}/reviews", shopperHandler.AddReview)
		r.With(authenticated...).Delete("/products/{id}/reviews", shopperHandler.DeleteReview)
		r.With(public...).Get("/category/categories", productHandler.ListCategories)

		r.Route("/users/cart", func(r chi.Router) {
			r.Use(authenticated...)
			r.Get("/", cartHandler.GetCart)
			r.Post("/add/{id}", cartHandler.AddLine)
			r.Delete("/delete/{id}", cartHandler.RemoveLine)
			r.Put("/update/{id}", cartHandler.SetQuantity)
			r.Put("/clear", cartHandler.ClearCart)
			r.Post("/reconcile", cartHandler.Reconcile)
		})

		r.Route("/users/favourites", func(r chi.Router) {
			r.Use(authenticated...)
			r.Get("/", shopperHandler.ListFavourites)
			r.Post("/add/{id}", shopperHandler.AddFavourite)
			r.Delete("/remove/{id}", shopperHandler.RemoveFavourite)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(public...)
				r.Get("/total-orders", orderHandler.CountOrders)
				r.Get("/total-sales", orderHandler.TotalSales)
				r.Get("/total-sales-by-date", orderHandler.SalesByDate)
			})

			r.Group(func(r chi.Router) {
				r.Use(authenticated...)
				r.Post("/", orderHandler.PlaceOrder)
				r.With(adminOnly).Get("/", orderHandler.ListAll)
				r.Get("/mine", orderHandler.ListMine)
				r.Get("/{id}", orderHandler.GetOrder)
				r.Put("/{id}/pay", orderHandler.MarkPaid)
				r.With(adminOnly).Put("/{id}/deliver", orderHandler.MarkDelivered)
			})
		})
	})

	return r
}
