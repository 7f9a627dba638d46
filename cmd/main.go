package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/events"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/poller"
	"github.com/fjod/storefront/internal/repository"
	s "github.com/fjod/storefront/internal/service"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up MongoDB connection
	mongoDB, err := repository.ConnectMongoDB(ctx, repository.MongoOptions{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDBName,
		AppName:        serviceName,
		ConnectTimeout: cfg.MongoConnectTimeout,
		MaxPoolSize:    cfg.MongoMaxPoolSize,
		MinPoolSize:    cfg.MongoMinPoolSize,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	log.WithField("db", cfg.MongoDBName).Info("connected to MongoDB")

	if cfg.RunMigrations {
		if err := repository.RunMigrations(mongoDB); err != nil {
			log.WithError(err).Fatal("failed to run migrations")
		}
		log.Info("migrations applied")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// the catalog falls back to Mongo while the breaker is open
		log.WithError(err).Warn("redis ping failed, product cache degraded")
	}

	m := metrics.New()

	users := repository.NewMongoUserRepository(mongoDB)
	products := repository.NewMongoProductRepository(mongoDB)
	categories := repository.NewMongoCategoryRepository(mongoDB)
	orders := repository.NewMongoOrderRepository(mongoDB)

	productCache := cache.NewBreakerCache(cache.NewRedisCache(redisClient), circuitbreaker.Settings{
		Name: "product-cache",
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	})

	publisher := events.NewKafkaPublisher(cfg.Brokers()...)

	engine := cart.NewEngine(products)
	cartService := s.NewCartService(users, engine, log, m)
	catalogService := s.NewCatalogService(products, categories, productCache, log)
	orderService := s.NewOrderService(cartService, products, orders, publisher, log, m)
	reviewService := s.NewReviewService(users, products, productCache, log)
	favouriteService := s.NewFavouriteService(users, products)

	cartCleaner := poller.NewPoller(cartService, log, cfg.Brokers()...)
	go cartCleaner.Run(ctx)

	limiter := h.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	go limiter.RunCleanup(ctx, time.Minute)
	ipLimiter := h.NewIPRateLimiter(cfg.IPRateLimitRPS, cfg.IPRateLimitBurst, log)
	go ipLimiter.RunCleanup(ctx, time.Minute)

	router := h.NewRouter(h.RouterConfig{
		Carts:          cartService,
		Catalog:        catalogService,
		Orders:         orderService,
		Reviews:        reviewService,
		Favourites:     favouriteService,
		Auth:           h.NewAuthenticator(cfg.JWTSecret, users, log),
		RateLimiter:    limiter,
		IPRateLimiter:  ipLimiter,
		Metrics:        m,
		Log:            log,
		CacheState:     productCache.State,
		RequestTimeout: cfg.RequestTimeout,
		MaxBodyBytes:   cfg.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server error")
		}
	}()

	// gRPC health for orchestrators
	lis, err := net.Listen("tcp", ":"+cfg.HealthGRPCPort)
	if err != nil {
		log.WithError(err).Fatal("failed to listen for gRPC health")
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		log.WithField("port", cfg.HealthGRPCPort).Info("gRPC health server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.WithError(err).Error("gRPC health server stopped")
		}
	}()

	go watchDependencies(ctx, log, healthServer, func(ctx context.Context) error {
		return mongoDB.Client().Ping(ctx, nil)
	})

	<-ctx.Done()
	log.Info("shutting down storefront...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	grpcServer.GracefulStop()
	cartCleaner.Close()
	if err := publisher.Close(); err != nil {
		log.WithError(err).Error("failed to close kafka writer")
	}
	if err := redisClient.Close(); err != nil {
		log.WithError(err).Error("failed to close redis client")
	}
	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		log.WithError(err).Error("failed to disconnect from MongoDB")
	}
	log.Info("storefront stopped")
}

// watchDependencies flips the gRPC health status when Mongo stops answering.
func watchDependencies(ctx context.Context, log *logger.Logger, hs *health.Server, ping func(context.Context) error) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := ping(pingCtx)
			cancel()

			status := healthpb.HealthCheckResponse_SERVING
			if err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				log.WithError(err).Warn("MongoDB ping failed")
			}
			hs.SetServingStatus(serviceName, status)
		}
	}
}
