package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"gift-marketplace/internal/api"
	"gift-marketplace/internal/cart"
	cartdb "gift-marketplace/internal/cart/db"
	"gift-marketplace/internal/config"
	"gift-marketplace/internal/database/migrations"
	"gift-marketplace/internal/kafka"
	"gift-marketplace/internal/logger"
	"gift-marketplace/internal/models"
	"gift-marketplace/internal/order"
	orderdb "gift-marketplace/internal/order/db"
	"gift-marketplace/internal/payment/gateway"
	paymenthandler "gift-marketplace/internal/payment/handler"
	"gift-marketplace/internal/payment/reconcile"
	"gift-marketplace/internal/promo"
	promodb "gift-marketplace/internal/promo/db"
	"gift-marketplace/internal/shipping"
	shippingdb "gift-marketplace/internal/shipping/db"
)

// noopPublisher stands in for Kafka when it is disabled in local development.
type noopPublisher struct{}

func (noopPublisher) PublishOrderPaid(models.Order) error { return nil }
func (noopPublisher) PublishRegistryGiftPurchased(models.RegistryItem, models.Order, int) error {
	return nil
}
func (noopPublisher) PublishInboundEmail(string, interface{}) error { return nil }

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.Ping()
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "✅ PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Gift Marketplace service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	migrator := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := migrator.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	defer migrator.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	defer redisClient.Close()
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	httpClient := &http.Client{
		Timeout: time.Second * 10,
	}

	var notifier reconcile.Notifier = noopPublisher{}
	var emails api.EmailPublisher = noopPublisher{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics.OrderPaid, cfg.Kafka.Topics.InboundEmail)
		defer producer.Close()

		requiredTopics := []string{cfg.Kafka.Topics.OrderPaid, cfg.Kafka.Topics.InboundEmail}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, requiredTopics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		notifier = producer
		emails = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, events will not be published")
	}

	orderStore := &orderdb.DB{Bun: bunDB}
	cartStore := &cartdb.DB{Bun: bunDB}
	promoStore := &promodb.DB{Bun: bunDB}
	shippingStore := &shippingdb.DB{Bun: bunDB}

	gatewayClient := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.MerchantID, cfg.Gateway.APIKey, httpClient, log)
	courierClient := shipping.NewCourierClient(cfg.Courier.BaseURL, cfg.Courier.AccountNo, cfg.Courier.APIKey, httpClient, log)
	shippingService := shipping.NewService(courierClient, shippingStore, redisClient, log)

	cartLoader := cart.NewLoader(cartStore)
	promoEvaluator := promo.NewEvaluator(promoStore, log)

	orderService := order.NewService(
		orderStore,
		cartLoader,
		promoEvaluator,
		promoStore,
		gatewayClient,
		shippingService,
		log,
		cfg.Gateway.Currency,
		cfg.Server.PublicBaseURL,
	)

	reconciler := reconcile.NewReconciler(orderStore, notifier, shippingService, log, cfg.Gateway.Provider)

	gin.SetMode(gin.ReleaseMode)
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	paymentHandler := paymenthandler.NewHandler(reconciler, gatewayClient, log)
	paymentHandler.RegisterRoutes(ginEngine.Group("/"))
	log.Info("ROUTER", "Payment webhook and callback registered under /api/v1/payments")

	apiHandler := api.NewHandler(orderService, cartLoader, promoEvaluator, orderStore, shippingStore, shippingService, emails, log)
	limiter := api.NewRateLimiter(60, time.Minute)

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			apiHandler.RegisterRoutes(r)
		})
	})
	r.Mount("/api/v1/payments", http.StripPrefix("/api/v1/payments", ginEngine))

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("🚀 Gift Marketplace running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Gift Marketplace shutdown complete")
	}
}
