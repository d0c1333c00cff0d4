package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/ec-shop/internal/api"
	"github.com/example/ec-shop/internal/auth"
	"github.com/example/ec-shop/internal/command"
	"github.com/example/ec-shop/internal/config"
	"github.com/example/ec-shop/internal/domain/cart"
	"github.com/example/ec-shop/internal/domain/category"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/review"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/infrastructure/kafka"
	"github.com/example/ec-shop/internal/infrastructure/redisx"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/logging"
	"github.com/example/ec-shop/internal/metrics"
	"github.com/example/ec-shop/internal/notification"
	"github.com/example/ec-shop/internal/payment/paystack"
	"github.com/example/ec-shop/internal/query"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return err
	}

	logger, err := logging.New("api", cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting",
		zap.String("addr", cfg.HTTPAddr),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.String("kafka_topic", cfg.KafkaTopic),
		zap.String("redis", cfg.RedisAddr),
		zap.Duration("request_timeout", cfg.RequestTimeout()),
	)

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx, db); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	rdb, err := redisx.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer producer.Close()

	m := metrics.New("ecshop")

	// Repositories
	orderRepo := store.NewPostgresOrderRepository(db)
	productRepo := store.NewPostgresProductRepository(db)

	// Domain services
	productSvc := product.NewService(productRepo)
	cartSvc := cart.NewService(store.NewPostgresCartRepository(db), productRepo)
	categorySvc := category.NewService(store.NewPostgresCategoryRepository(db))
	emailSvc := email.NewService(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		From:     cfg.SMTP.From,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	})
	userSvc := user.NewService(store.NewPostgresUserRepository(db), emailSvc, cfg.FrontendURL)
	reviewSvc := review.NewService(store.NewPostgresReviewRepository(db), productRepo)

	jwtService := auth.NewJWTService(
		cfg.JWTSecret,
		15*time.Minute, // Access token expiry
		7*24*time.Hour, // Refresh token expiry (7 days)
	)

	gateway := paystack.NewClient(paystack.Config{
		BaseURL:     cfg.Paystack.BaseURL,
		SecretKey:   cfg.Paystack.SecretKey,
		MaxAttempts: cfg.Paystack.MaxAttempts,
		Backoff:     cfg.Paystack.Backoff,
		Timeout:     cfg.Paystack.Timeout,
	}, nil, logger, m)

	cmdHandler := command.NewHandler(
		store.NewPostgresUnitOfWork(db),
		orderRepo,
		gateway,
		notification.NewPublisher(producer),
		producer,
		command.Config{
			WebhookSecret: cfg.Paystack.SecretKey,
			CallbackURL:   cfg.Paystack.CallbackURL,
			CancelURL:     cfg.Paystack.CancelURL,
		},
		logger,
		m,
	)
	queryHandler := query.NewHandler(orderRepo, productRepo)

	router := api.NewRouter(api.RouterDeps{
		RequestTimeout: cfg.RequestTimeout(),
		Handlers:       api.NewHandlers(cmdHandler, queryHandler, productSvc, cartSvc, redisx.NewIdempotencyStore(rdb)),
		Auth:           api.NewAuthHandlers(userSvc, jwtService),
		Categories:     api.NewCategoryHandlers(categorySvc),
		Reviews:        api.NewReviewHandlers(reviewSvc),
		JWT:            jwtService,
		Metrics:        m,
		Logger:         logger.Named("http"),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cmdHandler.RunReleaser(ctx, command.ReleasePolicy{
			UnpaidTTL:  cfg.Orders.ReservationTTL,
			PendingTTL: cfg.Orders.PendingReservationTTL,
		}, cfg.Orders.ReleaseInterval)
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		logger.Error("http server failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http shutdown", zap.Error(shutdownErr))
	}

	wg.Wait()
	return err
}
