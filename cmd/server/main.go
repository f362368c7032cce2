package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/beanline/coffee_shop/internal/config"
	"github.com/beanline/coffee_shop/internal/es"
	"github.com/beanline/coffee_shop/internal/fallback"
	"github.com/beanline/coffee_shop/internal/handlers"
	"github.com/beanline/coffee_shop/internal/logging"
	"github.com/beanline/coffee_shop/internal/metrics"
	"github.com/beanline/coffee_shop/internal/mykafka"
	"github.com/beanline/coffee_shop/internal/realtime"
	cartsvc "github.com/beanline/coffee_shop/internal/service/cart"
	ordersvc "github.com/beanline/coffee_shop/internal/service/order"
	"github.com/beanline/coffee_shop/internal/service/token"
	"github.com/beanline/coffee_shop/internal/storage"
	httpserver "github.com/beanline/coffee_shop/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}

	jwtSecret := []byte(configuration.JWT_SECRET)
	refreshSecret := []byte(configuration.REFRESH_SECRET)

	prod := mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})

	// Search is optional: the menu still works from the database when
	// elasticsearch is down.
	esClient, err := es.NewClient(configuration, logger)
	if err != nil {
		logger.Warn("elasticsearch unavailable, search disabled", "error", err)
		esClient = nil
	}

	store := storage.New(configuration.UPLOADS_DIR, "/uploads", logger)
	if err := store.EnsureBucket(storage.MenuImagesBucket); err != nil {
		logger.Warn("could not create image bucket, uploads will inline", "error", err)
	}

	fallbackStore, err := fallback.Open(configuration.FALLBACK_DB)
	if err != nil {
		logger.Error("fallback store init failed", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(logger)

	orders := ordersvc.NewService(db)
	carts := cartsvc.NewService(db, orders)
	tokens := &token.Service{DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), metrics.Middleware())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	deps := httpserver.Deps{
		DB: db,
		AuthHandler: &handlers.AuthHandler{
			DB: db, JWTSecret: jwtSecret, RefreshSecret: refreshSecret,
			Producer: prod, AdminEmail: configuration.ADMIN_EMAIL,
		},
		MenuHandler:    &handlers.MenuHandler{DB: db, Producer: prod, ES: esClient, Hub: hub, Store: store},
		CartHandler:    &handlers.CartHandler{DB: db, Carts: carts, Producer: prod, Hub: hub},
		OrderHandler:   &handlers.OrderHandler{DB: db, Orders: orders, Producer: prod, Hub: hub},
		CashierHandler: &handlers.CashierHandler{DB: db, Orders: orders, Fallback: fallbackStore, Producer: prod, Hub: hub},
		Tokens:         tokens,
		Hub:            hub,
		UploadsRoot:    configuration.UPLOADS_DIR,
	}
	if esClient != nil {
		deps.SearchHandler = &handlers.SearchHandler{ES: esClient, Index: es.MenuIndex}
	}

	httpserver.Register(e, &deps)

	srv := &http.Server{
		Addr:         ":" + configuration.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("starting http server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	hub.Close()

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db close error", "error", err)
		}
	}
	if err := fallbackStore.Close(); err != nil {
		logger.Error("fallback store close error", "error", err)
	}
	if err := prod.Close(); err != nil {
		logger.Error("kafka close error", "error", err)
	}

	logger.Info("shutdown complete")
}
