package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/bootstrap"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/client"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/controller"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/gate"
	infraRedis "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/infrastructure/redis"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/ipn"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/observer"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/reconcile"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/redact"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/repository/postgres"
	"github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/store"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "amazonpay-gateway-api", "amazonpay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config

	// --- Repositories ---
	metaRepo := postgres.NewOrderMetaRepository(app.Pool)
	merchantRepo := postgres.NewMerchantRepository(app.Pool)
	orderRepo := postgres.NewOrderRepository(app.Pool)

	// --- Reference store and migration gate ---
	refStore := store.New(metaRepo, app.Logger)
	apiGate, err := gate.New(ctx, merchantRepo, metaRepo)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to read merchant settings")
	}

	// --- Provider clients ---
	audit := redact.NewLogger(app.Logger, cfg.AmazonPay.Debug, "AMZ")
	clients := client.NewFactory(
		client.NewLegacy(client.LegacyConfig{
			Endpoint:    cfg.AmazonPay.Legacy.Endpoint,
			SellerID:    cfg.AmazonPay.Legacy.SellerID,
			AccessKeyID: cfg.AmazonPay.Legacy.AccessKeyID,
			SecretKey:   cfg.AmazonPay.Legacy.SecretKey,
			Timeout:     cfg.AmazonPay.Legacy.Timeout,
		}, audit, app.Metrics),
		client.NewCurrent(client.CurrentConfig{
			Endpoint:    cfg.AmazonPay.Current.Endpoint,
			StoreID:     cfg.AmazonPay.Current.StoreID,
			PublicKeyID: cfg.AmazonPay.Current.PublicKeyID,
			Timeout:     cfg.AmazonPay.Current.Timeout,
		}, audit, app.Metrics),
	)

	// --- Shared write path ---
	producer := infraRedis.NewStreamProducer(app.Redis)
	observers := observer.NewRegistry(app.Logger,
		observer.NewOrderStatus(orderRepo),
		observer.NewEvents(producer),
	)
	applier := &reconcile.Applier{Store: refStore, Observers: observers, Metrics: app.Metrics}
	locks := infraRedis.NewOrderLocks(app.Redis, cfg.AmazonPay.LockTTL)

	reconciler := reconcile.New(clients, apiGate, applier, locks, app.Logger)

	// --- Notification path ---
	verifier := ipn.NewVerifier(cfg.AmazonPay.IPNSecret)
	dedup := infraRedis.NewNotificationDedup(app.Redis, cfg.AmazonPay.DedupHorizon)
	ipnHandler := ipn.NewHandler(verifier, dedup, applier, locks, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Pool:        app.Pool,
		RedisClient: app.Redis,
		Reconciler:  reconciler,
		Store:       refStore,
		IPNHandler:  ipnHandler,
		Metrics:     app.Metrics,
		CORSConfig:  cfg.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
