package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/tailorlink/tailorlink-backend/internal/config"
	"github.com/tailorlink/tailorlink-backend/internal/db"
	httpHandlers "github.com/tailorlink/tailorlink-backend/internal/http/handlers"
	httpRouter "github.com/tailorlink/tailorlink-backend/internal/http/router"
	"github.com/tailorlink/tailorlink-backend/internal/logger"
	"github.com/tailorlink/tailorlink-backend/internal/payout"
	"github.com/tailorlink/tailorlink-backend/internal/repository"
	"github.com/tailorlink/tailorlink-backend/internal/service"
	"github.com/tailorlink/tailorlink-backend/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: failed to load configuration: %v", err)
	}

	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: failed to connect to database: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: migrations failed: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	// Repositories.
	orderRepo := repository.NewOrderRepository(dbConn)
	milestoneRepo := repository.NewMilestoneRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	disputeRepo := repository.NewDisputeRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)
	activityRepo := repository.NewActivityRepository(dbConn)

	// Websocket hub for notification pushes.
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Services.
	gateway := payout.NewClient(cfg.PayoutBaseURL, cfg.PayoutAPIKey)
	notificationService := service.NewNotificationService(notificationRepo, hub)
	escrowCalc := service.NewEscrowCalculator(cfg.EscrowMinAmount, cfg.EscrowMaxAmount)
	commissionCalc := service.NewCommissionCalculator(cfg.CommissionRate)
	lifecycle := service.NewOrderPaymentLifecycle(orderRepo)
	paymentService := service.NewPaymentService(orderRepo, lifecycle, escrowCalc, gateway, activityRepo)
	milestoneService := service.NewMilestoneService(
		milestoneRepo, orderRepo, lifecycle, escrowCalc, commissionCalc,
		paymentRepo, gateway, notificationService, cfg.AutoApprovalWindow,
	)
	disputeService := service.NewDisputeService(disputeRepo, orderRepo, gateway, notificationService)

	// The distributed lock is optional; without Redis the conditional
	// milestone writes alone keep concurrent runs safe.
	var locker *redislock.Client
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		locker = redislock.New(redisClient)
	}
	autoApprovalService := service.NewAutoApprovalService(milestoneRepo, milestoneService, locker, cfg.AutoApprovalBatchLimit)

	// HTTP handlers.
	escrowHandler := httpHandlers.NewEscrowHandler(paymentService, escrowCalc, cfg.PaymentMethods)
	orderHandler := httpHandlers.NewOrderHandler(orderRepo, milestoneRepo, paymentRepo, escrowCalc)
	milestoneHandler := httpHandlers.NewMilestoneHandler(milestoneService)
	disputeHandler := httpHandlers.NewDisputeHandler(disputeService)
	cronHandler := httpHandlers.NewCronHandler(autoApprovalService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	engine := httpRouter.SetupRouter(
		cfg,
		escrowHandler,
		orderHandler,
		milestoneHandler,
		disputeHandler,
		cronHandler,
		notificationHandler,
		wsHandler,
		healthHandler,
		tokenManager,
	)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: http server shutdown error: %v", err)
		}
	}()

	log.Printf("main: HTTP server listening on port %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: server exited with error: %v", err)
	}
}

func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: failed to close database: %v", err)
	}
}
