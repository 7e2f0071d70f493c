package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"partnerledger/internal/adjustment"
	"partnerledger/internal/commission"
	"partnerledger/internal/domain"
	"partnerledger/internal/handler"
	"partnerledger/internal/middleware"
	"partnerledger/internal/rates"
	"partnerledger/internal/repository/postgres"
	"partnerledger/internal/stream"
	"partnerledger/internal/wallet"
	"partnerledger/pkg/cache"
	"partnerledger/pkg/config"
	"partnerledger/pkg/logger"
	"partnerledger/pkg/validator"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New("partner-ledger")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Partner Ledger Service", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Redis connection
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Redis connected", nil)

	// Repositories
	rateRepo := postgres.NewRateRepository(db)
	txRepo := postgres.NewTransactionRepository(db)

	if err := seedDefaultRates(rateRepo, log); err != nil {
		log.Fatal("Failed to seed default rates", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Services
	hub := stream.NewHub(log)
	balanceCache := cache.NewRedisCache(redisClient)

	rateService := rates.NewService(rateRepo, log)
	walletService := wallet.NewService(txRepo, balanceCache, hub, cfg.Ledger.BalanceCacheTTL, log)
	resolver := commission.NewResolver(rateService)
	commissionService := commission.NewService(resolver, walletService, log)
	adjustmentService := adjustment.NewService(walletService, log)

	// Handlers
	val := validator.New()
	ratesHandler := handler.NewRatesHandler(rateService, val, log)
	walletHandler := handler.NewWalletHandler(walletService, val, log)
	adjustmentHandler := handler.NewAdjustmentHandler(adjustmentService, val, log)
	ordersHandler := handler.NewOrderHooksHandler(commissionService, val, log)
	streamHandler := handler.NewStreamHandler(hub, log)

	// Router
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(1 << 20)) // 1MB global cap
	r.Use(middleware.NewRateLimiter(redisClient, cfg.Ledger.RateLimitPerMin, time.Minute).Limit)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	idemMW := middleware.NewIdempotencyMiddleware(redisClient, cfg.Ledger.IdempotencyTTL, log)

	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ready", readyCheck(db)).Methods("GET")

	// Admin console routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)

	api.HandleFunc("/rates", ratesHandler.GetGlobalRates).Methods("GET")
	api.HandleFunc("/partners/{id}/rates", ratesHandler.GetPartnerRates).Methods("GET")
	api.HandleFunc("/partners/{id}/overrides", ratesHandler.ListPartnerOverrides).Methods("GET")
	api.HandleFunc("/partners/{id}/wallet", walletHandler.GetWallet).Methods("GET")
	api.HandleFunc("/partners/{id}/transactions", walletHandler.ListTransactions).Methods("GET")
	api.HandleFunc("/partners/{id}/wallet/stream", streamHandler.WalletStream).Methods("GET")

	// Mutating admin routes require an Idempotency-Key
	write := api.NewRoute().Subrouter()
	write.Use(idemMW.Require)
	write.HandleFunc("/rates", ratesHandler.UpdateGlobalRates).Methods("PUT")
	write.HandleFunc("/partners/{id}/rates", ratesHandler.SetPartnerOverride).Methods("PUT")
	write.HandleFunc("/partners/{id}/rates", ratesHandler.RemovePartnerOverride).Methods("DELETE")
	write.HandleFunc("/partners/{id}/adjustments", adjustmentHandler.CreateAdjustment).Methods("POST")
	write.HandleFunc("/partners/{id}/payouts", walletHandler.RequestPayout).Methods("POST")
	write.HandleFunc("/transactions/{id}/complete", walletHandler.CompleteTransaction).Methods("POST")
	write.HandleFunc("/transactions/{id}/fail", walletHandler.FailTransaction).Methods("POST")

	// Order lifecycle hooks, called service-to-service
	internalAPI := r.PathPrefix("/internal").Subrouter()
	internalAPI.Use(authMW.Authenticate)
	internalAPI.HandleFunc("/orders/accepted", ordersHandler.OrderAccepted).Methods("POST")
	internalAPI.HandleFunc("/orders/cancelled", ordersHandler.OrderCancelled).Methods("POST")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		log.Info("Partner ledger service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down partner ledger service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Partner ledger service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Partner ledger service stopped gracefully", nil)
}

// seedDefaultRates installs the initial global rate table on first boot.
// Subsequent boots are no-ops; rates are managed through the admin API.
func seedDefaultRates(repo *postgres.RateRepository, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := repo.GetSettings(ctx); err == nil {
		return nil
	}

	defaultRate := decimal.NewFromInt(5)
	rateSet := domain.RateSet{
		Buy:  map[domain.Category]decimal.Decimal{},
		Sell: map[domain.Category]decimal.Decimal{},
	}
	for _, category := range domain.Categories() {
		rateSet.Buy[category] = defaultRate
		rateSet.Sell[category] = defaultRate
	}

	now := time.Now().UTC()
	err := repo.SeedSettings(ctx, &domain.CommissionSettings{
		ID:           uuid.New(),
		DefaultRates: rateSet,
		Version:      1,
		UpdatedBy:    uuid.Nil,
		UpdatedAt:    now,
		CreatedAt:    now,
	})
	if err != nil {
		return err
	}

	log.Info("Seeded default commission rates", map[string]interface{}{
		"rate": defaultRate.String(),
	})
	return nil
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	_ = r
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"partner-ledger"}`))
}

func readyCheck(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"partner-ledger"}`))
	}
}
