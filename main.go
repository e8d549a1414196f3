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

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-grounds/internal/auth"
	"ms-grounds/internal/booking"
	booking_api "ms-grounds/internal/booking/api"
	booking_db "ms-grounds/internal/booking/db"
	rediswrap "ms-grounds/internal/booking/redis"
	"ms-grounds/internal/catalog"
	"ms-grounds/internal/closure"
	"ms-grounds/internal/config"
	"ms-grounds/internal/database/migrations"
	"ms-grounds/internal/gateway"
	gateway_api "ms-grounds/internal/gateway/api"
	"ms-grounds/internal/kafka"
	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"
	"ms-grounds/internal/payment/ledger"
	"ms-grounds/internal/payment/storage"
	"ms-grounds/internal/sweeper"
)

// noopPublisher stands in when Kafka is disabled so services never need a
// nil check before publishing.
type noopPublisher struct{}

func (noopPublisher) PublishReservationConfirmed(*models.Reservation) error { return nil }
func (noopPublisher) PublishReservationCancelled(*models.Reservation) error { return nil }
func (noopPublisher) PublishPaymentCompleted(*models.PaymentRecord) error   { return nil }

func verifyConnections(ctx context.Context, cfg *config.Config, log *logger.Logger) (*bun.DB, *redis.Client) {
	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Error("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
			time.Sleep(2 * time.Second)
			continue
		}

		err = sqldb.PingContext(ctx)
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

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	bunDB := bun.NewDB(sqldb, pgdialect.New())

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("✅ Redis connection successful to %s", cfg.Redis.Addr))

	return bunDB, redisClient
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Grounds Booking Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()

	ctx := context.Background()

	log.Info("APP", "Verifying database connections")
	bunDB, redisClient := verifyConnections(ctx, cfg, log)
	defer bunDB.Close()
	defer redisClient.Close()

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions(), log)
	if err := runner.Run(); err != nil {
		log.Fatal("MIGRATION", fmt.Sprintf("Schema migration failed: %v", err))
	}

	var reservationEvents booking.Publisher = noopPublisher{}
	var paymentEvents ledger.Publisher = noopPublisher{}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, kafka.Topics{
			ReservationConfirmed: cfg.Kafka.Topics.ReservationConfirmed,
			ReservationCancelled: cfg.Kafka.Topics.ReservationCancelled,
			PaymentCompleted:     cfg.Kafka.Topics.PaymentCompleted,
		})
		defer producer.Close()

		required := []string{
			cfg.Kafka.Topics.ReservationConfirmed,
			cfg.Kafka.Topics.ReservationCancelled,
			cfg.Kafka.Topics.PaymentCompleted,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, required); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		reservationEvents = producer
		paymentEvents = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")
	} else {
		log.Warn("KAFKA", "Kafka disabled, reservation and payment events will not be streamed")
	}

	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, &http.Client{Timeout: cfg.Catalog.Timeout})
	closures := closure.NewRegistry(bunDB)

	bookingService := booking.NewBookingService(
		&booking_db.DB{Bun: bunDB},
		rediswrap.NewRedis(redisClient),
		reservationEvents,
		closures,
		catalogClient,
		log,
	)

	paymentStore, err := storage.NewPostgreSQLStoreWithDB(bunDB.DB, log)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Payment store init failed: %v", err))
	}
	paymentLedger := ledger.NewLedger(paymentStore, bookingService, paymentEvents, log)

	txnStore := gateway.NewRedisTxnStore(redisClient, cfg.Gateways.TransactionTTL)
	reconciler := gateway.NewReconciler(txnStore, paymentLedger, log,
		gateway.NewPayHere(cfg.Gateways.PayHere, log),
		gateway.NewStripe(cfg.Gateways.Stripe, log),
	)

	bookingHandler := &booking_api.Handler{
		BookingService: bookingService,
		Closures:       closures,
		Logger:         log,
	}
	paymentHandler := gateway_api.NewHandler(reconciler, paymentLedger, log)

	authMiddleware, err := auth.Middleware(cfg.Auth.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("OIDC middleware init failed: %v", err))
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()

	// --- Public Routes ---
	// Gateways authenticate these by HMAC signature, not by bearer token.
	r.Post("/api/payment/webhook/{gateway}", paymentHandler.Webhook)
	r.Get("/api/payment/callback/{gateway}", paymentHandler.Callback)
	log.Info("ROUTER", "Public gateway routes registered under /api/payment")

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		log.Info("AUTH", "OIDC middleware applied to protected API routes")

		r.Route("/api", func(r chi.Router) {
			r.Route("/reservation", func(r chi.Router) {
				r.Post("/", bookingHandler.PlaceReservation)
				r.Get("/my", bookingHandler.ListMyReservations)
				r.Get("/{reservationId}", bookingHandler.GetReservation)
				r.Put("/{reservationId}", bookingHandler.UpdateReservation)
				r.Delete("/{reservationId}", bookingHandler.CancelReservation)
			})
			log.Info("ROUTER", "Reservation routes registered under /api/reservation")

			r.Get("/schedule/{groundId}/{date}", bookingHandler.GetSchedule)

			r.Route("/closure", func(r chi.Router) {
				r.Post("/", bookingHandler.AddClosure)
				r.Get("/{groundId}", bookingHandler.ListClosures)
				r.Delete("/{closureId}", bookingHandler.RemoveClosure)
			})
			log.Info("ROUTER", "Closure routes registered under /api/closure")

			r.Route("/payment", func(r chi.Router) {
				r.Post("/initiate", paymentHandler.InitiatePayment)
				r.Post("/cash", paymentHandler.RecordCashPayment)
				r.Get("/balance/{reservationId}", paymentHandler.GetBalance)
				r.Get("/history/{reservationId}", paymentHandler.ListPayments)
			})
			log.Info("ROUTER", "Payment routes registered under /api/payment")
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweep := sweeper.New(&booking_db.DB{Bun: bunDB}, cfg.Sweeper.Interval, log)
	sweep.Start(sweepCtx)
	log.Info("SWEEPER", fmt.Sprintf("Completion sweeper running every %s", cfg.Sweeper.Interval))

	go func() {
		log.Info("HTTP", "🚀 Grounds Booking Service running on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	stopSweeper()
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		log.Info("HTTP", "✅ Grounds Booking Service shutdown complete")
	}
}
