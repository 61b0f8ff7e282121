package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Leganyst/clinic-booking/internal/auth"
	"github.com/Leganyst/clinic-booking/internal/cache"
	"github.com/Leganyst/clinic-booking/internal/config"
	"github.com/Leganyst/clinic-booking/internal/db"
	"github.com/Leganyst/clinic-booking/internal/events"
	"github.com/Leganyst/clinic-booking/internal/logger"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/payment"
	"github.com/Leganyst/clinic-booking/internal/repository"
	"github.com/Leganyst/clinic-booking/internal/service"
	"github.com/Leganyst/clinic-booking/internal/transport/grpcapi"
	"github.com/Leganyst/clinic-booking/internal/transport/httpapi"
)

func main() {
	// 1. Config from .env and the environment.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// 2. Logger.
	lg, err := logger.New(string(cfg.App.Env), cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer lg.Sync()

	// 3. Database via GORM.
	gormDB, err := db.NewGormDB(&cfg.DB)
	if err != nil {
		lg.Fatal("init db", zap.Error(err))
	}

	// 4. Model migrations.
	if err := model.AutoMigrate(gormDB); err != nil {
		lg.Fatal("auto migrate", zap.Error(err))
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		lg.Fatal("sql DB", zap.Error(err))
	}
	defer sqlDB.Close()

	store := repository.NewStore(gormDB)

	// 5. Doctor profile cache: Redis when an address is set, in-memory LRU otherwise.
	profiles, closeCache := newProfileCache(cfg, lg)
	defer closeCache()

	// 6. Domain event publishing.
	var publisher events.Publisher = events.Noop{}
	if cfg.AMQP.Enabled {
		amqpPub, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange, lg)
		if err != nil {
			lg.Fatal("dial amqp", zap.Error(err))
		}
		publisher = amqpPub
	}
	defer publisher.Close()

	// 7. Payment verification.
	var verifier payment.Verifier
	if cfg.Payment.Enabled {
		switch cfg.Payment.Provider {
		case "razorpay":
			verifier = payment.NewRazorpayVerifier(cfg.Payment.KeyID, cfg.Payment.KeySecret)
		case "static":
			verifier = payment.NewStaticVerifier()
		default:
			lg.Fatal("unknown payment provider", zap.String("provider", cfg.Payment.Provider))
		}
	}

	// 8. Services.
	loc := cfg.Location()
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	guard := service.NewBookingGuard(cfg.Booking.ConflictWindow)
	aggregator := service.NewRatingAggregator(store, profiles, publisher, lg)

	identitySvc := service.NewIdentityService(store, tokens, profiles, aggregator, lg)
	doctorSvc := service.NewDoctorService(store, profiles, lg)
	appointmentSvc := service.NewAppointmentService(store, guard, verifier, publisher, loc, lg)
	reviewSvc := service.NewReviewService(store, aggregator, publisher, lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 9. Background rating reconciliation.
	go service.NewReconciler(aggregator, cfg.Rating.ReconcileInterval, lg).Run(ctx)

	// 10. HTTP API.
	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(httpapi.Services{
		Identity:     identitySvc,
		Doctors:      doctorSvc,
		Appointments: appointmentSvc,
		Reviews:      reviewSvc,
		DB:           store,
	}, httpapi.Options{AllowedOrigins: cfg.HTTP.AllowedOrigins, Location: loc}, lg)
	httpServer := httpapi.NewServer(cfg.HTTP.Host, cfg.HTTP.Port, handler)

	go func() {
		lg.Info("http.listen", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http serve", zap.Error(err))
		}
	}()

	// 11. gRPC: health and reflection.
	grpcServer := grpcapi.NewServer(store, 0, lg)
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		lg.Fatal("listen grpc", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}
	go grpcServer.WatchDB(ctx)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			lg.Fatal("grpc serve", zap.Error(err))
		}
	}()

	// 12. Graceful shutdown on signal.
	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
}

func newProfileCache(cfg *config.Config, lg *zap.Logger) (cache.Store[service.DoctorProfile], func()) {
	if !cfg.Cache.Enabled {
		return cache.Noop[service.DoctorProfile]{}, func() {}
	}
	if cfg.Cache.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		closeFn := func() {
			if err := client.Close(); err != nil {
				lg.Warn("redis close", zap.Error(err))
			}
		}
		return cache.NewRedis[service.DoctorProfile](client, "clinic:doctor:", cfg.Cache.TTL, lg), closeFn
	}

	lru, err := cache.NewLRU[service.DoctorProfile](cfg.Cache.Size, cfg.Cache.TTL, lg)
	if err != nil {
		lg.Fatal("init lru cache", zap.Error(err))
	}
	return lru, func() {}
}
