package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/vehicle-rental-marketplace/internal/config"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/database"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/events"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/handler"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/logger"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/middleware"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/queue"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/ratelimit"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/repository"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/router"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/storage"
	"github.com/iliyamo/vehicle-rental-marketplace/internal/tracing"
)

func main() {
	_ = godotenv.Load() // .env is optional
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init("ccr-api", cfg.JaegerEndpoint)
	if err != nil {
		log.WithError(err).Warn("tracing disabled")
	}

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Info("redis unavailable, using in-process rate limiting and no response cache")
	} else {
		defer rdb.Close()
	}

	enforcer, err := middleware.NewEnforcer(cfg.RBACModel, cfg.RBACPolicy)
	if err != nil {
		log.WithError(err).Fatal("load authorization policy")
	}

	publisher := events.New(cfg.RabbitURL, log)
	if cfg.RabbitURL != "" {
		consumer := &queue.Consumer{URL: cfg.RabbitURL, Log: log, Notifier: queue.NewNotifier(cfg.SMTP, cfg.NotifyEmail)}
		go func() { _ = consumer.Run(ctx) }()
	}

	rl := config.LoadRateLimitConfig()
	var global ratelimit.Limiter
	switch {
	case !rl.Enabled:
	case rdb != nil:
		global = ratelimit.NewRedis(rl, rdb, log)
	default:
		global = ratelimit.NewWindow(rl.Capacity, rl.TTL)
	}

	vehicles := repository.NewVehicleRepo(store)
	users := repository.NewUserRepo(store)
	reviews := repository.NewReviewRepo(store.Primary(), store, store, cfg.ReviewTokenTTL, cfg.ReviewMinComment)
	messages := repository.NewMessageRepo(store)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)

	e := router.New(router.Deps{
		Log:           log,
		Authenticator: middleware.Authenticator{Secret: cfg.JWTSecret, AdminEmail: cfg.AdminEmail, DevAuth: cfg.DevAuth},
		Enforcer:      enforcer,
		Cache:         cache,
		Limits: router.Limits{
			Global:      global,
			KeyStrategy: rl.KeyStrategy,
			Review:      ratelimit.NewWindow(rl.Review.Limit, rl.Review.Window),
			Support:     ratelimit.NewWindow(rl.Support.Limit, rl.Support.Window),
		},
		AllowedOrigins: cfg.AllowedOrigins,

		Health:   &handler.HealthHandler{StorageMode: store.Mode},
		Auth:     handler.NewAuthHandler(cfg, users, repository.NewTokenRepo(store)),
		Vehicles: handler.NewVehicleHandler(vehicles, cache),
		Users:    handler.NewUserHandler(users, reviews),
		Bookings: handler.NewBookingHandler(repository.NewBookingRepo(store), vehicles),
		Reviews:  handler.NewReviewHandler(reviews, publisher, log),
		Support:  handler.NewSupportHandler(messages, publisher, log),
		Admin:    handler.NewAdminMessageHandler(messages),
	})

	addr := ":" + cfg.Port
	go func() {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env, "storage": store.Mode()}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	if shutdownTracing != nil {
		_ = shutdownTracing(shutdownCtx)
	}
}

// openStore connects the configured primary store and wraps it with the
// JSON-file mirror. A primary that cannot be reached at startup leaves the
// server running on the mirror alone.
func openStore(ctx context.Context, cfg config.Config, log *logrus.Logger) (*storage.Fallback, func()) {
	mirror, err := storage.NewFile(cfg.DataDir)
	if err != nil {
		log.WithError(err).Fatal("open data directory")
	}

	var primary storage.Store
	closeFn := func() {}
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := database.OpenMongo(ctx, cfg.MongoURI)
		if err != nil {
			log.WithError(err).Warn("mongo unavailable, serving from the local mirror")
			break
		}
		primary = storage.NewMongo(client, cfg.MongoDB)
		closeFn = func() { _ = client.Disconnect(context.Background()) }
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			log.WithError(err).Warn("mysql unavailable, serving from the local mirror")
			break
		}
		s, err := storage.NewMySQL(ctx, db)
		if err != nil {
			_ = db.Close()
			log.WithError(err).Warn("mysql schema setup failed, serving from the local mirror")
			break
		}
		primary = s
		closeFn = func() { _ = db.Close() }
	case config.DriverMemory:
		primary = storage.NewMemory()
	}
	return storage.NewFallback(primary, mirror, log), closeFn
}
