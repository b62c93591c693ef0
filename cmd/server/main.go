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
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-ticket-claim/internal/audit"
	"github.com/iliyamo/campus-ticket-claim/internal/config"
	"github.com/iliyamo/campus-ticket-claim/internal/database"
	"github.com/iliyamo/campus-ticket-claim/internal/handler"
	"github.com/iliyamo/campus-ticket-claim/internal/middleware"
	"github.com/iliyamo/campus-ticket-claim/internal/queue"
	"github.com/iliyamo/campus-ticket-claim/internal/repository"
	"github.com/iliyamo/campus-ticket-claim/internal/reservation"
	"github.com/iliyamo/campus-ticket-claim/internal/router"
	"github.com/iliyamo/campus-ticket-claim/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	log := newLogger(cfg.Env)

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
		LockWaitSec: cfg.DBLockWaitSec,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn().Msg("redis unavailable; rate limiting and response cache disabled")
	} else {
		defer rdb.Close()
	}

	inventory := repository.NewInventoryRepo(db)
	tickets := repository.NewTicketRepo(db)
	store := repository.NewClaimStore(db, inventory, tickets)

	claimCfg := config.LoadClaimConfig()
	coordinator := reservation.NewCoordinator(reservation.NewSQLStore(store), log,
		reservation.WithTxTimeout(claimCfg.TxTimeout))
	publisher := service.NewTicketPublisher(cfg.RabbitURL, log)
	defer publisher.Close()
	claims := service.NewClaimService(coordinator, publisher, claimCfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		err := queue.StartTicketConsumer(ctx, queue.ConsumerConfig{URL: cfg.RabbitURL, LogDir: cfg.TicketLogDir}, log)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("ticket consumer stopped")
		}
	}()

	if cfg.AuditInterval > 0 {
		sched, err := audit.NewAuditor(inventory, log).Start(cfg.AuditInterval)
		if err != nil {
			log.Fatal().Err(err).Msg("auditor failed to start")
		}
		defer func() { _ = sched.Shutdown() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	router.RegisterRoutes(e, db)
	router.RegisterClaims(e, handler.NewClaimHandler(claims), cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log))
	router.RegisterPublic(e, handler.NewEventHandler(inventory),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	router.RegisterTickets(e, handler.NewTicketHandler(tickets), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// newLogger writes human-readable output in dev and JSON everywhere else.
func newLogger(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).Level(zerolog.InfoLevel).With().Timestamp().Str("service", "campus-ticket-claim").Logger()
}
