package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/IstFranco/utn-events/internal/catalog"
	"github.com/IstFranco/utn-events/internal/config"
	"github.com/IstFranco/utn-events/internal/database"
	"github.com/IstFranco/utn-events/internal/handler"
	"github.com/IstFranco/utn-events/internal/middleware"
	"github.com/IstFranco/utn-events/internal/queue"
	"github.com/IstFranco/utn-events/internal/repository"
	"github.com/IstFranco/utn-events/internal/router"
	"github.com/IstFranco/utn-events/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()
	logger := config.NewLogger(cfg.IsProd(), cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Error("connect database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			logger.Error("migrate database", "err", err)
			os.Exit(1)
		}
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable; rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	pub, err := queue.NewPublisher(config.LoadBrokerConfig(), logger)
	if err != nil {
		logger.Error("configure event publisher", "err", err)
		os.Exit(1)
	}
	defer pub.Close()

	deps := service.Deps{
		Events:        repository.NewEventRepo(db),
		Users:         repository.NewUserRepo(db),
		Registrations: repository.NewRegistrationRepo(db),
		Songs:         repository.NewSongRepo(db),
		Votes:         repository.NewVoteRepo(db),
		Publisher:     pub,
		Logger:        logger,
	}
	if catCfg := config.LoadCatalogConfig(); catCfg.Enabled() {
		var tokens catalog.TokenCache
		if rdb != nil {
			tokens = catalog.NewRedisTokenCache(rdb, "")
		}
		deps.Catalog = catalog.NewClient(catCfg, tokens)
	} else {
		logger.Info("catalog credentials not set; track lookup disabled")
	}

	regs := service.NewRegistrationService(deps)
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status,
				"latency", v.Latency, "request_id", v.RequestID}
			if v.Error != nil {
				logger.Error("request", append(attrs, "err", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.QueryTimeout(cfg.DBQueryTimeout))

	router.RegisterRoutes(e, router.Handlers{
		Events:        handler.NewEventHandler(service.NewEventService(deps), regs),
		Registrations: handler.NewRegistrationHandler(regs),
		Profiles:      handler.NewProfileHandler(service.NewProfileService(deps)),
		Voting:        handler.NewVotingHandler(service.NewVotingService(deps)),
		DB:            db,
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
