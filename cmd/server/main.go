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

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ticketing-system/internal/availability"
	"github.com/iliyamo/ticketing-system/internal/clock"
	"github.com/iliyamo/ticketing-system/internal/config"
	"github.com/iliyamo/ticketing-system/internal/database"
	"github.com/iliyamo/ticketing-system/internal/handler"
	"github.com/iliyamo/ticketing-system/internal/logging"
	"github.com/iliyamo/ticketing-system/internal/metrics"
	"github.com/iliyamo/ticketing-system/internal/middleware"
	"github.com/iliyamo/ticketing-system/internal/queue"
	"github.com/iliyamo/ticketing-system/internal/repository"
	"github.com/iliyamo/ticketing-system/internal/router"
	"github.com/iliyamo/ticketing-system/internal/service"
)

// changeBus carries inventory change signals from the services to the
// availability publisher.
type changeBus interface {
	service.Notifier
	availability.Feed
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(logging.Options{Service: "ticketing-api", Env: cfg.App.Env, Level: cfg.App.LogLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	dsn, err := cfg.DB.DataSource()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.DB.Driver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		v, err := database.Migrate(ctx, db, cfg.DB.Driver)
		if err != nil {
			return err
		}
		log.Info().Int64("version", v).Msg("schema migrated")
	}
	store := repository.NewStore(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewInventory(reg)

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() { defer wg.Done(); fn() }()
	}
	rdb := config.NewRedisClient(cfg.Redis)
	workers, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer func() {
		cancelWorkers()
		wg.Wait()
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	var bus changeBus
	if rdb != nil {
		rb := availability.NewRedisBus(rdb, log)
		spawn(func() {
			if err := rb.Run(workers); err != nil {
				log.Error().Err(err).Msg("redis change feed stopped")
			}
		})
		bus = rb
	} else {
		log.Warn().Str("addr", cfg.Redis.Address()).Msg("redis unavailable, using in-process change feed without rate limiting or caching")
		bus = availability.NewLocalBus()
	}

	events := queue.NewPublisher(cfg.Queue.URL, cfg.Queue.Queue, log)
	spawn(func() { events.Run(workers) })

	clk := clock.NewSystem()
	opts := []service.Option{
		service.WithHoldTTL(cfg.Engine.HoldTTL),
		service.WithNotifier(bus),
		service.WithOrderEvents(events),
		service.WithMetrics(m),
		service.WithLogger(log),
		service.WithReaperInterval(cfg.Engine.ReaperInterval),
		service.WithReaperBatchSize(cfg.Engine.ReaperBatchSize),
	}
	holds := service.NewHoldManager(store, clk, opts...)
	booking := service.NewBookingCoordinator(store, clk, opts...)
	batches := service.NewBatchManager(store, clk, opts...)
	inv := service.NewInventory(store, clk, opts...)
	reaper := service.NewReaper(store, clk, opts...)

	feed := availability.NewPublisher(inv, bus,
		availability.WithHeartbeat(cfg.Engine.Heartbeat),
		availability.WithLogger(log),
		availability.WithMetrics(m),
	)
	spawn(func() { reaper.Run(workers) })
	spawn(func() { feed.Run(workers) })

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	g := router.Guards{
		JWTSecret: cfg.JWT.Secret,
		Sales:     middleware.SalesGate(batches),
		RateLimit: middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
		Cache:     middleware.NewRedisCache(cfg.Cache, rdb),
	}
	router.RegisterRoutes(e, store, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.RegisterAdmin(e, handler.NewAdminHandler(batches), g)
	router.RegisterTickets(e, handler.NewTicketHandler(inv, booking), g)
	router.RegisterCart(e, handler.NewCartHandler(holds, booking), g)
	router.RegisterRealtime(e, handler.NewAvailabilityHandler(feed, log))

	addr := ":" + cfg.App.Port
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.App.Env).Str("db", cfg.DB.Driver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	// Stop the publisher first so open WebSocket streams close cleanly.
	cancelWorkers()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
