package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/rynok/market/internal/adapters/http"
	"github.com/rynok/market/internal/auth"
	"github.com/rynok/market/internal/bus"
	"github.com/rynok/market/internal/chat"
	"github.com/rynok/market/internal/config"
	"github.com/rynok/market/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	eventBus, closeBus, err := openBus(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open bus")
	}
	defer closeBus()

	resolver := auth.NewResolver(cfg.Secret)
	presence := chat.NewPresence()
	engine := chat.NewEngine(st, eventBus, presence, cfg.ReadLimit, cfg.PingPeriod)

	r := router.SetupRouter(ctx, cfg, engine, st, resolver)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("market server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func openStore(ctx context.Context, cfg *config.Config) (store.MessageStore, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Database.DSN)
	case "sqlite", "":
		return store.NewSQLiteStore(ctx, cfg.Database.DSN)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func openBus(ctx context.Context, cfg *config.Config) (bus.Bus, func(), error) {
	if cfg.Redis.Enabled {
		b, err := bus.NewRedisBus(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("module", "main").Msg("using redis broadcast bus")
		return b, func() { _ = b.Close() }, nil
	}
	b := bus.NewLocalBus()
	return b, b.Close, nil
}
