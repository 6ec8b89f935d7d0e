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

	router "github.com/dkeye/connecto/internal/adapters/http"
	sigadapter "github.com/dkeye/connecto/internal/adapters/signal"
	"github.com/dkeye/connecto/internal/app"
	"github.com/dkeye/connecto/internal/billing"
	"github.com/dkeye/connecto/internal/config"
	"github.com/dkeye/connecto/internal/notify"
	"github.com/dkeye/connecto/internal/storage"
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

	var store billing.Store
	if cfg.Database.Host != "" {
		pg, err := storage.New(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		store = pg
	} else {
		log.Warn().Msg("no database configured, wallets are in-memory only")
		store = billing.NewMemoryStore()
	}

	var events billing.Events
	if cfg.AMQP.URL != "" {
		pub, err := notify.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer pub.Close()
		events = pub
	}

	ledger := billing.NewLedger(store, events, cfg.EarnShare, cfg.MinBalanceMinutes)
	presence := app.NewPresence()
	queue := app.NewQueue()
	throttle := app.NewThrottle(cfg.MessageThrottle)

	ctl := &sigadapter.Controller{Presence: presence, ReadLimit: cfg.ReadLimit}
	ctl.Matcher = app.NewMatcher(presence, queue, throttle, ledger, ctl)
	ctl.Relay = app.NewRelay(presence, throttle, ctl, cfg.MaxMessageLen)
	presence.OnChange(ctl.OnlineChanged)

	r := router.SetupRouter(ctx, cfg, ctl, presence, ledger)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Connecto server started")
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
