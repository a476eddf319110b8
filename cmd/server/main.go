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

	"github.com/enclasse/classrelay/internal/adapters/bus"
	router "github.com/enclasse/classrelay/internal/adapters/http"
	"github.com/enclasse/classrelay/internal/adapters/video"
	"github.com/enclasse/classrelay/internal/app"
	"github.com/enclasse/classrelay/internal/config"
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

	hub := bus.NewHub(cfg.AppKey, cfg.AppSecret, cfg.ReadLimit, cfg.PingPeriod)
	store := app.NewMemoryStore()
	registers := app.NewOwnershipRegisters(hub)
	authorizer := app.NewAuthorizer(cfg.AppKey, cfg.AppSecret, store)
	relay := app.NewRelay(hub, store, registers)
	sessions := app.NewSessionService(hub, store, registers)
	tokens := video.NewIssuer(cfg.AppKey, cfg.AppSecret, cfg.TokenTTL)

	srv := router.NewServer(authorizer, relay, sessions, tokens)
	r := router.SetupRouter(ctx, cfg, srv, hub)
	addr := fmt.Sprintf(":%d", cfg.Port)

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("classrelay server started")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
