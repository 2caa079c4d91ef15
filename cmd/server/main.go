// Command server runs the color report HTTP API.
//
//	@title			Color Report Engine API
//	@version		1.0
//	@description	Seasonal color analysis reports with credit-gated unlocks, drapings and an outfit validator.
//	@BasePath		/api/v1
//
//	@securityDefinitions.apikey	UserEmail
//	@in							header
//	@name						X-User-Email
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/color-report-engine/internal/app"
	"github.com/tbourn/color-report-engine/internal/config"
	httpapi "github.com/tbourn/color-report-engine/internal/http"
	"github.com/tbourn/color-report-engine/internal/observability"
	"github.com/tbourn/color-report-engine/internal/services"
	"github.com/tbourn/color-report-engine/internal/sysutil"
)

// Version information, set with -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	sysutil.SetupLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, Version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	a, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	if err := a.AttachProvider(ctx); err != nil {
		_ = a.Close()
		log.Fatal().Err(err).Msg("inference provider unavailable")
	}

	if cfg.Recovery.SweepInterval > 0 {
		sw := &services.Sweeper{Service: a.Recovery, Interval: cfg.Recovery.SweepInterval}
		go sw.Start(ctx)
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, a.HandlerDeps(), cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.Env).
			Str("version", Version).
			Str("commit", Commit).
			Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serverErr:
		log.Error().Err(err).Msg("server failed")
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
		exitCode = 1
	}
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("closing resources")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("server stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
