// Package app assembles the engine from configuration. The API server and
// the operator CLI share it so both run the same services against the same
// database.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/config"
	"github.com/tbourn/color-report-engine/internal/http/handlers"
	"github.com/tbourn/color-report-engine/internal/inference"
	"github.com/tbourn/color-report-engine/internal/repo"
	"github.com/tbourn/color-report-engine/internal/services"
	"github.com/tbourn/color-report-engine/internal/storage"
)

// App holds the wired services. Reports, Enrichment and Validator are nil
// until AttachProvider succeeds.
type App struct {
	Config config.Config
	DB     *gorm.DB
	Store  storage.Store
	Bus    *services.Bus

	Ledger   *services.Ledger
	Cache    *services.Cache
	Sessions *services.SessionService
	Payments *services.PaymentService
	Recovery *services.RecoveryService

	Provider   inference.Provider
	Reports    *services.ReportService
	Enrichment *services.EnrichmentService
	Validator  *services.ValidatorService

	closers []func() error
}

// OpenDB connects to the configured database.
func OpenDB(cfg config.Config) (*gorm.DB, error) {
	return repo.Open(repo.Options{
		Driver:       cfg.DB.Driver,
		Path:         cfg.DB.Path,
		DSN:          cfg.DB.URL,
		MaxOpenConns: cfg.DB.MaxOpenConns,
		Tracing:      cfg.OTEL.Enabled,
	})
}

// NewStore builds the configured object store.
func NewStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			PublicBaseURL:   cfg.Storage.PublicBaseURL,
		})
	case "memory", "":
		log.Warn().Msg("using in-memory object store; uploads are lost on restart")
		return storage.NewMemory(cfg.Storage.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// Open connects the database, verifies its schema and wires every service
// that does not need the inference provider.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &App{Config: cfg, DB: db}
	a.closers = append(a.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	if err := repo.EnsureSchema(ctx, db); err != nil {
		_ = a.Close()
		return nil, err
	}
	if a.Store, err = NewStore(ctx, cfg); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("object store: %w", err)
	}

	a.Bus = services.NewBus()
	a.Bus.Subscribe(services.LogEvents)
	a.closers = append(a.closers, func() error { a.Bus.Wait(); return nil })

	a.Ledger = &services.Ledger{DB: db, FreeBonus: cfg.Credits.FreeBonus}
	a.Cache = &services.Cache{DB: db}
	a.Sessions = services.NewSessionService(db, repo.Sessions{})
	a.Payments = &services.PaymentService{
		DB:         db,
		Ledger:     a.Ledger,
		Events:     a.Bus,
		Secret:     cfg.Payment.WebhookSecret,
		Tolerance:  cfg.Payment.Tolerance,
		Production: cfg.IsProduction(),
		Packs:      cfg.Credits.Packs,
	}
	a.Recovery = &services.RecoveryService{
		DB:                   db,
		Events:               a.Bus,
		ReminderAfter:        cfg.Recovery.ReminderAfter,
		StaleProcessingAfter: cfg.Recovery.StaleProcessingAfter,
	}
	return a, nil
}

// AttachProvider creates the Gemini client and the services that call it.
func (a *App) AttachProvider(ctx context.Context) error {
	g, err := inference.NewGemini(ctx, inference.GeminiConfig{
		APIKey:        a.Config.Inference.APIKey,
		AnalysisModel: a.Config.Inference.AnalysisModel,
		ImageModel:    a.Config.Inference.ImageModel,
	})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, g.Close)
	a.UseProvider(g)
	return nil
}

// UseProvider wires the provider-dependent services to p.
func (a *App) UseProvider(p inference.Provider) {
	cfg := a.Config
	a.Provider = p
	a.Reports = &services.ReportService{
		DB:              a.DB,
		Ledger:          a.Ledger,
		Cache:           a.Cache,
		Store:           a.Store,
		Provider:        p,
		Events:          a.Bus,
		AnalysisTimeout: cfg.Inference.Timeout,
		UploadURLTTL:    cfg.Storage.UploadURLTTL,
	}
	a.Enrichment = &services.EnrichmentService{
		DB:       a.DB,
		Cache:    a.Cache,
		Store:    a.Store,
		Provider: p,
		Events:   a.Bus,
		Timeout:  cfg.Inference.Timeout,
	}
	a.Validator = &services.ValidatorService{
		DB:       a.DB,
		Store:    a.Store,
		Provider: p,
		Events:   a.Bus,
		FreeUses: cfg.Credits.ValidatorFreeUses,
		Timeout:  cfg.Inference.Timeout,
	}
}

// HandlerDeps exposes the services to the HTTP layer.
func (a *App) HandlerDeps() handlers.Deps {
	return handlers.Deps{
		Sessions:       a.Sessions,
		Reports:        a.Reports,
		Enrichment:     a.Enrichment,
		Credits:        a.Ledger,
		Payments:       a.Payments,
		Validator:      a.Validator,
		DB:             a.DB,
		IdempotencyTTL: a.Config.IdempotencyTTL,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
