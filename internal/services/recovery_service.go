package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/observability"
	"github.com/tbourn/color-report-engine/internal/repo"
)

const defaultSweepBatch = 100

// SweepResult counts what one sweep did.
type SweepResult struct {
	RemindersDue       int `json:"reminders_due"`
	ProcessingReverted int `json:"processing_reverted"`
}

// RecoveryService finds reports that need attention:
//   - protected reports left unpaid for ReminderAfter get exactly one
//     recovery reminder event;
//   - reports stuck in processing for StaleProcessingAfter (a crashed or
//     abandoned analysis) go back to draft so the owner can retry. Nothing
//     was charged for them.
type RecoveryService struct {
	DB     *gorm.DB
	Events Publisher

	ReminderAfter        time.Duration
	StaleProcessingAfter time.Duration
	BatchSize            int

	Now func() time.Time
}

// Sweep runs one pass.
func (s *RecoveryService) Sweep(ctx context.Context) (SweepResult, error) {
	tr := otel.Tracer("services/RecoveryService")
	ctx, span := tr.Start(ctx, "Sweep")
	defer span.End()

	var res SweepResult
	now := s.now()

	if s.ReminderAfter > 0 {
		stale, err := repo.ListStaleProtected(ctx, s.DB, now.Add(-s.ReminderAfter), s.batch())
		if err != nil {
			return res, err
		}
		for _, r := range stale {
			won, err := repo.MarkRecoverySent(ctx, s.DB, r.SessionID, now)
			if err != nil {
				return res, err
			}
			if !won {
				continue
			}
			res.RemindersDue++
			observability.RecoveryActions.WithLabelValues("reminder").Inc()
			publish(ctx, s.Events, Event{Type: EventRecoveryReminderDue, SessionID: r.SessionID, UserID: s.ownerOf(ctx, r.SessionID)})
		}
	}

	if s.StaleProcessingAfter > 0 {
		stuck, err := repo.ListStaleProcessing(ctx, s.DB, now.Add(-s.StaleProcessingAfter), s.batch())
		if err != nil {
			return res, err
		}
		for _, r := range stuck {
			won, err := repo.TransitionReport(ctx, s.DB, r.SessionID,
				[]domain.ReportStatus{domain.ReportProcessing}, domain.ReportDraft,
				map[string]any{"processing_at": nil})
			if err != nil {
				return res, err
			}
			if !won {
				continue
			}
			if err := repo.SetSessionStatus(ctx, s.DB, r.SessionID, domain.SessionCreated); err != nil {
				log.Warn().Err(err).Str("session_id", r.SessionID).Msg("session status sync failed")
			}
			res.ProcessingReverted++
			observability.RecoveryActions.WithLabelValues("revert_processing").Inc()
			observability.ReportTransitions.WithLabelValues(string(domain.ReportProcessing), string(domain.ReportDraft)).Inc()
			publish(ctx, s.Events, Event{Type: EventStaleAnalysisReverted, SessionID: r.SessionID})
		}
	}
	return res, nil
}

func (s *RecoveryService) ownerOf(ctx context.Context, sessionID string) string {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil || sess.OwnerEmail == nil {
		return ""
	}
	return *sess.OwnerEmail
}

func (s *RecoveryService) batch() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return defaultSweepBatch
}

func (s *RecoveryService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Sweeper runs RecoveryService.Sweep on a fixed interval until its context
// is cancelled.
type Sweeper struct {
	Service  *RecoveryService
	Interval time.Duration
}

// Start blocks, sweeping once immediately and then every Interval.
func (w *Sweeper) Start(ctx context.Context) {
	log.Info().Dur("interval", w.Interval).Msg("recovery sweeper started")
	w.runOnce(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("recovery sweeper stopped")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Sweeper) runOnce(ctx context.Context) {
	res, err := w.Service.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("recovery sweep failed")
		}
		return
	}
	if res.RemindersDue > 0 || res.ProcessingReverted > 0 {
		log.Info().Int("reminders_due", res.RemindersDue).Int("processing_reverted", res.ProcessingReverted).Msg("recovery sweep")
	}
}
