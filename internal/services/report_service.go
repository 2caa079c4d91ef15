package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/inference"
	"github.com/tbourn/color-report-engine/internal/observability"
	"github.com/tbourn/color-report-engine/internal/repo"
	"github.com/tbourn/color-report-engine/internal/storage"
)

const (
	analysisCost     int64 = 1
	unlockCost       int64 = 1
	maxFeedbackRunes       = 2000
)

// ReportService drives the report state machine:
//
//	draft -> processing -> protected -> completed
//
// Every transition is a conditional update on the current status, so two
// concurrent callers can never both move the same report. Credits are
// debited in the same transaction as the transition they pay for, and never
// before the inference result has been persisted.
type ReportService struct {
	DB       *gorm.DB
	Ledger   *Ledger
	Cache    *Cache
	Store    storage.Store
	Provider inference.Provider
	Events   Publisher

	// AnalysisTimeout bounds a single provider call.
	AnalysisTimeout time.Duration
	// UploadURLTTL is the lifetime of presigned upload URLs.
	UploadURLTTL time.Duration
}

// UploadTarget tells the client where to put its photo. When Reused is set
// the photo is already stored and the client skips the upload.
type UploadTarget struct {
	UploadURL string `json:"upload_url,omitempty"`
	PublicURL string `json:"public_url"`
	ObjectKey string `json:"object_key,omitempty"`
	Reused    bool   `json:"reused"`
}

// ReportView is the read model returned to clients. The analysis payload is
// only present once the report is completed.
type ReportView struct {
	SessionID     string              `json:"session_id"`
	Status        domain.ReportStatus `json:"status"`
	Season        *string             `json:"season,omitempty"`
	Analysis      *domain.AnalysisV1  `json:"analysis,omitempty"`
	InputImageURL string              `json:"input_image_url"`
	Drapings      map[Variant]string  `json:"drapings,omitempty"`
	Rating        *int                `json:"rating,omitempty"`
	Paid          bool                `json:"paid"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// RequestUploadTarget returns a presigned upload URL for the session's photo.
// When hash matches the photo of an earlier completed report, that stored
// photo is offered instead and no new object is created.
func (s *ReportService) RequestUploadTarget(ctx context.Context, sessionID, filename, contentType, hash string) (*UploadTarget, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "RequestUploadTarget", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return nil, ErrInvalidUpload
	}
	if _, err := repo.GetSession(ctx, s.DB, sessionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	if url, ok, err := s.Cache.LookupByHash(ctx, hash); err != nil {
		return nil, err
	} else if ok {
		return &UploadTarget{PublicURL: url, Reused: true}, nil
	}

	key := fmt.Sprintf("uploads/%s/%s-%s", sessionID, uuid.NewString(), safeFilename(filename))
	uploadURL, err := s.Store.PresignPut(ctx, key, contentType, s.UploadURLTTL)
	if err != nil {
		return nil, providerErr("presign_upload", err)
	}
	return &UploadTarget{UploadURL: uploadURL, PublicURL: s.Store.PublicURL(key), ObjectKey: key}, nil
}

// CreateDraft records the uploaded photo for a session. A second call while
// the report is still a draft replaces the photo; once analysis has started
// the photo is frozen.
func (s *ReportService) CreateDraft(ctx context.Context, sessionID, imageURL string, hash *string) (*domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "CreateDraft", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	imageURL = strings.TrimSpace(imageURL)
	if imageURL == "" {
		return nil, ErrMissingImage
	}
	if hash != nil {
		h := strings.ToLower(strings.TrimSpace(*hash))
		hash = &h
		if h == "" {
			hash = nil
		}
	}
	if hash != nil {
		prior, ok, err := s.Cache.LookupByHash(ctx, *hash)
		if err != nil {
			return nil, err
		}
		if ok {
			imageURL = prior
		}
	}
	key, owned := s.Store.KeyForURL(imageURL)
	if !owned {
		return nil, ErrForeignImageURL
	}

	var out *domain.Report
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetSession(ctx, tx, sessionID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		existing, err := repo.GetReport(ctx, tx, sessionID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			r, err := repo.CreateReport(ctx, tx, sessionID, imageURL, hash)
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrConflict
			}
			if err != nil {
				return err
			}
			out = r
		case err != nil:
			return err
		case existing.Status != domain.ReportDraft:
			return ErrInvalidTransition
		default:
			ok, err := repo.UpdateDraftInput(ctx, tx, sessionID, imageURL, hash)
			if err != nil {
				return err
			}
			if !ok {
				return ErrInvalidTransition
			}
			if err := repo.DeleteImage(ctx, tx, sessionID, domain.ImageUserUpload); err != nil {
				return err
			}
			if out, err = repo.GetReport(ctx, tx, sessionID); err != nil {
				return err
			}
		}
		_, err = repo.InsertImage(ctx, tx, sessionID, domain.ImageUserUpload, imageURL, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RequestAnalysis runs the season analysis for a draft report and charges
// the owner one credit, unless the session was already paid for, in which
// case the report goes straight to completed without a second charge.
//
// Once the report has entered processing the remaining work is detached
// from ctx: a client that disconnects cannot leave a report stuck or a
// charge half applied.
func (s *ReportService) RequestAnalysis(ctx context.Context, sessionID, ownerEmail string) (*domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "RequestAnalysis", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	email, err := ownerIdentity(ownerEmail)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, s.DB, sessionID, email); err != nil {
		return nil, err
	}
	rep, err := s.getReport(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := analysisAllowed(rep.Status); err != nil {
		return nil, err
	}

	paid := rep.PaidAt != nil
	if !paid {
		balance, err := s.Ledger.Balance(ctx, email)
		if err != nil {
			return nil, err
		}
		if balance < analysisCost {
			return nil, ErrInsufficientCredit
		}
	}

	won, err := repo.TransitionReport(ctx, s.DB, sessionID,
		[]domain.ReportStatus{domain.ReportDraft}, domain.ReportProcessing,
		map[string]any{"processing_at": time.Now().UTC()})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, s.lostRace(ctx, sessionID)
	}
	observability.ReportTransitions.WithLabelValues(string(domain.ReportDraft), string(domain.ReportProcessing)).Inc()

	work := context.WithoutCancel(ctx)
	if err := repo.SetSessionStatus(work, s.DB, sessionID, domain.SessionAnalyzing); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session status sync failed")
	}

	payload, err := s.analyze(work, sessionID)
	if err != nil {
		s.revertToDraft(work, sessionID)
		return nil, err
	}

	target := domain.ReportProtected
	if paid {
		target = domain.ReportCompleted
	}
	err = s.DB.WithContext(work).Transaction(func(tx *gorm.DB) error {
		if err := requireOwner(work, tx, sessionID, email); err != nil {
			return err
		}
		if err := s.persistAnalysis(work, tx, sessionID, payload, target); err != nil {
			return err
		}
		if paid {
			return nil
		}
		return s.Ledger.DebitTx(work, tx, email, analysisCost, "season analysis", &sessionID)
	})
	if err != nil {
		s.revertToDraft(work, sessionID)
		return nil, err
	}
	observability.ReportTransitions.WithLabelValues(string(domain.ReportProcessing), string(target)).Inc()

	publish(work, s.Events, Event{Type: EventReportAnalyzed, SessionID: sessionID, UserID: email, Detail: payload.Season()})
	if target == domain.ReportCompleted {
		publish(work, s.Events, Event{Type: EventReportUnlocked, SessionID: sessionID, UserID: email})
	}
	return repo.GetReport(work, s.DB, sessionID)
}

// Unlock moves a protected report to completed and charges one credit in
// the same transaction. If the stored payload can no longer be decoded the
// report is paid for and re-analyzed instead; that second analysis is free.
func (s *ReportService) Unlock(ctx context.Context, sessionID, ownerEmail string) (*domain.Report, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Unlock", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	email, err := ownerIdentity(ownerEmail)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(ctx, s.DB, sessionID, email); err != nil {
		return nil, err
	}

	reanalyze := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rep, err := repo.GetReport(ctx, tx, sessionID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrReportNotFound
		}
		if err != nil {
			return err
		}
		if rep.Status != domain.ReportProtected {
			return ErrInvalidTransition
		}
		if err := requireOwner(ctx, tx, sessionID, email); err != nil {
			return err
		}

		now := time.Now().UTC()
		target := domain.ReportCompleted
		fields := map[string]any{"paid_at": now}
		if _, derr := domain.DecodePayload(rep.Payload); derr != nil {
			log.Warn().Err(derr).Str("session_id", sessionID).Msg("stored payload unreadable, re-analyzing after unlock")
			reanalyze = true
			target = domain.ReportProcessing
			fields["payload"] = nil
			fields["season"] = nil
			fields["processing_at"] = now
		}

		won, err := repo.TransitionReport(ctx, tx, sessionID, []domain.ReportStatus{domain.ReportProtected}, target, fields)
		if err != nil {
			return err
		}
		if !won {
			return ErrInvalidTransition
		}
		return s.Ledger.DebitTx(ctx, tx, email, unlockCost, "report unlock", &sessionID)
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Events, Event{Type: EventReportUnlocked, SessionID: sessionID, UserID: email, Amount: unlockCost})

	if !reanalyze {
		observability.ReportTransitions.WithLabelValues(string(domain.ReportProtected), string(domain.ReportCompleted)).Inc()
		return repo.GetReport(ctx, s.DB, sessionID)
	}

	observability.ReportTransitions.WithLabelValues(string(domain.ReportProtected), string(domain.ReportProcessing)).Inc()
	work := context.WithoutCancel(ctx)
	payload, err := s.analyze(work, sessionID)
	if err != nil {
		s.revertToDraft(work, sessionID)
		return nil, err
	}
	err = s.DB.WithContext(work).Transaction(func(tx *gorm.DB) error {
		return s.persistAnalysis(work, tx, sessionID, payload, domain.ReportCompleted)
	})
	if err != nil {
		s.revertToDraft(work, sessionID)
		return nil, err
	}
	observability.ReportTransitions.WithLabelValues(string(domain.ReportProcessing), string(domain.ReportCompleted)).Inc()
	return repo.GetReport(work, s.DB, sessionID)
}

// Get returns the client view of a report.
func (s *ReportService) Get(ctx context.Context, sessionID string) (*ReportView, error) {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "Get", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	rep, err := s.getReport(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view := &ReportView{
		SessionID:     rep.SessionID,
		Status:        rep.Status,
		Season:        rep.Season,
		InputImageURL: rep.InputImageURL,
		Rating:        rep.Rating,
		Paid:          rep.PaidAt != nil,
		UpdatedAt:     rep.UpdatedAt,
	}
	if rep.Status != domain.ReportCompleted {
		return view, nil
	}

	p, err := domain.DecodePayload(rep.Payload)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("completed report has unreadable payload")
	} else {
		view.Analysis = p.V1
	}
	images, err := repo.ListImages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		for _, v := range Variants {
			if img.Type == v.ImageType() {
				if view.Drapings == nil {
					view.Drapings = map[Variant]string{}
				}
				view.Drapings[v] = img.URL
			}
		}
	}
	return view, nil
}

// RecordFeedback stores a 1..5 rating and optional comment. Feedback is
// accepted in any report state.
func (s *ReportService) RecordFeedback(ctx context.Context, sessionID string, rating int, comment string) error {
	tr := otel.Tracer("services/ReportService")
	ctx, span := tr.Start(ctx, "RecordFeedback", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("rating", rating),
	))
	defer span.End()

	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	var c *string
	if comment = strings.TrimSpace(comment); comment != "" {
		if utf8.RuneCountInString(comment) > maxFeedbackRunes {
			comment = string([]rune(comment)[:maxFeedbackRunes])
		}
		c = &comment
	}
	err := repo.SetReportFeedback(ctx, s.DB, sessionID, rating, c)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrReportNotFound
	}
	return err
}

// analyze fetches the session photo and asks the provider for a season
// analysis. Every failure is a ProviderError.
func (s *ReportService) analyze(ctx context.Context, sessionID string) (*domain.Payload, error) {
	img, err := sourceImage(ctx, s.DB, s.Store, sessionID)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	raw, err := s.Provider.Analyze(callCtx, inference.AnalyzeRequest{
		Image:       *img,
		Instruction: inference.SeasonAnalysisInstruction,
	})
	if err != nil {
		countProviderFailure("analyze", err)
		return nil, providerErr("analyze", err)
	}
	p, err := domain.NewPayload(raw)
	if err != nil {
		countProviderFailure("analyze", err)
		return nil, providerErr("analyze", fmt.Errorf("%w: %v", inference.ErrBadResponse, err))
	}
	return p, nil
}

// persistAnalysis moves processing -> target with the payload.
func (s *ReportService) persistAnalysis(ctx context.Context, tx *gorm.DB, sessionID string, p *domain.Payload, target domain.ReportStatus) error {
	encoded, err := p.Encode()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	won, err := repo.TransitionReport(ctx, tx, sessionID,
		[]domain.ReportStatus{domain.ReportProcessing}, target,
		map[string]any{
			"payload":       datatypes.JSON(encoded),
			"season":        p.Season(),
			"analyzed_at":   now,
			"processing_at": nil,
		})
	if err != nil {
		return err
	}
	if !won {
		// The recovery sweeper reverted the row while the provider ran.
		return ErrConflict
	}
	return repo.SetSessionStatus(ctx, tx, sessionID, domain.SessionAnalyzed)
}

// revertToDraft returns a processing report to draft so the client can
// retry. PaidAt is left untouched.
func (s *ReportService) revertToDraft(ctx context.Context, sessionID string) {
	won, err := repo.TransitionReport(ctx, s.DB, sessionID,
		[]domain.ReportStatus{domain.ReportProcessing}, domain.ReportDraft,
		map[string]any{"processing_at": nil})
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("revert to draft failed; recovery sweep will retry")
		return
	}
	if won {
		observability.ReportTransitions.WithLabelValues(string(domain.ReportProcessing), string(domain.ReportDraft)).Inc()
	}
	if err := repo.SetSessionStatus(ctx, s.DB, sessionID, domain.SessionCreated); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session status sync failed")
	}
}

// lostRace explains why a draft -> processing swap did not match.
func (s *ReportService) lostRace(ctx context.Context, sessionID string) error {
	rep, err := s.getReport(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := analysisAllowed(rep.Status); err != nil {
		return err
	}
	return ErrConflict
}

func (s *ReportService) getReport(ctx context.Context, sessionID string) (*domain.Report, error) {
	rep, err := repo.GetReport(ctx, s.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	return rep, err
}

func (s *ReportService) timeout() time.Duration {
	if s.AnalysisTimeout > 0 {
		return s.AnalysisTimeout
	}
	return 90 * time.Second
}

func analysisAllowed(status domain.ReportStatus) error {
	switch status {
	case domain.ReportDraft:
		return nil
	case domain.ReportProcessing:
		return ErrAlreadyProcessing
	default:
		return ErrAlreadyAnalyzed
	}
}

// sourceImage loads the session photo from the object store.
func sourceImage(ctx context.Context, db *gorm.DB, store storage.Store, sessionID string) (*inference.Image, error) {
	img, err := repo.GetImage(ctx, db, sessionID, domain.ImageUserUpload)
	if err != nil {
		return nil, providerErr("load_source", err)
	}
	key := img.ObjectKey
	if key == "" {
		k, ok := store.KeyForURL(img.URL)
		if !ok {
			return nil, providerErr("load_source", ErrForeignImageURL)
		}
		key = k
	}
	data, contentType, err := store.Get(ctx, key)
	if err != nil {
		return nil, providerErr("load_source", err)
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = http.DetectContentType(data)
	}
	return &inference.Image{Data: data, MIMEType: contentType}, nil
}

func countProviderFailure(op string, err error) {
	overloaded := "false"
	if errors.Is(err, inference.ErrOverloaded) {
		overloaded = "true"
	}
	observability.ProviderFailures.WithLabelValues(op, overloaded).Inc()
}

var unsafeFilenameRE = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// safeFilename keeps the base name of an upload and strips anything that
// would need escaping in an object key.
func safeFilename(name string) string {
	name = unsafeFilenameRE.ReplaceAllString(path.Base(strings.ReplaceAll(name, "\\", "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "photo"
	}
	if len(name) > 80 {
		name = name[len(name)-80:]
	}
	return name
}
