package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/inference"
	"github.com/tbourn/color-report-engine/internal/observability"
	"github.com/tbourn/color-report-engine/internal/repo"
	"github.com/tbourn/color-report-engine/internal/storage"
)

// drapingSwatches is how many palette entries go into a draping prompt.
const drapingSwatches = 3

// Enrichment is one generated (or cached) draping image.
type Enrichment struct {
	Variant Variant `json:"variant"`
	URL     string  `json:"url"`
	Cached  bool    `json:"cached"`
}

// EnrichmentService generates the best and worst draping images of a
// completed report. Each (session, variant) is generated at most once per
// process at a time, and the stored result is served from the cache after.
type EnrichmentService struct {
	DB       *gorm.DB
	Cache    *Cache
	Store    storage.Store
	Provider inference.Provider
	Events   Publisher

	// Timeout bounds a single image edit.
	Timeout time.Duration

	flights singleflight.Group
}

// Generate returns the variant's image, generating and caching it on first
// request. prompt overrides the color description derived from the report
// palette. Concurrent callers for the same variant share one generation and
// all receive the URL that ended up in the cache.
func (s *EnrichmentService) Generate(ctx context.Context, sessionID string, v Variant, prompt string) (*Enrichment, error) {
	tr := otel.Tracer("services/EnrichmentService")
	ctx, span := tr.Start(ctx, "Generate", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("variant", string(v)),
	))
	defer span.End()

	if v != VariantBest && v != VariantWorst {
		return nil, ErrInvalidVariant
	}
	rep, err := repo.GetReport(ctx, s.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	if rep.Status != domain.ReportCompleted {
		return nil, ErrPaymentRequired
	}

	if url, ok, err := s.Cache.Lookup(ctx, sessionID, v.ImageType()); err != nil {
		return nil, err
	} else if ok {
		observability.EnrichmentLookups.WithLabelValues(string(v), "hit").Inc()
		return &Enrichment{Variant: v, URL: url, Cached: true}, nil
	}
	observability.EnrichmentLookups.WithLabelValues(string(v), "miss").Inc()

	// The flight outlives any single caller so one disconnect does not fail
	// the others waiting on it.
	flightCtx := context.WithoutCancel(ctx)
	res, err, _ := s.flights.Do(sessionID+":"+string(v), func() (any, error) {
		return s.generate(flightCtx, rep, v, prompt)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Enrichment), nil
}

// GenerateAll generates both variants concurrently. One variant failing
// does not cancel the other; failures are reported per variant.
func (s *EnrichmentService) GenerateAll(ctx context.Context, sessionID, prompt string) (map[Variant]*Enrichment, map[Variant]error) {
	results := make(map[Variant]*Enrichment, len(Variants))
	failures := map[Variant]error{}
	out := make([]*Enrichment, len(Variants))
	errs := make([]error, len(Variants))

	var g errgroup.Group
	for i, v := range Variants {
		g.Go(func() error {
			out[i], errs[i] = s.Generate(ctx, sessionID, v, prompt)
			return nil
		})
	}
	_ = g.Wait()

	for i, v := range Variants {
		if errs[i] != nil {
			failures[v] = errs[i]
			continue
		}
		results[v] = out[i]
	}
	return results, failures
}

// Cached returns the stored drapings of the given variants, all of them when
// none is named. Variants not generated yet are left out of the map.
func (s *EnrichmentService) Cached(ctx context.Context, sessionID string, variants ...Variant) (map[Variant]*Enrichment, error) {
	if len(variants) == 0 {
		variants = Variants
	}
	out := make(map[Variant]*Enrichment, len(variants))
	for _, v := range variants {
		url, ok, err := s.Cache.Lookup(ctx, sessionID, v.ImageType())
		if err != nil {
			return nil, err
		}
		if ok {
			out[v] = &Enrichment{Variant: v, URL: url, Cached: true}
		}
	}
	return out, nil
}

func (s *EnrichmentService) generate(ctx context.Context, rep *domain.Report, v Variant, prompt string) (*Enrichment, error) {
	// A flight that finished just before this one started already cached it.
	if url, ok, err := s.Cache.Lookup(ctx, rep.SessionID, v.ImageType()); err != nil {
		return nil, err
	} else if ok {
		return &Enrichment{Variant: v, URL: url, Cached: true}, nil
	}

	src, err := sourceImage(ctx, s.DB, s.Store, rep.SessionID)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(prompt)
	if description == "" {
		description = paletteDescription(rep, v)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	edited, err := s.Provider.EditImage(callCtx, inference.EditRequest{
		Image:       *src,
		Instruction: inference.DrapingInstruction(description),
	})
	if err == nil && (edited == nil || len(edited.Data) == 0) {
		err = inference.ErrNoImage
	}
	if err != nil {
		countProviderFailure("edit_image", err)
		return nil, providerErr("edit_image", err)
	}

	key := fmt.Sprintf("drapings/%s/%s-%s%s", rep.SessionID, v, uuid.NewString(), extensionFor(edited.MIMEType))
	url, err := s.Store.Put(ctx, key, edited.Data, edited.MIMEType)
	if err != nil {
		return nil, providerErr("store_image", err)
	}
	cached, err := s.Cache.Put(ctx, rep.SessionID, v.ImageType(), url, key)
	if err != nil {
		return nil, err
	}
	if cached != url {
		// Another process won the insert; its image is the one served.
		log.Info().Str("session_id", rep.SessionID).Str("variant", string(v)).Msg("draping already cached by a concurrent writer")
		return &Enrichment{Variant: v, URL: cached, Cached: true}, nil
	}

	publish(ctx, s.Events, Event{Type: EventDrapingGenerated, SessionID: rep.SessionID, Detail: string(v)})
	return &Enrichment{Variant: v, URL: url}, nil
}

func (s *EnrichmentService) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 90 * time.Second
}

// paletteDescription names the first few swatches of the variant's palette.
func paletteDescription(rep *domain.Report, v Variant) string {
	p, err := domain.DecodePayload(rep.Payload)
	if err != nil {
		return defaultDescription(v)
	}
	swatches := p.Colors(v == VariantBest)
	if len(swatches) == 0 {
		return defaultDescription(v)
	}
	if len(swatches) > drapingSwatches {
		swatches = swatches[:drapingSwatches]
	}
	parts := make([]string, 0, len(swatches))
	for _, sw := range swatches {
		switch {
		case sw.Name != "" && sw.Hex != "":
			parts = append(parts, fmt.Sprintf("%s (%s)", sw.Name, sw.Hex))
		case sw.Name != "":
			parts = append(parts, sw.Name)
		case sw.Hex != "":
			parts = append(parts, sw.Hex)
		}
	}
	if len(parts) == 0 {
		return defaultDescription(v)
	}
	return "a solid " + strings.Join(parts, " or ")
}

func defaultDescription(v Variant) string {
	if v == VariantWorst {
		return "a color that clashes with the person's natural coloring"
	}
	return "a color that flatters the person's natural coloring"
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
