package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/inference"
	"github.com/tbourn/color-report-engine/internal/repo"
)

func TestEnrichment_RequiresCompletedReport(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	id := f.analyzed(t, owner)

	if _, err := f.enrich.Generate(ctx, id, VariantBest, ""); !errors.Is(err, ErrPaymentRequired) {
		t.Fatalf("want ErrPaymentRequired, got %v", err)
	}
	if _, err := f.enrich.Generate(ctx, "missing", VariantBest, ""); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("want ErrReportNotFound, got %v", err)
	}
	if _, err := f.enrich.Generate(ctx, id, Variant("neon"), ""); !errors.Is(err, ErrInvalidVariant) {
		t.Fatalf("want ErrInvalidVariant, got %v", err)
	}
	if _, e := f.provider.calls(); e != 0 {
		t.Fatalf("provider called %d times", e)
	}
}

func TestEnrichment_GeneratesOnceThenServesCache(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.completed(t, owner)

	first, err := f.enrich.Generate(ctx, id, VariantBest, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first.Cached || !strings.Contains(first.URL, "/drapings/"+id+"/best-") || !strings.HasSuffix(first.URL, ".png") {
		t.Fatalf("unexpected first result: %+v", first)
	}
	second, err := f.enrich.Generate(ctx, id, VariantBest, "")
	if err != nil {
		t.Fatalf("cached generate: %v", err)
	}
	if !second.Cached || second.URL != first.URL {
		t.Fatalf("second call must hit the cache: %+v", second)
	}
	if _, e := f.provider.calls(); e != 1 {
		t.Fatalf("provider edits = %d, want 1", e)
	}

	view, _ := f.reports.Get(ctx, id)
	if view.Drapings[VariantBest] != first.URL {
		t.Fatalf("report view missing draping: %+v", view.Drapings)
	}
}

func TestEnrichment_ConcurrentCallersShareOneGeneration(t *testing.T) {
	f := newFixture(t, 2)
	id := f.completed(t, owner)
	f.provider.set(func(p *fakeProvider) { p.editDelay = 50 * time.Millisecond })

	const n = 6
	urls := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.enrich.Generate(context.Background(), id, VariantWorst, "")
			if err != nil {
				t.Errorf("generate: %v", err)
				return
			}
			urls[i] = res.URL
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if urls[i] != urls[0] {
			t.Fatalf("callers saw different urls: %v", urls)
		}
	}
	if _, e := f.provider.calls(); e != 1 {
		t.Fatalf("provider edits = %d, want 1", e)
	}
	img, err := repo.GetImage(context.Background(), f.db, id, domain.ImageWorstDraping)
	if err != nil || img.URL != urls[0] {
		t.Fatalf("cached row %+v (%v) does not match %s", img, err, urls[0])
	}
}

func TestEnrichment_EmptyImageIsProviderError(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.completed(t, owner)
	f.provider.set(func(p *fakeProvider) { p.edited = nil })

	_, err := f.enrich.Generate(ctx, id, VariantBest, "")
	if !errors.Is(err, ErrProvider) || !errors.Is(err, inference.ErrNoImage) {
		t.Fatalf("want ProviderError wrapping ErrNoImage, got %v", err)
	}
	if _, ok, _ := f.enrich.Cache.Lookup(ctx, id, domain.ImageBestDraping); ok {
		t.Fatalf("failed generation must not be cached")
	}
}

func TestEnrichment_GenerateAll_PartialFailure(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.completed(t, owner)

	// Pre-cache best so only worst reaches the failing provider.
	if _, err := f.enrich.Cache.Put(ctx, id, domain.ImageBestDraping, "https://cdn.test/drapings/x/best.png", "drapings/x/best.png"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	f.provider.set(func(p *fakeProvider) { p.editErr = inference.ErrOverloaded })

	results, failures := f.enrich.GenerateAll(ctx, id, "")
	if r := results[VariantBest]; r == nil || !r.Cached {
		t.Fatalf("best should come from cache: %+v", r)
	}
	var pe *ProviderError
	if err := failures[VariantWorst]; !errors.As(err, &pe) || !pe.Overloaded() {
		t.Fatalf("worst should fail as overloaded, got %v", err)
	}
	if len(results) != 1 || len(failures) != 1 {
		t.Fatalf("results=%d failures=%d", len(results), len(failures))
	}
}

func TestEnrichment_Cached(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.completed(t, owner)

	got, err := f.enrich.Cached(ctx, id)
	if err != nil || len(got) != 0 {
		t.Fatalf("nothing generated yet: %+v %v", got, err)
	}
	if _, err := f.enrich.Cache.Put(ctx, id, domain.ImageWorstDraping, "https://cdn.test/w.png", "w.png"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	got, err = f.enrich.Cached(ctx, id)
	if err != nil || len(got) != 1 || got[VariantWorst] == nil || !got[VariantWorst].Cached || got[VariantWorst].URL != "https://cdn.test/w.png" {
		t.Fatalf("all variants: %+v %v", got, err)
	}
	got, err = f.enrich.Cached(ctx, id, VariantBest)
	if err != nil || len(got) != 0 {
		t.Fatalf("best only: %+v %v", got, err)
	}
}

func TestCache_PutKeepsFirstWriter(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	id := f.completed(t, owner)

	got, err := f.enrich.Cache.Put(ctx, id, domain.ImageBestDraping, "https://cdn.test/a.png", "a.png")
	if err != nil || got != "https://cdn.test/a.png" {
		t.Fatalf("first put: %s %v", got, err)
	}
	got, err = f.enrich.Cache.Put(ctx, id, domain.ImageBestDraping, "https://cdn.test/b.png", "b.png")
	if err != nil || got != "https://cdn.test/a.png" {
		t.Fatalf("second put must return the first url, got %s %v", got, err)
	}
}

func TestPaletteDescription(t *testing.T) {
	p, err := domain.NewPayload([]byte(testAnalysis))
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	raw, _ := p.Encode()
	rep := &domain.Report{Payload: raw}

	if got := paletteDescription(rep, VariantBest); got != "a solid Emerald (#009B77) or Icy Pink (#F4C2C2)" {
		t.Fatalf("best description = %q", got)
	}
	if got := paletteDescription(rep, VariantWorst); got != "a solid Mustard (#E1AD01)" {
		t.Fatalf("worst description = %q", got)
	}
	if got := paletteDescription(&domain.Report{}, VariantWorst); got != defaultDescription(VariantWorst) {
		t.Fatalf("fallback description = %q", got)
	}
}

func TestParseVariant(t *testing.T) {
	if v, err := ParseVariant(" BEST "); err != nil || v != VariantBest {
		t.Fatalf("ParseVariant best: %v %v", v, err)
	}
	if _, err := ParseVariant("all"); !errors.Is(err, ErrInvalidVariant) {
		t.Fatalf("want ErrInvalidVariant, got %v", err)
	}
}
