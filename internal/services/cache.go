package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/color-report-engine/internal/domain"
	"github.com/tbourn/color-report-engine/internal/repo"
)

// Variant selects one of the two draping images.
type Variant string

const (
	VariantBest  Variant = "best"
	VariantWorst Variant = "worst"
)

// Variants lists the draping variants in generation order.
var Variants = []Variant{VariantBest, VariantWorst}

// ParseVariant accepts "best" or "worst" in any case.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantBest:
		return VariantBest, nil
	case VariantWorst:
		return VariantWorst, nil
	}
	return "", ErrInvalidVariant
}

// ImageType maps the variant to its image row type.
func (v Variant) ImageType() domain.ImageType {
	if v == VariantWorst {
		return domain.ImageWorstDraping
	}
	return domain.ImageBestDraping
}

// Cache is the content cache for derived artifacts. Entries are keyed by
// (session, image type) and never overwritten, so the first writer's URL
// is the one every later reader sees.
type Cache struct {
	DB *gorm.DB
}

// Lookup returns the cached URL for the session's image, if any.
func (c *Cache) Lookup(ctx context.Context, sessionID string, typ domain.ImageType) (string, bool, error) {
	img, err := repo.GetImage(ctx, c.DB, sessionID, typ)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return img.URL, true, nil
}

// Put stores url unless an entry already exists and returns the URL that
// is cached afterwards: url itself when this call won, the earlier entry
// otherwise.
func (c *Cache) Put(ctx context.Context, sessionID string, typ domain.ImageType, url, objectKey string) (string, error) {
	inserted, err := repo.InsertImage(ctx, c.DB, sessionID, typ, url, objectKey)
	if err != nil {
		return "", err
	}
	if inserted {
		return url, nil
	}
	winner, ok, err := c.Lookup(ctx, sessionID, typ)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrConflict
	}
	return winner, nil
}

// LookupByHash returns the input photo URL of the latest completed report
// whose photo has the given content hash. Hashes are hex and compared
// case-insensitively, the way CreateDraft stores them.
func (c *Cache) LookupByHash(ctx context.Context, hash string) (string, bool, error) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	if hash == "" {
		return "", false, nil
	}
	r, err := repo.FindCompletedByHash(ctx, c.DB, hash)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return r.InputImageURL, true, nil
}
