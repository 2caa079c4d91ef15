// Package inference wraps the AI provider used for color analysis, outfit
// validation and draping image edits.
package inference

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrOverloaded marks transient provider failures (quota, overload,
	// timeouts). Callers surface these as "high demand, retry".
	ErrOverloaded = errors.New("inference provider overloaded")

	// ErrNoImage is returned when an edit produced no image bytes.
	ErrNoImage = errors.New("inference returned no image")

	// ErrBadResponse is returned when the provider answered with an empty or
	// unparsable result.
	ErrBadResponse = errors.New("inference returned an unusable response")
)

// Image is an input or output image.
type Image struct {
	Data     []byte
	MIMEType string
}

// AnalyzeRequest asks for a structured JSON answer about an image.
type AnalyzeRequest struct {
	Image       Image
	Instruction string
}

// EditRequest asks for an edited version of an image.
type EditRequest struct {
	Image       Image
	Instruction string
}

// Provider is the opaque inference dependency.
type Provider interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (json.RawMessage, error)
	EditImage(ctx context.Context, req EditRequest) (*Image, error)
}
