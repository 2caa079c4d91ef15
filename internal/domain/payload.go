package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PayloadVersion is the report payload schema written by this binary.
const PayloadVersion = 1

var (
	// ErrInvalidPayload is returned when a stored or produced payload does not
	// satisfy its schema.
	ErrInvalidPayload = errors.New("invalid report payload")

	// ErrUnsupportedPayloadVersion is returned for payloads written by a newer
	// (or unknown) schema version.
	ErrUnsupportedPayloadVersion = errors.New("unsupported report payload version")
)

// Swatch is a named color.
type Swatch struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// AnalysisV1 is version 1 of the structured analysis result.
type AnalysisV1 struct {
	Season      string   `json:"season"`
	Undertone   string   `json:"undertone,omitempty"`
	Contrast    string   `json:"contrast,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	BestColors  []Swatch `json:"best_colors"`
	WorstColors []Swatch `json:"worst_colors,omitempty"`
	Metals      []string `json:"metals,omitempty"`
}

// Payload is the stored report payload: a tagged union keyed by
// SchemaVersion. Exactly one of the version fields is set after decoding.
type Payload struct {
	SchemaVersion int         `json:"schema_version"`
	V1            *AnalysisV1 `json:"-"`
}

type payloadEnvelope struct {
	SchemaVersion int             `json:"schema_version"`
	Data          json.RawMessage `json:"data"`
}

// NewPayload wraps a raw analysis result produced by the inference provider
// into the current payload version and validates it.
func NewPayload(raw []byte) (*Payload, error) {
	var a AnalysisV1
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p := &Payload{SchemaVersion: PayloadVersion, V1: &a}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	a.Season = NormalizeSeason(a.Season)
	return p, nil
}

// DecodePayload parses a stored payload and validates it.
func DecodePayload(raw []byte) (*Payload, error) {
	if len(raw) == 0 {
		return nil, ErrInvalidPayload
	}
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	p := &Payload{SchemaVersion: env.SchemaVersion}
	switch env.SchemaVersion {
	case 1:
		var a AnalysisV1
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		p.V1 = &a
	case 0:
		return nil, fmt.Errorf("%w: missing schema_version", ErrInvalidPayload)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedPayloadVersion, env.SchemaVersion)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode serializes the payload into its stored envelope.
func (p *Payload) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p.V1)
	if err != nil {
		return nil, err
	}
	return json.Marshal(payloadEnvelope{SchemaVersion: p.SchemaVersion, Data: data})
}

// Validate checks the invariants of the active version.
func (p *Payload) Validate() error {
	if p == nil {
		return ErrInvalidPayload
	}
	switch p.SchemaVersion {
	case 1:
		if p.V1 == nil {
			return ErrInvalidPayload
		}
		if strings.TrimSpace(p.V1.Season) == "" {
			return fmt.Errorf("%w: season is required", ErrInvalidPayload)
		}
		if len(p.V1.BestColors) == 0 {
			return fmt.Errorf("%w: best_colors is required", ErrInvalidPayload)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnsupportedPayloadVersion, p.SchemaVersion)
	}
}

// Season returns the classification label of the payload.
func (p *Payload) Season() string {
	if p == nil || p.V1 == nil {
		return ""
	}
	return p.V1.Season
}

// Colors returns the best or worst palette, for draping prompts.
func (p *Payload) Colors(best bool) []Swatch {
	if p == nil || p.V1 == nil {
		return nil
	}
	if best {
		return p.V1.BestColors
	}
	return p.V1.WorstColors
}

// NormalizeSeason trims and title-cases a season label ("true  winter" ->
// "True Winter").
func NormalizeSeason(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(s))
}
