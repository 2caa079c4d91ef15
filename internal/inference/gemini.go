package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiConfig selects models for the Gemini provider.
type GeminiConfig struct {
	APIKey        string
	AnalysisModel string
	ImageModel    string
}

// Gemini implements Provider on Google Gemini.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGemini creates a client. Close it on shutdown.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}
	return &Gemini{client: client, cfg: cfg}, nil
}

// Close releases the underlying connection.
func (g *Gemini) Close() error { return g.client.Close() }

// Analyze implements Provider.
func (g *Gemini) Analyze(ctx context.Context, req AnalyzeRequest) (json.RawMessage, error) {
	model := g.client.GenerativeModel(g.cfg.AnalysisModel)
	model.SetTemperature(0.2)
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data},
		genai.Text(req.Instruction),
	)
	if err != nil {
		return nil, classify(err)
	}

	for _, part := range parts(resp) {
		if txt, ok := part.(genai.Text); ok {
			raw := strings.TrimSpace(string(txt))
			raw = strings.TrimPrefix(raw, "```json")
			raw = strings.TrimSuffix(strings.TrimPrefix(raw, "```"), "```")
			raw = strings.TrimSpace(raw)
			if json.Valid([]byte(raw)) {
				return json.RawMessage(raw), nil
			}
		}
	}
	return nil, ErrBadResponse
}

// EditImage implements Provider. A response without inline image data is a
// failure even if it carries text.
func (g *Gemini) EditImage(ctx context.Context, req EditRequest) (*Image, error) {
	model := g.client.GenerativeModel(g.cfg.ImageModel)

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data},
		genai.Text(req.Instruction),
	)
	if err != nil {
		return nil, classify(err)
	}

	for _, part := range parts(resp) {
		if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 && strings.HasPrefix(blob.MIMEType, "image/") {
			return &Image{Data: blob.Data, MIMEType: blob.MIMEType}, nil
		}
	}
	return nil, ErrNoImage
}

func parts(resp *genai.GenerateContentResponse) []genai.Part {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return nil
	}
	return c.Content.Parts
}

// classify maps transport errors onto ErrOverloaded when they are transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrOverloaded, err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.DeadlineExceeded:
			return fmt.Errorf("%w: %v", ErrOverloaded, err)
		}
	}
	low := strings.ToLower(err.Error())
	if strings.Contains(low, "429") || strings.Contains(low, "503") || strings.Contains(low, "overloaded") {
		return fmt.Errorf("%w: %v", ErrOverloaded, err)
	}
	return fmt.Errorf("failed to generate content: %w", err)
}
