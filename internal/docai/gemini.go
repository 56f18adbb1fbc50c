package docai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/dvloznov/receipt-tracker/internal/domain"
	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// contentGenerator is the subset of *genai.Models the analyzer needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiAnalyzer is the Analyzer backed by the Gemini API.
type GeminiAnalyzer struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGeminiAnalyzer creates a Gemini client for the given API key. An empty
// key lets the SDK read GOOGLE_API_KEY / GEMINI_API_KEY itself.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiAnalyzer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiAnalyzer: create genai client: %w", err)
	}
	return newGeminiAnalyzer(client.Models, model, timeout), nil
}

func newGeminiAnalyzer(models contentGenerator, model string, timeout time.Duration) *GeminiAnalyzer {
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiAnalyzer{models: models, model: model, timeout: timeout}
}

// Analyze makes exactly one model call bounded by the configured timeout.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, img Image) (*ParsedDocument, error) {
	if len(img.Data) == 0 {
		return nil, domain.Invalid("image", "is empty")
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt()},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     img.Data,
					},
				},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}

	log := logger.FromContext(ctx)
	start := time.Now()

	resp, err := a.models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", a.timeout, err)
		}
		log.Warn().Err(err).Str("image_ref", img.Ref).Msg("Document analysis failed")
		return nil, domain.ExternalFailure(ServiceName, fmt.Errorf("generate content: %w", err))
	}

	rawText := resp.Text()
	if strings.TrimSpace(rawText) == "" {
		return nil, domain.ExternalFailure(ServiceName, errors.New("empty response from model"))
	}

	doc, err := parseModelOutput(rawText)
	if err != nil {
		log.Warn().Err(err).Str("image_ref", img.Ref).Msg("Unusable document analysis response")
		return nil, domain.ExternalFailure(ServiceName, err)
	}

	log.Debug().
		Str("image_ref", img.Ref).
		Str("model", a.model).
		Int("items", len(doc.Items)).
		Dur("elapsed", time.Since(start)).
		Msg("Document analyzed")
	return doc, nil
}

// parseModelOutput decodes the model's JSON object into a ParsedDocument.
func parseModelOutput(rawText string) (*ParsedDocument, error) {
	clean := cleanModelJSON(rawText)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(clean), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}

	if isReceipt, ok := obj["is_receipt"].(bool); ok && !isReceipt {
		return nil, errors.New("image is not a receipt")
	}

	return transformModelOutput(obj)
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		// Drop the first line (``` or ```json).
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

var _ Analyzer = (*GeminiAnalyzer)(nil)
