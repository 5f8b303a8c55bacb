package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"wasteiq/api/internal/detect"
	"wasteiq/api/internal/waste"
)

type Engine struct {
	APIKey string
	Model  string
}

func New(apiKey, model string) *Engine {
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

// --------------------------- DETECT ---------------------------

// Detect sends the image with prompt and decodes {"object_name","confidence"}.
func (e *Engine) Detect(ctx context.Context, img []byte, mime, prompt string) (waste.Candidate, error) {
	if mime == "" {
		mime = "image/jpeg"
	}
	text, err := e.generate(ctx, 0.05, genai.Blob{MIMEType: mime, Data: img}, genai.Text(prompt))
	if err != nil {
		return waste.Candidate{}, err
	}
	return detect.ParseDetection(text)
}

// --------------------------- CATEGORY ---------------------------

// ChooseCategory asks the text model which of the six categories fits label.
// The raw string is returned; validation is up to the caller.
func (e *Engine) ChooseCategory(ctx context.Context, label string) (string, error) {
	text, err := e.generate(ctx, 0, genai.Text(detect.CategoryPrompt(label)))
	if err != nil {
		return "", err
	}
	return detect.ParseCategoryReply(text)
}

// --------------------------- helpers ---------------------------

func (e *Engine) generate(ctx context.Context, temperature float32, parts ...genai.Part) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is empty", detect.ErrService)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", detect.ClassifyError(err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	if m == nil {
		return "", fmt.Errorf("%w: gemini: model is nil", detect.ErrService)
	}
	// JSON only
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(temperature),
		ResponseMIMEType: "application/json",
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return "", fmt.Errorf("%w: gemini: %v", detect.ErrService, blocked)
		}
		return "", detect.ClassifyError(fmt.Errorf("gemini: %w", err))
	}
	out := firstText(resp)
	if out == "" {
		return "", fmt.Errorf("%w: gemini: empty response", detect.ErrService)
	}
	return out, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
