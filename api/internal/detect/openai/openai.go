package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wasteiq/api/internal/detect"
	"wasteiq/api/internal/util"
	"wasteiq/api/internal/waste"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	httpc   *http.Client
}

func New(key, model string) *Engine {
	return &Engine{
		APIKey:  key,
		Model:   model,
		BaseURL: defaultBaseURL,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "gpt" }

func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Detect(ctx context.Context, img []byte, mime, prompt string) (waste.Candidate, error) {
	if mime == "" {
		mime = util.SniffMimeHTTP(img)
	}
	dataURL := util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(img))

	content, err := e.chat(ctx, []any{
		map[string]any{
			"role": "user",
			"content": []any{
				map[string]any{"type": "text", "text": prompt},
				map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "low"}},
			},
		},
	})
	if err != nil {
		return waste.Candidate{}, err
	}
	return detect.ParseDetection(content)
}

// ChooseCategory is the text-only tie-break call.
func (e *Engine) ChooseCategory(ctx context.Context, label string) (string, error) {
	content, err := e.chat(ctx, []any{
		map[string]any{"role": "user", "content": detect.CategoryPrompt(label)},
	})
	if err != nil {
		return "", err
	}
	return detect.ParseCategoryReply(content)
}

func (e *Engine) chat(ctx context.Context, messages []any) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: OPENAI_API_KEY not set", detect.ErrService)
	}
	body := map[string]any{
		"model":           e.Model,
		"messages":        messages,
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", detect.ErrService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", detect.ClassifyError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", detect.StatusError("openai", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("%w: openai: %v", detect.ErrService, err)
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: empty response", detect.ErrService)
	}
	return util.StripCodeFences(strings.TrimSpace(raw.Choices[0].Message.Content)), nil
}
