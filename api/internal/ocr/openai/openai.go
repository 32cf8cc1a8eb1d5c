// Package openai transcribes menu photos with an OpenAI vision model through
// chat completions.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/ocr"
	"menulens/api/internal/util"
)

const defaultBaseURL = "https://api.openai.com/v1"

const DefaultPrompt = `You read a PHOTO of a restaurant menu.
Transcribe every piece of visible text exactly as printed, keeping the original script.
One menu line per output line, prices included. No translation, no commentary. Plain text only.`

type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	// Prompt is the transcription instruction, DefaultPrompt unless overridden.
	Prompt  string
	httpc   *http.Client
}

func New(key, model string) *Engine {
	return &Engine{
		APIKey:  key,
		Model:   model,
		BaseURL: defaultBaseURL,
		Prompt:  DefaultPrompt,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *Engine) Name() string { return "gpt" }

func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Recognize(ctx context.Context, image []byte, opt ocr.Options) (string, error) {
	const op = "gpt.ocr"
	if e.APIKey == "" {
		return "", types.Errorf(types.KindConfiguration, op, "OPENAI_API_KEY not set")
	}
	model := e.Model
	if opt.Model != "" {
		model = opt.Model
	}
	mime := util.PickMIME("", image)
	if !util.IsImageMIME(mime) {
		return "", types.Errorf(types.KindInvalidInput, op, "unsupported image type %q", mime)
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(image)

	user := "Transcribe the menu."
	if len(opt.Langs) > 0 {
		user += " Expected languages: " + strings.Join(opt.Langs, ", ") + "."
	}
	body := map[string]any{
		"model": model,
		"messages": []any{
			map[string]any{"role": "system", "content": e.Prompt},
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]any{"type": "text", "text": user},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
				},
			},
		},
		"temperature": 0,
	}
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(e.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", types.E(types.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", types.E(types.KindUpstreamTransport, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", types.Errorf(types.KindUpstreamTransport, op, "openai %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", types.E(types.KindUpstreamFormat, op, err)
	}
	if len(raw.Choices) == 0 {
		return "", types.Errorf(types.KindUpstreamFormat, op, "empty response")
	}
	return strings.TrimSpace(util.StripCodeFences(raw.Choices[0].Message.Content)), nil
}
