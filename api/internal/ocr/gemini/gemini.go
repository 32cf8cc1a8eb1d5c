// Package gemini transcribes menu photos with a multimodal Gemini model
// through the REST generateContent endpoint.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/ocr"
	"menulens/api/internal/util"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1"

const DefaultPrompt = `You read a PHOTO of a restaurant menu.
Transcribe every piece of visible text exactly as printed, keeping the original script
(Japanese kana and kanji stay as they are). Keep one menu line per output line, prices included.
Do not translate, explain or add anything. Return plain text only.`

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

func (e *Engine) Name() string { return "gemini" }

func (e *Engine) Recognize(ctx context.Context, image []byte, opt ocr.Options) (string, error) {
	const op = "gemini.ocr"
	if e.APIKey == "" {
		return "", types.Errorf(types.KindConfiguration, op, "GEMINI_API_KEY is empty")
	}
	model := e.Model
	if opt.Model != "" {
		model = opt.Model
	}
	prompt := e.Prompt
	if len(opt.Langs) > 0 {
		prompt += "\nExpected languages: " + strings.Join(opt.Langs, ", ") + "."
	}

	body := map[string]any{
		"contents": []any{
			map[string]any{
				"parts": []any{
					map[string]any{"text": prompt},
					map[string]any{"inline_data": map[string]any{
						"mime_type": util.PickMIME("", image),
						"data":      base64.StdEncoding.EncodeToString(image),
					}},
				},
			},
		},
		"generationConfig": map[string]any{"temperature": 0},
	}
	payload, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(e.BaseURL, "/"), url.PathEscape(model), url.QueryEscape(e.APIKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", types.E(types.KindInternal, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpc.Do(req)
	if err != nil {
		return "", types.E(types.KindUpstreamTransport, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", types.Errorf(types.KindUpstreamTransport, op, "gemini %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.E(types.KindUpstreamFormat, op, err)
	}
	// no candidates means nothing readable
	if len(out.Candidates) == 0 {
		return "", nil
	}
	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(util.StripCodeFences(b.String())), nil
}
