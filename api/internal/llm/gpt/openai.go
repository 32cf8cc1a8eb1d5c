package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"menulens/api/internal/llm"
	"menulens/api/internal/menu/types"
)

const defaultBaseURL = "https://api.openai.com/v1"

type Engine struct {
	APIKey  string
	Model   string
	BaseURL string
	Prompts llm.Prompts
	httpc   *http.Client
}

func New(key, model string) *Engine {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
	}
	return &Engine{
		APIKey:  key,
		Model:   model,
		BaseURL: defaultBaseURL,
		Prompts: llm.DefaultPrompts(),
		// deadlines come from the caller's context
		httpc: &http.Client{Transport: tr},
	}
}

// WithHTTPClient overrides the internal HTTP client (e.g., for custom timeouts or tracing).
func (e *Engine) WithHTTPClient(c *http.Client) *Engine {
	if c != nil {
		e.httpc = c
	}
	return e
}

func (e *Engine) Name() string     { return "gpt" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Normalize(ctx context.Context, text string) (string, error) {
	const op = "gpt.normalize"
	out, err := e.complete(ctx, op, e.Prompts.Normalize, llm.NormalizeUserPrompt(text))
	if err != nil {
		return "", err
	}
	return llm.DecodeNormalized(op, out)
}

func (e *Engine) ExtractItems(ctx context.Context, in llm.ExtractRequest) (types.Extraction, error) {
	const op = "gpt.extract"
	out, err := e.complete(ctx, op, e.Prompts.Extract, llm.ExtractUserPrompt(in))
	if err != nil {
		return types.Extraction{}, err
	}
	return llm.DecodeExtraction(op, out)
}

// complete sends one chat completion in JSON mode and returns the message content.
func (e *Engine) complete(ctx context.Context, op, system, user string) (string, error) {
	if e.APIKey == "" {
		return "", types.Errorf(types.KindConfiguration, op, "OPENAI_API_KEY is empty")
	}
	body := map[string]any{
		"model": e.Model,
		"messages": []any{
			map[string]any{"role": "system", "content": system},
			map[string]any{"role": "user", "content": user},
		},
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
	}
	payload, _ := json.Marshal(body)

	url := strings.TrimRight(e.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
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
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
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
		return "", types.Errorf(types.KindUpstreamFormat, op, "decode envelope: %w", err)
	}
	if len(raw.Choices) == 0 {
		return "", types.Errorf(types.KindUpstreamFormat, op, "empty response")
	}
	out := strings.TrimSpace(raw.Choices[0].Message.Content)
	if out == "" {
		return "", types.E(types.KindUpstreamFormat, op, fmt.Errorf("empty message content"))
	}
	return out, nil
}
