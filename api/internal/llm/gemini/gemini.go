package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"menulens/api/internal/llm"
	"menulens/api/internal/menu/types"
)

type Engine struct {
	APIKey  string
	Model   string
	// Prompts defaults to llm.DefaultPrompts.
	Prompts llm.Prompts
	opts    []option.ClientOption
}

func New(apiKey, model string, opts ...option.ClientOption) *Engine {
	return &Engine{
		APIKey:  strings.TrimSpace(apiKey),
		Model:   strings.TrimSpace(model),
		Prompts: llm.DefaultPrompts(),
		opts:    opts,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Normalize(ctx context.Context, text string) (string, error) {
	const op = "gemini.normalize"
	out, err := e.generate(ctx, op, e.Prompts.Normalize, llm.NormalizeUserPrompt(text))
	if err != nil {
		return "", err
	}
	return llm.DecodeNormalized(op, out)
}

func (e *Engine) ExtractItems(ctx context.Context, in llm.ExtractRequest) (types.Extraction, error) {
	const op = "gemini.extract"
	out, err := e.generate(ctx, op, e.Prompts.Extract, llm.ExtractUserPrompt(in))
	if err != nil {
		return types.Extraction{}, err
	}
	return llm.DecodeExtraction(op, out)
}

// generate runs one JSON-mode generation and returns the first text part.
func (e *Engine) generate(ctx context.Context, op, system, user string) (string, error) {
	if e.APIKey == "" {
		return "", types.Errorf(types.KindConfiguration, op, "GEMINI_API_KEY is empty")
	}
	opts := append([]option.ClientOption{option.WithAPIKey(e.APIKey)}, e.opts...)
	cl, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return "", types.E(types.KindUpstreamTransport, op, err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(system)},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", types.E(types.KindUpstreamTransport, op, err)
	}
	txt := strings.TrimSpace(firstText(resp))
	if txt == "" {
		return "", types.Errorf(types.KindUpstreamFormat, op, "empty response")
	}
	return txt, nil
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
