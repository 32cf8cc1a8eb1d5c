// Package llm holds the language-model stages of a scan: the optional OCR
// cleanup pass and the structured menu extraction.
package llm

import (
	"context"
	"errors"
	"strings"

	"menulens/api/internal/menu/types"
)

// ExtractRequest is the input of a menu extraction call.
type ExtractRequest struct {
	SourceText string
	TargetLang string
	MaxItems   int
}

// Engine is one language-model backend.
type Engine interface {
	Name() string
	GetModel() string
	Normalize(ctx context.Context, text string) (string, error)
	ExtractItems(ctx context.Context, in ExtractRequest) (types.Extraction, error)
}

type Engines struct {
	Gemini Engine
	OpenAI Engine
}

func (e *Engines) GetEngine(llmName string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(llmName)) {
	case "gemini", "":
		if e.Gemini == nil {
			return nil, errors.New("gemini engine is not configured")
		}
		return e.Gemini, nil
	case "gpt", "openai":
		if e.OpenAI == nil {
			return nil, errors.New("gpt engine is not configured")
		}
		return e.OpenAI, nil
	default:
		return nil, errors.New("unknown llm provider; use 'gemini' or 'gpt'")
	}
}
