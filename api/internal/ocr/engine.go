// Package ocr turns menu photos into raw text through a pluggable backend.
package ocr

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Options tune one recognition call.
type Options struct {
	Langs []string
	Model string
}

// Engine is one OCR backend. An empty result is not an error.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, opt Options) (string, error)
}

// Engines holds the configured backends by name.
type Engines struct {
	m map[string]Engine
}

func NewEngines(engs ...Engine) *Engines {
	e := &Engines{m: map[string]Engine{}}
	for _, eng := range engs {
		if eng != nil {
			e.m[eng.Name()] = eng
		}
	}
	return e
}

func (e *Engines) GetEngine(name string) (Engine, error) {
	if eng, ok := e.m[strings.ToLower(strings.TrimSpace(name))]; ok {
		return eng, nil
	}
	names := make([]string, 0, len(e.m))
	for n := range e.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown ocr provider %q; configured: %s", name, strings.Join(names, ", "))
}
