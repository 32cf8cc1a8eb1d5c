package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExtractJSONObject isolates a JSON object inside model output that may carry
// prose or markdown fences around it. It returns the slice from the first '{'
// to its matching '}'. When braces never balance, the last '}' closes the slice.
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// LoadPrompt reads <dir>/<provider>/<name>.txt when present and falls back to
// the built-in text otherwise. It is meant to run once at startup.
func LoadPrompt(dir, name, provider, builtin string) string {
	if dir == "" {
		return builtin
	}
	p := filepath.Join(dir, strings.ToLower(provider), fmt.Sprintf("%s.txt", name))
	if b, err := os.ReadFile(p); err == nil && len(b) > 0 {
		return strings.TrimSpace(string(b))
	}
	return builtin
}
