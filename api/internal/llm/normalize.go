package llm

import (
	"context"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/util"
)

// NormalizeOutcome is the result of the best-effort cleanup pass. Err is set
// when the pass failed; Text then equals the raw input.
type NormalizeOutcome struct {
	types.NormalizedText
	Err error
}

// TryNormalize runs the cleanup pass and never fails: a backend error is
// returned inside the outcome together with the unchanged raw text.
func TryNormalize(ctx context.Context, eng Engine, raw string) NormalizeOutcome {
	text, err := eng.Normalize(ctx, raw)
	if err != nil {
		return NormalizeOutcome{NormalizedText: types.NormalizedText{Text: raw}, Err: err}
	}
	return NormalizeOutcome{NormalizedText: types.NormalizedText{
		Text:    text,
		Changed: Changed(raw, text),
	}}
}

// Changed compares two texts ignoring all whitespace.
func Changed(raw, normalized string) bool {
	return util.StripSpace(raw) != util.StripSpace(normalized)
}
