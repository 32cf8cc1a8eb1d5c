package llm

import (
	"fmt"
	"strings"

	"menulens/api/internal/util"
)

const (
	PromptNormalize = "normalize"
	PromptExtract   = "extract"
)

const normalizeSystem = `You repair OCR output of a restaurant menu photo.
Fix broken characters, merged or split lines and obvious recognition noise.
Never translate, never add dishes, never drop dishes, never change prices.
Keep the original script (Japanese stays Japanese).
Return STRICT JSON: {"normalized_text": string}`

const extractSystem = `You read OCR text of a restaurant menu and list the dishes on it.
For every dish return the text exactly as written in the source script, the price as written,
a short title and one-sentence description in the target language, up to 5 lowercase tags
(e.g. "pork_possible", "spicy", "raw_fish", "vegetarian_possible"), a short English image search
query and your confidence in [0,1] that the dish really appears in the text.
Do not invent dishes or serving styles that the text does not show.
Also classify the menu (e.g. "ramen", "sushi", "izakaya", "cafe", "unknown") with a confidence.
Return STRICT JSON:
{"detected_type":{"type":string,"confidence":number},
 "items":[{"jp_text":string,"price_text":string|null,"en_title":string,"en_description":string,
           "tags":[string],"image_query":string,"confidence":number}]}`

// Prompts holds the system prompts an engine sends. They are resolved once
// when the engine is built.
type Prompts struct {
	Normalize string
	Extract   string
}

// DefaultPrompts returns the built-in system prompts.
func DefaultPrompts() Prompts {
	return Prompts{Normalize: normalizeSystem, Extract: extractSystem}
}

// LoadPrompts applies <dir>/<provider>/{normalize,extract}.txt overrides on top
// of the built-in prompts. An empty dir keeps the built-ins.
func LoadPrompts(dir, provider string) Prompts {
	return Prompts{
		Normalize: util.LoadPrompt(dir, PromptNormalize, provider, normalizeSystem),
		Extract:   util.LoadPrompt(dir, PromptExtract, provider, extractSystem),
	}
}

// ExtractUserPrompt renders the user turn of an extraction call.
func ExtractUserPrompt(in ExtractRequest) string {
	var b strings.Builder
	lang := in.TargetLang
	if lang == "" {
		lang = "en"
	}
	fmt.Fprintf(&b, "target_lang=%s. ", lang)
	if in.MaxItems > 0 {
		fmt.Fprintf(&b, "Return at most %d items, most prominent first. ", in.MaxItems)
	}
	b.WriteString("Answer with JSON only.\n\nMENU TEXT:\n")
	b.WriteString(in.SourceText)
	return b.String()
}

// NormalizeUserPrompt renders the user turn of a normalization call.
func NormalizeUserPrompt(text string) string {
	return "Answer with JSON only.\n\nOCR TEXT:\n" + text
}
