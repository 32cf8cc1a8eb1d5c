// Package score cross-checks extracted menu items against the recognized
// source text and fuses that evidence with the model's own confidence.
package score

import (
	"math"
	"strings"
	"unicode"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/util"
)

const (
	weightModel   = 0.55
	weightMatch   = 0.25
	weightQuality = 0.20

	penaltyStyle     = 0.12
	penaltyWeakMatch = 0.08
	penaltyLowModel  = 0.06

	weakMatchBelow = 0.35
	lowModelBelow  = 0.5
	shortTextBelow = 40

	qualityFullLength   = 180.0
	qualityChangedBonus = 0.05

	dampenAbove   = 0.95
	dampenQuality = 0.75
	dampenCap     = 0.93
)

// Input carries everything the fused score depends on.
type Input struct {
	Item                 types.CandidateItem
	SourceText           string
	RawTextLength        int
	NormalizationChanged bool
}

// Score is the outcome for one item.
type Score struct {
	MatchScore    float64
	SourceQuality float64
	StyleRisk     bool
	Final         float64
	WeakReasons   []string
}

// Evaluate computes the match score, source quality and fused confidence.
func Evaluate(in Input) Score {
	match := MatchScore(in.Item.SourceText, in.SourceText)
	quality := SourceQuality(in.RawTextLength, in.NormalizationChanged)
	style := StyleRisk(in.Item.Title, in.Item.SourceText)
	model := clamp01(in.Item.ModelConfidence)

	return Score{
		MatchScore:    match,
		SourceQuality: quality,
		StyleRisk:     style,
		Final:         Fuse(model, match, quality, style),
		WeakReasons:   WeakReasons(model, match, in.RawTextLength, style),
	}
}

// Fuse combines model confidence, text match and source quality into one
// trust score in [0,1].
func Fuse(model, match, quality float64, styleRisk bool) float64 {
	penalty := 0.0
	if styleRisk {
		penalty += penaltyStyle
	}
	if match < weakMatchBelow {
		penalty += penaltyWeakMatch
	}
	if model < lowModelBelow {
		penalty += penaltyLowModel
	}
	final := clamp01(weightModel*model + weightMatch*match + weightQuality*quality - penalty)
	// an overconfident model on a thin capture is not trusted past the cap
	if model > dampenAbove && match > dampenAbove && quality < dampenQuality {
		final = math.Min(final, dampenCap)
	}
	return final
}

// SourceQuality treats a longer capture as stronger evidence.
func SourceQuality(rawTextLength int, normalizationChanged bool) float64 {
	q := clamp01(float64(rawTextLength) / qualityFullLength)
	if normalizationChanged {
		q = math.Min(1, q+qualityChangedBonus)
	}
	return q
}

// WeakReasons lists the weak-evidence tags in a fixed order.
func WeakReasons(model, match float64, rawTextLength int, styleRisk bool) []string {
	reasons := []string{}
	if model < lowModelBelow {
		reasons = append(reasons, types.WeakLowModelConfidence)
	}
	if match < weakMatchBelow {
		reasons = append(reasons, types.WeakTextMatch)
	}
	if rawTextLength < shortTextBelow {
		reasons = append(reasons, types.WeakShortOCRText)
	}
	if styleRisk {
		reasons = append(reasons, types.WeakStyleInference)
	}
	return reasons
}

// MatchScore measures how much of the candidate's native-script text
// literally appears in the source text.
func MatchScore(candidate, source string) float64 {
	cand := util.StripSpace(candidate)
	src := util.StripSpace(source)
	if cand == "" || src == "" {
		return 0
	}
	if strings.Contains(src, cand) {
		return 1
	}

	candCJK := cjkSet(cand)
	if len(candCJK) > 0 {
		srcCJK := cjkSet(src)
		hit := 0
		for r := range candCJK {
			if _, ok := srcCJK[r]; ok {
				hit++
			}
		}
		return float64(hit) / float64(len(candCJK))
	}

	tokens := Tokens(candidate)
	if len(tokens) == 0 {
		return 0
	}
	lowered := strings.ToLower(source)
	hit := 0
	for _, tok := range tokens {
		if strings.Contains(lowered, tok) {
			hit++
		}
	}
	return float64(hit) / float64(len(tokens))
}

// IsCJK reports whether r is Hiragana, Katakana or a CJK unified ideograph.
func IsCJK(r rune) bool {
	return (r >= 0x3040 && r <= 0x309F) ||
		(r >= 0x30A0 && r <= 0x30FF) ||
		(r >= 0x4E00 && r <= 0x9FFF)
}

func cjkSet(s string) map[rune]struct{} {
	set := map[rune]struct{}{}
	for _, r := range s {
		if IsCJK(r) {
			set[r] = struct{}{}
		}
	}
	return set
}

// Tokens splits s into lowercase runs of ASCII letters and digits.
func Tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
	})
	return fields
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
