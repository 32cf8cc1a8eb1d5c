package llm

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/util"
)

const maxTags = 5

// FlexFloat accepts a JSON number or a numeric string ("0.8", "80%").
// Anything else, such as "high" or null, decodes as 0 without an error: the
// item is kept and scored as low model confidence rather than failing the
// whole extraction.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64); err == nil {
			if strings.HasSuffix(s, "%") {
				v /= 100
			}
			*f = FlexFloat(v)
			return nil
		}
	}
	*f = 0
	return nil
}

// flexDetected accepts either {"type":..,"confidence":..} or a bare string.
type flexDetected struct {
	Type       string
	Confidence FlexFloat
}

func (d *flexDetected) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		d.Type = s
		return nil
	}
	var obj struct {
		Type       string    `json:"type"`
		Confidence FlexFloat `json:"confidence"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	d.Type, d.Confidence = obj.Type, obj.Confidence
	return nil
}

type extractionPayload struct {
	DetectedType *flexDetected `json:"detected_type"`
	Items        []struct {
		JPText      string    `json:"jp_text"`
		PriceText   *string   `json:"price_text"`
		Title       string    `json:"en_title"`
		Description string    `json:"en_description"`
		Tags        []string  `json:"tags"`
		ImageQuery  string    `json:"image_query"`
		Confidence  FlexFloat `json:"confidence"`
	} `json:"items"`
}

// DecodeExtraction parses the model's extraction output. Surrounding prose and
// code fences are tolerated; items without any text are dropped.
func DecodeExtraction(op, raw string) (types.Extraction, error) {
	body, ok := util.ExtractJSONObject(raw)
	if !ok {
		return types.Extraction{}, types.Errorf(types.KindUpstreamFormat, op, "no JSON object in model output")
	}
	var p extractionPayload
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	if err := dec.Decode(&p); err != nil {
		return types.Extraction{}, types.Errorf(types.KindUpstreamFormat, op, "bad JSON: %w", err)
	}

	out := types.Extraction{DetectedType: types.DetectedType{Type: "unknown"}}
	if p.DetectedType != nil {
		if t := strings.TrimSpace(p.DetectedType.Type); t != "" {
			out.DetectedType.Type = strings.ToLower(t)
		}
		out.DetectedType.Confidence = Clamp01(float64(p.DetectedType.Confidence))
	}

	out.Items = make([]types.CandidateItem, 0, len(p.Items))
	for _, it := range p.Items {
		src := strings.TrimSpace(it.JPText)
		title := strings.TrimSpace(it.Title)
		if src == "" && title == "" {
			continue
		}
		var price *string
		if it.PriceText != nil {
			if s := strings.TrimSpace(*it.PriceText); s != "" {
				price = &s
			}
		}
		out.Items = append(out.Items, types.CandidateItem{
			SourceText:      src,
			PriceText:       price,
			Title:           title,
			Description:     strings.TrimSpace(it.Description),
			Tags:            cleanTags(it.Tags),
			ImageQuery:      strings.TrimSpace(it.ImageQuery),
			ModelConfidence: Clamp01(float64(it.Confidence)),
		})
	}
	return out, nil
}

// DecodeNormalized parses {"normalized_text": ...}. Empty text is a format error.
func DecodeNormalized(op, raw string) (string, error) {
	body, ok := util.ExtractJSONObject(raw)
	if !ok {
		return "", types.Errorf(types.KindUpstreamFormat, op, "no JSON object in model output")
	}
	var p struct {
		NormalizedText string `json:"normalized_text"`
	}
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return "", types.Errorf(types.KindUpstreamFormat, op, "bad JSON: %w", err)
	}
	if strings.TrimSpace(p.NormalizedText) == "" {
		return "", types.Errorf(types.KindUpstreamFormat, op, "empty normalized_text")
	}
	return strings.TrimSpace(p.NormalizedText), nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
		if len(out) == maxTags {
			break
		}
	}
	return out
}

// Clamp01 forces v into [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
