package types

// PipelineMode selects whether the normalization sub-stage runs.
type PipelineMode string

const (
	ModeVisionOnly PipelineMode = "vision_only"
	ModeHybrid     PipelineMode = "hybrid"
)

// Weak reason tags reported in item diagnostics.
const (
	WeakLowModelConfidence = "low_model_confidence"
	WeakTextMatch          = "weak_text_match"
	WeakShortOCRText       = "short_ocr_text"
	WeakStyleInference     = "possible_style_inference"
)

// NormalizedText is the output of the optional cleanup pass.
type NormalizedText struct {
	Text    string
	Changed bool
}

// CandidateItem is one dish as returned by the menu extractor.
type CandidateItem struct {
	SourceText      string
	PriceText       *string
	Title           string
	Description     string
	Tags            []string
	ImageQuery      string
	ModelConfidence float64
}

// Extraction is the structured output of the menu extractor.
type Extraction struct {
	DetectedType DetectedType
	Items        []CandidateItem
}

type DetectedType struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

type ImageCandidate struct {
	URL   string  `json:"url"`
	Score float64 `json:"score"`
}

type TextLengths struct {
	Raw        int `json:"raw"`
	Normalized int `json:"normalized"`
	Used       int `json:"used"`
}

// Diagnostics is the per-item audit trail. It never drives control flow.
type Diagnostics struct {
	PipelineMode         PipelineMode `json:"pipeline_mode"`
	TextLengths          TextLengths  `json:"text_lengths"`
	NormalizationChanged bool         `json:"normalization_changed"`
	MatchScore           float64      `json:"match_score"`
	SourceQuality        float64      `json:"source_quality"`
	ModelConfidence      float64      `json:"model_confidence"`
	WeakReasons          []string     `json:"weak_reasons"`
}

type Preview struct {
	Title       string           `json:"en_title"`
	Description string           `json:"en_description"`
	Tags        []string         `json:"tags"`
	Images      []ImageCandidate `json:"images"`
}

// ScoredItem is the response form of a CandidateItem.
type ScoredItem struct {
	ItemID      string       `json:"item_id"`
	SourceText  string       `json:"jp_text"`
	PriceText   *string      `json:"price_text"`
	Confidence  float64      `json:"confidence"`
	Preview     Preview      `json:"preview"`
	Diagnostics *Diagnostics `json:"diagnostics"`
}

// PipelineDiagnostics describes the whole run.
type PipelineDiagnostics struct {
	PipelineMode           PipelineMode `json:"pipeline_mode"`
	TextLengths            TextLengths  `json:"text_lengths"`
	NormalizationAttempted bool         `json:"normalization_attempted"`
	NormalizationChanged   bool         `json:"normalization_changed"`
	NormalizationError     string       `json:"normalization_error,omitempty"`
	ExtractionCached       bool         `json:"extraction_cached"`
	ExtractedItems         int          `json:"extracted_items"`
	ReturnedItems          int          `json:"returned_items"`
	EstimatedCandidates    int          `json:"estimated_candidates"`
	CoverageRatio          *float64     `json:"coverage_ratio"`
	ImageProvider          string       `json:"image_provider"`
	ImageWarnings          []string     `json:"image_warnings,omitempty"`
	Fallback               bool         `json:"fallback"`
	FallbackReason         string       `json:"fallback_reason,omitempty"`
}

// ScanResult is the top-level response of one scan.
type ScanResult struct {
	ScanID              string               `json:"scan_id"`
	DetectedType        DetectedType         `json:"detected_type"`
	Items               []ScoredItem         `json:"items"`
	PipelineDiagnostics *PipelineDiagnostics `json:"pipeline_diagnostics"`
}
