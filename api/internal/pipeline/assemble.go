package pipeline

import (
	"math"
	"sort"
	"strings"

	"menulens/api/internal/imagesearch"
	"menulens/api/internal/llm"
	"menulens/api/internal/menu/types"
	"menulens/api/internal/score"
)

const (
	fallbackTitle       = "Menu text could not be read"
	fallbackDescription = "Try again with a closer, well-lit photo of the menu."
	fallbackConfidence  = 0.2
	unknownType         = "unknown"
)

// provisional is the first phase of a ScoredItem: text and scores are final,
// images are not looked up yet.
func provisional(id string, it types.CandidateItem, s score.Score, rn *run) types.ScoredItem {
	tags := make([]string, 0, len(it.Tags))
	tags = append(tags, it.Tags...)
	return types.ScoredItem{
		ItemID:     id,
		SourceText: it.SourceText,
		PriceText:  it.PriceText,
		Confidence: s.Final,
		Preview: types.Preview{
			Title:       it.Title,
			Description: it.Description,
			Tags:        tags,
			Images:      []types.ImageCandidate{},
		},
		Diagnostics: &types.Diagnostics{
			PipelineMode:         rn.mode,
			TextLengths:          rn.lengths,
			NormalizationChanged: rn.changed,
			MatchScore:           s.MatchScore,
			SourceQuality:        s.SourceQuality,
			ModelConfidence:      llm.Clamp01(it.ModelConfidence),
			WeakReasons:          s.WeakReasons,
		},
	}
}

// finalize attaches the looked-up images, best first.
func finalize(p types.ScoredItem, images []types.ImageCandidate) types.ScoredItem {
	imgs := make([]types.ImageCandidate, 0, imagesearch.MaxImages)
	for _, im := range images {
		if len(imgs) == imagesearch.MaxImages {
			break
		}
		imgs = append(imgs, im)
	}
	sort.SliceStable(imgs, func(i, j int) bool { return imgs[i].Score > imgs[j].Score })
	p.Preview.Images = imgs
	return p
}

func assemble(scanID string, dt types.DetectedType, items []types.ScoredItem, diag *types.PipelineDiagnostics) types.ScanResult {
	out := make([]types.ScoredItem, len(items))
	for i, it := range items {
		out[i] = rounded(it)
	}
	if diag.CoverageRatio != nil {
		c := round3(*diag.CoverageRatio)
		diag.CoverageRatio = &c
	}
	dt.Confidence = round3(dt.Confidence)
	return types.ScanResult{
		ScanID:              scanID,
		DetectedType:        dt,
		Items:               out,
		PipelineDiagnostics: diag,
	}
}

func (o *Orchestrator) fallback(scanID string, rn *run, reason string) types.ScanResult {
	o.log.Warn("scan fell back", "scan_id", scanID, "reason", reason)
	rn.diag.TextLengths = rn.lengths
	rn.diag.Fallback = true
	rn.diag.FallbackReason = reason
	rn.diag.EstimatedCandidates = EstimateCandidates(rn.sourceText)
	rn.diag.CoverageRatio = Coverage(0, rn.diag.EstimatedCandidates)

	item := types.ScoredItem{
		ItemID:     o.newID(),
		SourceText: "",
		Confidence: fallbackConfidence,
		Preview: types.Preview{
			Title:       fallbackTitle,
			Description: fallbackDescription,
			Tags:        []string{"retry"},
			Images:      []types.ImageCandidate{},
		},
	}
	return assemble(scanID, types.DetectedType{Type: unknownType}, []types.ScoredItem{item}, rn.diag)
}

func rounded(it types.ScoredItem) types.ScoredItem {
	it.Confidence = round3(it.Confidence)
	imgs := make([]types.ImageCandidate, len(it.Preview.Images))
	for i, im := range it.Preview.Images {
		imgs[i] = types.ImageCandidate{URL: im.URL, Score: round3(im.Score)}
	}
	it.Preview.Images = imgs
	if it.Diagnostics != nil {
		d := *it.Diagnostics
		d.MatchScore = round3(d.MatchScore)
		d.SourceQuality = round3(d.SourceQuality)
		d.ModelConfidence = round3(d.ModelConfidence)
		it.Diagnostics = &d
	}
	return it
}

func detected(dt types.DetectedType) types.DetectedType {
	dt.Type = strings.TrimSpace(dt.Type)
	if dt.Type == "" {
		return types.DetectedType{Type: unknownType}
	}
	dt.Confidence = llm.Clamp01(dt.Confidence)
	return dt
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// EstimateCandidates counts distinct runs of two or more CJK characters,
// a rough upper bound on the dishes visible in the text.
func EstimateCandidates(text string) int {
	seen := map[string]struct{}{}
	var cur []rune
	flush := func() {
		if len(cur) >= 2 {
			seen[string(cur)] = struct{}{}
		}
		cur = cur[:0]
	}
	for _, r := range text {
		if score.IsCJK(r) {
			cur = append(cur, r)
			continue
		}
		flush()
	}
	flush()
	return len(seen)
}

// Coverage is returned/estimated capped at 1, or nil without an estimate.
func Coverage(returned, estimated int) *float64 {
	if estimated <= 0 {
		return nil
	}
	c := math.Min(1, float64(returned)/float64(estimated))
	return &c
}
