// Package pipeline runs one menu scan end to end: OCR, the optional cleanup
// pass, structured extraction, then per-item scoring and image lookup. A scan
// that produces nothing usable still answers with a single fallback item.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"menulens/api/internal/imagesearch"
	"menulens/api/internal/llm"
	"menulens/api/internal/menu/types"
	"menulens/api/internal/ocr"
	"menulens/api/internal/score"
)

const (
	DefaultMaxItems     = 8
	MaxItemsLimit       = 20
	DefaultConcurrency  = 4
	DefaultOCRTimeout   = 30 * time.Second
	DefaultLLMTimeout   = 40 * time.Second
	DefaultImageTimeout = 20 * time.Second
)

// Config is fixed for the lifetime of an Orchestrator.
type Config struct {
	Mode         types.PipelineMode
	MaxItems     int
	Concurrency  int
	OCRLangs     []string
	OCRModel     string
	OCRTimeout   time.Duration
	LLMTimeout   time.Duration
	ImageTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = types.ModeVisionOnly
	}
	if c.MaxItems <= 0 {
		c.MaxItems = DefaultMaxItems
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.OCRTimeout <= 0 {
		c.OCRTimeout = DefaultOCRTimeout
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = DefaultLLMTimeout
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = DefaultImageTimeout
	}
	return c
}

func (c Config) validate() error {
	const op = "pipeline.config"
	switch c.Mode {
	case types.ModeVisionOnly, types.ModeHybrid:
	default:
		return types.Errorf(types.KindConfiguration, op, "unknown pipeline mode %q", c.Mode)
	}
	if c.MaxItems < 1 || c.MaxItems > MaxItemsLimit {
		return types.Errorf(types.KindConfiguration, op, "max items %d outside [1,%d]", c.MaxItems, MaxItemsLimit)
	}
	return nil
}

// Request is one scan.
type Request struct {
	Image      []byte
	TargetLang string
}

type Option func(*Orchestrator)

// WithCache enables the extraction cache.
func WithCache(c Cache) Option { return func(o *Orchestrator) { o.cache = c } }

func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.log = l } }

// WithIDGenerator replaces the random scan and item ids.
func WithIDGenerator(f func() string) Option { return func(o *Orchestrator) { o.newID = f } }

// Orchestrator wires the stages together. It is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	ocr    ocr.Engine
	llm    llm.Engine
	images imagesearch.Resolver
	cache  Cache
	log    *slog.Logger
	newID  func() string
}

func New(cfg Config, ocrEngine ocr.Engine, llmEngine llm.Engine, images imagesearch.Resolver, opts ...Option) (*Orchestrator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if ocrEngine == nil || llmEngine == nil {
		return nil, types.Errorf(types.KindConfiguration, "pipeline.new", "ocr and llm engines are required")
	}
	if images == nil {
		images = imagesearch.None{}
	}
	o := &Orchestrator{
		cfg:    cfg,
		ocr:    ocrEngine,
		llm:    llmEngine,
		images: images,
		log:    slog.Default(),
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("component", "pipeline")
	return o, nil
}

func (o *Orchestrator) Config() Config { return o.cfg }

// run carries what the stages learned about one scan.
type run struct {
	mode       types.PipelineMode
	lengths    types.TextLengths
	changed    bool
	sourceText string
	diag       *types.PipelineDiagnostics
}

// Scan executes the pipeline. Only hard failures (empty input, OCR or
// extraction failures, internal faults) are returned as errors.
func (o *Orchestrator) Scan(ctx context.Context, req Request) (res types.ScanResult, err error) {
	const op = "pipeline.scan"
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("scan panicked", "panic", r, "stack", string(debug.Stack()))
			res = types.ScanResult{}
			err = types.Errorf(types.KindInternal, op, "panic: %v", r)
		}
	}()

	if len(req.Image) == 0 {
		return types.ScanResult{}, types.Errorf(types.KindEmptyInput, op, "image is empty")
	}
	lang := strings.TrimSpace(req.TargetLang)
	if lang == "" {
		lang = "en"
	}
	scanID := o.newID()
	log := o.log.With("scan_id", scanID)

	raw, err := o.recognize(ctx, req.Image)
	if err != nil {
		return types.ScanResult{}, err
	}
	rn := &run{
		mode:    o.cfg.Mode,
		lengths: types.TextLengths{Raw: len([]rune(raw))},
		diag: &types.PipelineDiagnostics{
			PipelineMode:  o.cfg.Mode,
			ImageProvider: string(o.images.Provider()),
		},
	}
	log.Info("ocr done", "engine", o.ocr.Name(), "chars", rn.lengths.Raw)
	if strings.TrimSpace(raw) == "" {
		return o.fallback(scanID, rn, "empty_ocr_text"), nil
	}

	rn.sourceText = raw
	if o.cfg.Mode == types.ModeHybrid {
		out := o.normalize(ctx, raw)
		rn.diag.NormalizationAttempted = true
		if out.Err != nil {
			log.Warn("normalization failed, using raw text", "error", out.Err)
			rn.diag.NormalizationError = string(types.KindOf(out.Err))
		} else if strings.TrimSpace(out.Text) != "" {
			rn.sourceText = out.Text
			rn.changed = out.Changed
			rn.lengths.Normalized = len([]rune(out.Text))
		}
	}
	rn.lengths.Used = len([]rune(rn.sourceText))
	rn.diag.NormalizationChanged = rn.changed
	rn.diag.TextLengths = rn.lengths

	ex, cached, err := o.extract(ctx, rn.sourceText, lang)
	if err != nil {
		return types.ScanResult{}, err
	}
	rn.diag.ExtractionCached = cached
	rn.diag.ExtractedItems = len(ex.Items)
	log.Info("extraction done", "engine", o.llm.Name(), "items", len(ex.Items), "cached", cached)
	if len(ex.Items) == 0 {
		return o.fallback(scanID, rn, "no_items"), nil
	}

	items := ex.Items
	if len(items) > o.cfg.MaxItems {
		items = items[:o.cfg.MaxItems]
	}
	scored, warnings, err := o.enrich(ctx, rn, items)
	if err != nil {
		return types.ScanResult{}, err
	}
	rn.diag.ImageWarnings = warnings
	rn.diag.ReturnedItems = len(scored)
	rn.diag.EstimatedCandidates = EstimateCandidates(rn.sourceText)
	rn.diag.CoverageRatio = Coverage(len(scored), rn.diag.EstimatedCandidates)

	return assemble(scanID, detected(ex.DetectedType), scored, rn.diag), nil
}

func (o *Orchestrator) recognize(ctx context.Context, image []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.OCRTimeout)
	defer cancel()
	text, err := o.ocr.Recognize(ctx, image, ocr.Options{Langs: o.cfg.OCRLangs, Model: o.cfg.OCRModel})
	if err != nil {
		return "", classify(err, types.KindUpstreamTransport, "ocr.recognize")
	}
	return text, nil
}

func (o *Orchestrator) normalize(ctx context.Context, raw string) llm.NormalizeOutcome {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()
	return llm.TryNormalize(ctx, o.llm, raw)
}

func (o *Orchestrator) extract(ctx context.Context, text, lang string) (types.Extraction, bool, error) {
	key := CacheKey(text, lang, o.llm.Name(), o.llm.GetModel())
	if o.cache != nil {
		ex, ok, err := o.cache.Get(ctx, key)
		if err != nil {
			o.log.Warn("extraction cache read failed", "error", err)
		} else if ok {
			return ex, true, nil
		}
	}

	lctx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
	defer cancel()
	ex, err := o.llm.ExtractItems(lctx, llm.ExtractRequest{
		SourceText: text,
		TargetLang: lang,
		MaxItems:   o.cfg.MaxItems,
	})
	if err != nil {
		return types.Extraction{}, false, classify(err, types.KindUpstreamTransport, "llm.extract")
	}
	if o.cache != nil && len(ex.Items) > 0 {
		if err := o.cache.Put(ctx, key, ex); err != nil {
			o.log.Warn("extraction cache write failed", "error", err)
		}
	}
	return ex, false, nil
}

// enrich scores every item and looks up its images. Work runs concurrently
// but each result lands in the slot of its input index.
func (o *Orchestrator) enrich(ctx context.Context, rn *run, items []types.CandidateItem) ([]types.ScoredItem, []string, error) {
	out := make([]types.ScoredItem, len(items))
	notes := make([]string, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, it := range items {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("item %d: panic: %v", i, r)
				}
			}()
			s := score.Evaluate(score.Input{
				Item:                 it,
				SourceText:           rn.sourceText,
				RawTextLength:        rn.lengths.Raw,
				NormalizationChanged: rn.changed,
			})
			p := provisional(o.newID(), it, s, rn)

			ictx, cancel := context.WithTimeout(gctx, o.cfg.ImageTimeout)
			defer cancel()
			found := o.images.Resolve(ictx, imageQuery(it))
			switch {
			case found.Err != nil:
				notes[i] = fmt.Sprintf("item %d: %s", i, types.KindImageLookup)
			case found.Warning != "":
				notes[i] = fmt.Sprintf("item %d: %s", i, found.Warning)
			}
			out[i] = finalize(p, found.Images)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, types.E(types.KindInternal, "pipeline.enrich", err)
	}

	var warnings []string
	for _, n := range notes {
		if n != "" {
			warnings = append(warnings, n)
		}
	}
	return out, warnings, nil
}

func imageQuery(it types.CandidateItem) string {
	for _, q := range []string{it.ImageQuery, it.Title, it.SourceText} {
		if q = strings.TrimSpace(q); q != "" {
			return q
		}
	}
	return ""
}

// classify keeps an already classified error and wraps anything else.
func classify(err error, kind types.Kind, op string) error {
	var e *types.Error
	if errors.As(err, &e) {
		return err
	}
	return types.E(kind, op, err)
}
