// Package app wires configuration into a ready scan pipeline shared by the
// HTTP server and the Telegram bot.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"menulens/api/internal/config"
	"menulens/api/internal/imagesearch"
	"menulens/api/internal/llm"
	"menulens/api/internal/llm/gemini"
	"menulens/api/internal/llm/gpt"
	"menulens/api/internal/menu/types"
	"menulens/api/internal/ocr"
	ocrgemini "menulens/api/internal/ocr/gemini"
	ocropenai "menulens/api/internal/ocr/openai"
	"menulens/api/internal/ocr/tesseract"
	"menulens/api/internal/ocr/vision"
	"menulens/api/internal/ocr/yandex"
	"menulens/api/internal/pipeline"
	"menulens/api/internal/store"
	"menulens/api/internal/util"
)

// Application owns the long-lived clients.
type Application struct {
	Config   config.Config
	Pipeline *pipeline.Orchestrator
	Log      *slog.Logger

	db *sql.DB
}

// New validates cfg and builds every stage. No upstream call is made for an
// invalid configuration.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ocrEngine, err := buildOCR(ctx, cfg)
	if err != nil {
		return nil, err
	}
	llmEngine, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}
	images, err := buildImages(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &Application{Config: cfg, Log: log}
	opts := []pipeline.Option{pipeline.WithLogger(log)}
	if dsn := resolveDSN(cfg); dsn != "" {
		repo, err := a.openCache(ctx, dsn, cfg.Database.CacheMaxAge)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithCache(repo))
	}

	p, err := pipeline.New(pipeline.Config{
		Mode:         types.PipelineMode(cfg.Pipeline.Mode),
		MaxItems:     cfg.Pipeline.MaxItems,
		Concurrency:  cfg.Pipeline.Concurrency,
		OCRModel:     cfg.OCR.Model,
		OCRLangs:     cfg.OCR.Langs,
		OCRTimeout:   cfg.Pipeline.OCRTimeout,
		LLMTimeout:   cfg.Pipeline.LLMTimeout,
		ImageTimeout: cfg.Pipeline.ImageTimeout,
	}, ocrEngine, llmEngine, images, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Pipeline = p

	log.Info("pipeline ready",
		"mode", cfg.Pipeline.Mode,
		"ocr", ocrEngine.Name(),
		"llm", llmEngine.Name(),
		"model", llmEngine.GetModel(),
		"images", images.Provider(),
		"cache", a.db != nil,
	)
	return a, nil
}

func (a *Application) openCache(ctx context.Context, dsn string, maxAge time.Duration) (*store.ExtractRepo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, types.E(types.KindConfiguration, "app.cache", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, types.E(types.KindConfiguration, "app.cache", fmt.Errorf("db ping: %w", err))
	}
	repo := store.NewExtractRepo(db, maxAge)
	if err := repo.EnsureSchema(pctx); err != nil {
		_ = db.Close()
		return nil, types.E(types.KindConfiguration, "app.cache", err)
	}
	if maxAge > 0 {
		if n, err := repo.PurgeOlderThan(pctx, maxAge); err != nil {
			a.Log.Warn("purge stale extractions", "err", err)
		} else if n > 0 {
			a.Log.Info("purged stale extractions", "rows", n)
		}
	}
	a.db = db
	a.Log.Info("extraction cache connected", "db", safeDSNSummary(dsn))
	return repo, nil
}

// Health pings the cache database when one is configured.
func (a *Application) Health(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

func (a *Application) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildOCR(ctx context.Context, cfg config.Config) (ocr.Engine, error) {
	const op = "app.ocr"
	var engs []ocr.Engine
	if cfg.OCR.GoogleVisionAPIKey != "" {
		v, err := vision.New(ctx, cfg.OCR.GoogleVisionAPIKey)
		if err != nil {
			return nil, types.E(types.KindConfiguration, op, err)
		}
		engs = append(engs, v)
	}
	if cfg.OCR.YCOAuthToken != "" && cfg.OCR.YCFolderID != "" {
		engs = append(engs, yandex.New(cfg.OCR.YCOAuthToken, cfg.OCR.YCFolderID))
	}
	if cfg.LLM.GeminiAPIKey != "" {
		e := ocrgemini.New(cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)
		e.Prompt = util.LoadPrompt(cfg.PromptDir, "ocr", e.Name(), e.Prompt)
		engs = append(engs, e)
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		e := ocropenai.New(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel)
		if cfg.LLM.OpenAIBaseURL != "" {
			e.BaseURL = cfg.LLM.OpenAIBaseURL
		}
		e.Prompt = util.LoadPrompt(cfg.PromptDir, "ocr", e.Name(), e.Prompt)
		engs = append(engs, e)
	}
	if strings.EqualFold(cfg.OCR.Provider, "tesseract") {
		t, err := tesseract.New()
		if err != nil {
			return nil, types.E(types.KindConfiguration, op, err)
		}
		engs = append(engs, t)
	}
	name := cfg.OCR.Provider
	if strings.EqualFold(name, "openai") {
		name = "gpt"
	}
	eng, err := ocr.NewEngines(engs...).GetEngine(name)
	if err != nil {
		return nil, types.E(types.KindConfiguration, op, err)
	}
	return eng, nil
}

func buildLLM(cfg config.Config) (llm.Engine, error) {
	var engines llm.Engines
	if cfg.LLM.GeminiAPIKey != "" {
		e := gemini.New(cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)
		e.Prompts = llm.LoadPrompts(cfg.PromptDir, e.Name())
		engines.Gemini = e
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		e := gpt.New(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIModel)
		if cfg.LLM.OpenAIBaseURL != "" {
			e.BaseURL = cfg.LLM.OpenAIBaseURL
		}
		e.Prompts = llm.LoadPrompts(cfg.PromptDir, e.Name())
		engines.OpenAI = e
	}
	eng, err := engines.GetEngine(cfg.LLM.Provider)
	if err != nil {
		return nil, types.E(types.KindConfiguration, "app.llm", err)
	}
	return eng, nil
}

func buildImages(ctx context.Context, cfg config.Config, log *slog.Logger) (imagesearch.Resolver, error) {
	const op = "app.images"
	lg := log.With("component", "imagesearch")
	switch cfg.ImageProvider() {
	case imagesearch.ProviderKeyword:
		k, err := imagesearch.NewKeyword(ctx, cfg.Images.CSEAPIKey, cfg.Images.CSECX, lg)
		if err != nil {
			return nil, types.E(types.KindConfiguration, op, err)
		}
		return k, nil
	case imagesearch.ProviderDocument:
		ts, err := imagesearch.DefaultTokenSource(ctx)
		if err != nil {
			return nil, types.E(types.KindConfiguration, op, err)
		}
		d, err := imagesearch.NewDocument(cfg.Images.DocumentEndpoint, ts, lg)
		if err != nil {
			return nil, types.E(types.KindConfiguration, op, err)
		}
		return d, nil
	default:
		return imagesearch.None{}, nil
	}
}
