// Package config loads the service settings once at startup: built-in
// defaults, then an optional YAML file, then a .env file and the process
// environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"menulens/api/internal/imagesearch"
	"menulens/api/internal/menu/types"
)

const (
	configPathEnv = "MENULENS_CONFIG"
	dotenvFile    = ".env"

	maxItemsLimit = 20
)

type Config struct {
	Port      string         `yaml:"port"`
	LogLevel  string         `yaml:"logLevel"`
	// PromptDir holds <provider>/<name>.txt prompt overrides, read once at startup.
	PromptDir string         `yaml:"promptDir"`
	Pipeline  PipelineConfig `yaml:"pipeline"`
	OCR       OCRConfig      `yaml:"ocr"`
	LLM       LLMConfig      `yaml:"llm"`
	Images    ImageConfig    `yaml:"images"`
	Database  DatabaseConfig `yaml:"database"`
	Telegram  TelegramConfig `yaml:"telegram"`
}

// PipelineConfig tunes the scan stages.
type PipelineConfig struct {
	Mode         string        `yaml:"mode"`
	MaxItems     int           `yaml:"maxItems"`
	Concurrency  int           `yaml:"concurrency"`
	OCRTimeout   time.Duration `yaml:"ocrTimeout"`
	LLMTimeout   time.Duration `yaml:"llmTimeout"`
	ImageTimeout time.Duration `yaml:"imageTimeout"`
}

type OCRConfig struct {
	Provider           string   `yaml:"provider"`
	// Model overrides the model of the gemini and gpt OCR engines.
	Model              string   `yaml:"model"`
	Langs              []string `yaml:"langs"`
	GoogleVisionAPIKey string   `yaml:"googleVisionApiKey"`
	YCOAuthToken       string   `yaml:"ycOauthToken"`
	YCFolderID         string   `yaml:"ycFolderId"`
}

type LLMConfig struct {
	Provider      string `yaml:"provider"`
	GeminiAPIKey  string `yaml:"geminiApiKey"`
	GeminiModel   string `yaml:"geminiModel"`
	OpenAIAPIKey  string `yaml:"openaiApiKey"`
	OpenAIModel   string `yaml:"openaiModel"`
	OpenAIBaseURL string `yaml:"openaiBaseUrl"`
}

// ImageConfig selects the image lookup backend. Enabled=false forces none.
type ImageConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Provider         string `yaml:"provider"`
	CSEAPIKey        string `yaml:"cseApiKey"`
	CSECX            string `yaml:"cseCx"`
	DocumentEndpoint string `yaml:"documentEndpoint"`
}

// DatabaseConfig enables the extraction cache when URL is set.
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	CacheMaxAge time.Duration `yaml:"cacheMaxAge"`
}

type TelegramConfig struct {
	BotToken   string `yaml:"botToken"`
	WebhookURL string `yaml:"webhookUrl"`
}

// Load reads the configuration. Unreadable files are logged and skipped;
// Validate reports what is missing.
func Load() Config {
	if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot read %s: %v", dotenvFile, err)
	}

	cfg := defaultConfig()
	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
			cfg = defaultConfig()
		}
	}
	cfg.applyEnvOverrides(os.LookupEnv)
	return cfg
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	// decoding onto the defaults keeps every field the file leaves out
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				log.Printf("config: %s=%q is not a number, ignored", key, v)
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				log.Printf("config: %s=%q is not a duration, ignored", key, v)
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				log.Printf("config: %s=%q is not a boolean, ignored", key, v)
				return
			}
			*dst = b
		}
	}

	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("PROMPT_DIR", &c.PromptDir)

	str("OCR_PIPELINE_MODE", &c.Pipeline.Mode)
	num("MAX_ITEMS", &c.Pipeline.MaxItems)
	num("ENRICH_CONCURRENCY", &c.Pipeline.Concurrency)
	dur("OCR_TIMEOUT", &c.Pipeline.OCRTimeout)
	dur("LLM_TIMEOUT", &c.Pipeline.LLMTimeout)
	dur("IMAGE_TIMEOUT", &c.Pipeline.ImageTimeout)

	str("OCR_PROVIDER", &c.OCR.Provider)
	str("GOOGLE_VISION_API_KEY", &c.OCR.GoogleVisionAPIKey)
	str("YC_OAUTH_TOKEN", &c.OCR.YCOAuthToken)
	str("YC_FOLDER_ID", &c.OCR.YCFolderID)
	str("OCR_MODEL", &c.OCR.Model)
	if v, ok := lookup("OCR_LANGS"); ok && strings.TrimSpace(v) != "" {
		c.OCR.Langs = splitList(v)
	}

	str("LLM_PROVIDER", &c.LLM.Provider)
	str("GEMINI_API_KEY", &c.LLM.GeminiAPIKey)
	str("GEMINI_MODEL", &c.LLM.GeminiModel)
	str("OPENAI_API_KEY", &c.LLM.OpenAIAPIKey)
	str("OPENAI_MODEL", &c.LLM.OpenAIModel)
	str("OPENAI_BASE_URL", &c.LLM.OpenAIBaseURL)

	flag("IMAGE_SEARCH_ENABLED", &c.Images.Enabled)
	str("IMAGE_SEARCH_PROVIDER", &c.Images.Provider)
	str("GOOGLE_CSE_API_KEY", &c.Images.CSEAPIKey)
	str("GOOGLE_CSE_CX", &c.Images.CSECX)
	str("DOC_SEARCH_ENDPOINT", &c.Images.DocumentEndpoint)

	str("DATABASE_URL", &c.Database.URL)
	dur("CACHE_MAX_AGE", &c.Database.CacheMaxAge)

	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("WEBHOOK_URL", &c.Telegram.WebhookURL)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ImageProvider is the effective lookup backend.
func (c Config) ImageProvider() imagesearch.Provider {
	if !c.Images.Enabled {
		return imagesearch.ProviderNone
	}
	p, err := imagesearch.ParseProvider(c.Images.Provider)
	if err != nil {
		return imagesearch.ProviderNone
	}
	return p
}

// Validate checks the settings needed by the selected providers. It runs
// before any upstream call is made.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch types.PipelineMode(c.Pipeline.Mode) {
	case types.ModeVisionOnly, types.ModeHybrid:
	default:
		add("pipeline mode %q: use vision_only or hybrid", c.Pipeline.Mode)
	}
	if c.Pipeline.MaxItems < 1 || c.Pipeline.MaxItems > maxItemsLimit {
		add("max items %d outside [1,%d]", c.Pipeline.MaxItems, maxItemsLimit)
	}

	switch strings.ToLower(c.OCR.Provider) {
	case "vision":
		if c.OCR.GoogleVisionAPIKey == "" {
			add("GOOGLE_VISION_API_KEY is required for the vision OCR provider")
		}
	case "yandex":
		if c.OCR.YCOAuthToken == "" || c.OCR.YCFolderID == "" {
			add("YC_OAUTH_TOKEN and YC_FOLDER_ID are required for the yandex OCR provider")
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			add("GEMINI_API_KEY is required for the gemini OCR provider")
		}
	case "gpt", "openai":
		if c.LLM.OpenAIAPIKey == "" {
			add("OPENAI_API_KEY is required for the gpt OCR provider")
		}
	case "tesseract":
	default:
		add("unknown OCR provider %q", c.OCR.Provider)
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "gemini", "":
		if c.LLM.GeminiAPIKey == "" {
			add("GEMINI_API_KEY is required for the gemini provider")
		}
	case "gpt", "openai":
		if c.LLM.OpenAIAPIKey == "" {
			add("OPENAI_API_KEY is required for the gpt provider")
		}
	default:
		add("unknown LLM provider %q", c.LLM.Provider)
	}

	if c.Images.Enabled {
		p, err := imagesearch.ParseProvider(c.Images.Provider)
		switch {
		case err != nil:
			add("%v", err)
		case p == imagesearch.ProviderKeyword && (c.Images.CSEAPIKey == "" || c.Images.CSECX == ""):
			add("GOOGLE_CSE_API_KEY and GOOGLE_CSE_CX are required for keyword image search")
		case p == imagesearch.ProviderDocument && c.Images.DocumentEndpoint == "":
			add("DOC_SEARCH_ENDPOINT is required for document image search")
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return types.E(types.KindConfiguration, "config.validate", errors.Join(errs...))
}

func defaultConfig() Config {
	return Config{
		Port:     "8000",
		LogLevel: "info",
		Pipeline: PipelineConfig{
			Mode:         string(types.ModeVisionOnly),
			MaxItems:     8,
			Concurrency:  4,
			OCRTimeout:   30 * time.Second,
			LLMTimeout:   40 * time.Second,
			ImageTimeout: 20 * time.Second,
		},
		OCR: OCRConfig{
			Provider: "vision",
			Langs:    []string{"ja", "en"},
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			GeminiModel: "gemini-2.5-flash",
			OpenAIModel: "gpt-4o-mini",
		},
		Images: ImageConfig{
			Enabled:  false,
			Provider: string(imagesearch.ProviderNone),
		},
		Database: DatabaseConfig{CacheMaxAge: 7 * 24 * time.Hour},
	}
}
