package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"menulens/api/internal/menu/types"
)

// Cache stores extraction results. Failures are logged and never fail a scan.
type Cache interface {
	Get(ctx context.Context, key string) (types.Extraction, bool, error)
	Put(ctx context.Context, key string, ex types.Extraction) error
}

// CacheKey identifies an extraction by its input text and the model that
// produced it.
func CacheKey(text, targetLang, engine, model string) string {
	sum := sha256.Sum256([]byte(text))
	return strings.Join([]string{
		hex.EncodeToString(sum[:]),
		strings.ToLower(targetLang),
		engine,
		model,
	}, ":")
}
