// Package imagesearch finds illustrative photos for extracted dishes. Lookup
// failures never fail a scan; they are reported inside Result.
package imagesearch

import (
	"context"
	"fmt"
	"math"
	"strings"

	"menulens/api/internal/menu/types"
)

// Provider names an image lookup backend.
type Provider string

const (
	ProviderNone     Provider = "none"
	ProviderKeyword  Provider = "keyword"
	ProviderDocument Provider = "document"
)

// MaxImages is the number of images attached to one item.
const MaxImages = 2

// ParseProvider accepts the canonical names and a few operator aliases.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return ProviderNone, nil
	case "keyword", "keyword-search", "google_cse", "cse":
		return ProviderKeyword, nil
	case "document", "document-search", "vertex", "discovery":
		return ProviderDocument, nil
	}
	return "", fmt.Errorf("unknown image search provider %q", s)
}

// Result is the outcome of one lookup. Err carries a swallowed failure and
// Warning a non-error note; Images is empty in both cases.
type Result struct {
	Images  []types.ImageCandidate
	Warning string
	Err     error
}

// Resolver looks up images for a query.
type Resolver interface {
	Provider() Provider
	Resolve(ctx context.Context, query string) Result
}

// None never calls out.
type None struct{}

func (None) Provider() Provider { return ProviderNone }

func (None) Resolve(context.Context, string) Result {
	return Result{Images: []types.ImageCandidate{}}
}

// RankScore is the relevance assigned to the result at 0-based rank.
func RankScore(rank int) float64 {
	return math.Max(0.5, 0.9-0.1*float64(rank))
}

func scored(urls []string) []types.ImageCandidate {
	out := make([]types.ImageCandidate, 0, len(urls))
	for i, u := range urls {
		if len(out) == MaxImages {
			break
		}
		out = append(out, types.ImageCandidate{URL: u, Score: RankScore(i)})
	}
	return out
}

func failed(op string, err error) Result {
	return Result{Images: []types.ImageCandidate{}, Err: types.E(types.KindImageLookup, op, err)}
}
