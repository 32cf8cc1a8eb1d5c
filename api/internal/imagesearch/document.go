package imagesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	defaultPageSize    = 5
	maxDocumentBytes   = 4 << 20
)

// Document queries a generic document search backend (a Vertex AI Search
// serving config) and digs image URLs out of the returned result documents.
type Document struct {
	endpoint string
	tokens   oauth2.TokenSource
	httpc    *http.Client
	pageSize int
	log      *slog.Logger
}

// NewDocument builds the client. endpoint is the full ":search" URL of the
// serving config; tokens supplies the bearer credential.
func NewDocument(endpoint string, tokens oauth2.TokenSource, log *slog.Logger) (*Document, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("document image search needs an endpoint")
	}
	if tokens == nil {
		return nil, errors.New("document image search needs a token source")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Document{
		endpoint: strings.TrimSpace(endpoint),
		tokens:   tokens,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		pageSize: defaultPageSize,
		log:      log,
	}, nil
}

// DefaultTokenSource returns application default credentials scoped for Google Cloud.
func DefaultTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	return google.DefaultTokenSource(ctx, cloudPlatformScope)
}

func (d *Document) Provider() Provider { return ProviderDocument }

func (d *Document) Resolve(ctx context.Context, query string) Result {
	const op = "imagesearch.document"
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Images: scored(nil)}
	}
	root, err := d.search(ctx, query)
	if err != nil {
		d.log.Warn("image search failed", "provider", ProviderDocument, "query", query, "error", err)
		return failed(op, err)
	}

	urls, truncated := PickDocumentImages(root, MaxImages)
	if truncated {
		d.log.Warn("search document traversal truncated", "query", query, "limit", MaxVisits)
	}
	if len(urls) == 0 {
		w := fmt.Sprintf("no image-like URL in search results for %q", query)
		d.log.Warn("no image candidates", "provider", ProviderDocument, "query", query)
		return Result{Images: scored(nil), Warning: w}
	}
	return Result{Images: scored(urls)}
}

// PickDocumentImages selects up to limit image URLs, one per result entry.
// Entries come from the top-level "results" sequence; a document without it is
// treated as a single entry. All entries share one visit budget.
func PickDocumentImages(root Node, limit int) (urls []string, truncated bool) {
	entries := []Node{root}
	if res, ok := root.Get("results"); ok && res.Kind == SequenceNode {
		entries = res.Items
	}
	budget := MaxVisits
	seen := map[string]bool{}
	for _, entry := range entries {
		if len(urls) == limit {
			break
		}
		if budget <= 0 {
			return urls, true
		}
		cs, visits, cut := CollectURLs(entry, budget)
		budget -= visits
		truncated = truncated || cut
		if u, ok := pickLikely(cs); ok && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	return urls, truncated
}

func (d *Document) search(ctx context.Context, query string) (Node, error) {
	tok, err := d.tokens.Token()
	if err != nil {
		return Node{}, fmt.Errorf("token: %w", err)
	}
	payload, _ := json.Marshal(map[string]any{
		"query":    query,
		"pageSize": d.pageSize,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Node{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	tok.SetAuthHeader(req)

	resp, err := d.httpc.Do(req)
	if err != nil {
		return Node{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return Node{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Node{}, fmt.Errorf("document search %d: %s", resp.StatusCode, strings.TrimSpace(string(truncate(body, 512))))
	}
	return ParseNode(body)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
