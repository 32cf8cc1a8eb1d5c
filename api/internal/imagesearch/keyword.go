package imagesearch

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	customsearch "google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"
)

// Keyword queries the Google Programmable Search JSON API in image mode.
type Keyword struct {
	svc *customsearch.Service
	cx  string
	log *slog.Logger
}

// NewKeyword builds the client. apiKey may be empty when opts carry credentials.
func NewKeyword(ctx context.Context, apiKey, cx string, log *slog.Logger, opts ...option.ClientOption) (*Keyword, error) {
	if strings.TrimSpace(cx) == "" {
		return nil, errors.New("keyword image search needs a search engine id (cx)")
	}
	if k := strings.TrimSpace(apiKey); k != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(k)}, opts...)
	}
	svc, err := customsearch.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Keyword{svc: svc, cx: cx, log: log}, nil
}

func (k *Keyword) Provider() Provider { return ProviderKeyword }

func (k *Keyword) Resolve(ctx context.Context, query string) Result {
	const op = "imagesearch.keyword"
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Images: scored(nil)}
	}
	res, err := k.svc.Cse.List().
		Cx(k.cx).
		Q(query).
		SearchType("image").
		Safe("active").
		Num(MaxImages).
		Context(ctx).
		Do()
	if err != nil {
		k.log.Warn("image search failed", "provider", ProviderKeyword, "query", query, "error", err)
		return failed(op, err)
	}
	var links []string
	for _, it := range res.Items {
		if it == nil || strings.TrimSpace(it.Link) == "" {
			continue
		}
		links = append(links, strings.TrimSpace(it.Link))
	}
	return Result{Images: scored(links)}
}
