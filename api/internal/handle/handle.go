// Package handle exposes the scan pipeline over HTTP.
package handle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/pipeline"
)

// Scanner runs one scan.
type Scanner interface {
	Scan(ctx context.Context, req pipeline.Request) (types.ScanResult, error)
}

type Handle struct {
	scanner Scanner
	log     *slog.Logger
	health  func(ctx context.Context) error
}

// New builds the handlers. health may be nil; when set it backs /healthz.
func New(scanner Scanner, log *slog.Logger, health func(ctx context.Context) error) *Handle {
	if log == nil {
		log = slog.Default()
	}
	return &Handle{
		scanner: scanner,
		log:     log.With("component", "http"),
		health:  health,
	}
}

// Routes registers every endpoint on mux.
func (h *Handle) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/scan_menu", h.ScanMenu)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
