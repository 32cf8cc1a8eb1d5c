package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/option"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/ocr"
)

func newTestEngine(t *testing.T, status int, body string) (*Engine, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	eng, err := New(context.Background(), "",
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		srv.Close()
		t.Fatalf("New: %v", err)
	}
	return eng, srv.Close
}

func TestRecognizePrefersFullText(t *testing.T) {
	t.Parallel()

	eng, done := newTestEngine(t, http.StatusOK, `{"responses":[{
		"fullTextAnnotation":{"text":"醤油ラーメン 900円\n"},
		"textAnnotations":[{"description":"ignored"}]}]}`)
	defer done()

	got, err := eng.Recognize(context.Background(), []byte{0xFF, 0xD8}, ocr.Options{Langs: []string{"ja"}})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got != "醤油ラーメン 900円" {
		t.Fatalf("Recognize = %q", got)
	}
}

func TestRecognizeFallsBackToFirstAnnotation(t *testing.T) {
	t.Parallel()

	eng, done := newTestEngine(t, http.StatusOK, `{"responses":[{
		"textAnnotations":[{"description":"餃子 400円"},{"description":"餃子"}]}]}`)
	defer done()

	got, err := eng.Recognize(context.Background(), []byte{0xFF, 0xD8}, ocr.Options{})
	if err != nil || got != "餃子 400円" {
		t.Fatalf("Recognize = %q, %v", got, err)
	}
}

func TestRecognizeEmpty(t *testing.T) {
	t.Parallel()

	eng, done := newTestEngine(t, http.StatusOK, `{"responses":[{}]}`)
	defer done()

	got, err := eng.Recognize(context.Background(), []byte{0xFF, 0xD8}, ocr.Options{})
	if err != nil || got != "" {
		t.Fatalf("Recognize = %q, %v", got, err)
	}
}

func TestRecognizeHTTPError(t *testing.T) {
	t.Parallel()

	eng, done := newTestEngine(t, http.StatusForbidden, `{"error":{"code":403,"message":"denied"}}`)
	defer done()

	_, err := eng.Recognize(context.Background(), []byte{0xFF, 0xD8}, ocr.Options{})
	if !types.IsKind(err, types.KindUpstreamTransport) {
		t.Fatalf("err = %v, want upstream_transport", err)
	}
}

func TestRecognizePerImageError(t *testing.T) {
	t.Parallel()

	eng, done := newTestEngine(t, http.StatusOK, `{"responses":[{"error":{"code":3,"message":"bad image"}}]}`)
	defer done()

	_, err := eng.Recognize(context.Background(), []byte{0xFF, 0xD8}, ocr.Options{})
	if !types.IsKind(err, types.KindUpstreamTransport) {
		t.Fatalf("err = %v, want upstream_transport", err)
	}
}
