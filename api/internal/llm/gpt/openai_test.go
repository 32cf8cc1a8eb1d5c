package gpt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"menulens/api/internal/llm"
	"menulens/api/internal/menu/types"
)

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["model"] != "gpt-test" {
			t.Errorf("unexpected model %v", body["model"])
		}
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": content}}},
		})
	}))
}

func newTestEngine(url string) *Engine {
	e := New("test-key", "gpt-test")
	e.BaseURL = url
	return e
}

func TestExtractItems(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, http.StatusOK, `{"detected_type":{"type":"ramen","confidence":0.7},"items":[{"jp_text":"醤油ラーメン","en_title":"Shoyu ramen","confidence":0.9}]}`)
	defer srv.Close()

	out, err := newTestEngine(srv.URL).ExtractItems(context.Background(), llm.ExtractRequest{SourceText: "醤油ラーメン", TargetLang: "en", MaxItems: 6})
	if err != nil {
		t.Fatalf("ExtractItems: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].Title != "Shoyu ramen" {
		t.Fatalf("unexpected items: %+v", out.Items)
	}
}

func TestExtractItemsHTTPError(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, http.StatusInternalServerError, "")
	defer srv.Close()

	_, err := newTestEngine(srv.URL).ExtractItems(context.Background(), llm.ExtractRequest{SourceText: "x"})
	if !types.IsKind(err, types.KindUpstreamTransport) {
		t.Fatalf("err = %v, want upstream_transport", err)
	}
	if !strings.Contains(err.Error(), "openai 500") {
		t.Fatalf("unexpected message: %v", err)
	}
}

func TestNormalizeBadJSON(t *testing.T) {
	t.Parallel()

	srv := chatServer(t, http.StatusOK, "I fixed it for you")
	defer srv.Close()

	_, err := newTestEngine(srv.URL).Normalize(context.Background(), "醤油")
	if !types.IsKind(err, types.KindUpstreamFormat) {
		t.Fatalf("err = %v, want upstream_format", err)
	}
}

func TestMissingKey(t *testing.T) {
	t.Parallel()

	_, err := New("", "gpt-test").Normalize(context.Background(), "x")
	if !types.IsKind(err, types.KindConfiguration) {
		t.Fatalf("err = %v, want configuration", err)
	}
}
