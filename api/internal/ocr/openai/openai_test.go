package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/ocr"
)

var png = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D}

func TestRecognize(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer sk" {
			t.Errorf("unexpected request %s %q", r.URL.Path, r.Header.Get("Authorization"))
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "gpt-4.1" {
			t.Errorf("model = %v", body["model"])
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```\\n醤油ラーメン 900円\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	e := New("sk", "gpt-4o-mini")
	e.BaseURL = srv.URL
	got, err := e.Recognize(context.Background(), png, ocr.Options{Model: "gpt-4.1", Langs: []string{"ja"}})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if got != "醤油ラーメン 900円" {
		t.Fatalf("text = %q", got)
	}
}

func TestRecognizeErrors(t *testing.T) {
	t.Parallel()

	if _, err := New("", "m").Recognize(context.Background(), png, ocr.Options{}); !types.IsKind(err, types.KindConfiguration) {
		t.Fatalf("missing key err = %v", err)
	}
	if _, err := New("sk", "m").Recognize(context.Background(), []byte("%PDF-1.4"), ocr.Options{}); !types.IsKind(err, types.KindInvalidInput) {
		t.Fatalf("pdf err = %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Authorization"), "bad") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	for key, want := range map[string]types.Kind{"bad": types.KindUpstreamTransport, "ok": types.KindUpstreamFormat} {
		e := New(key, "m")
		e.BaseURL = srv.URL
		if _, err := e.Recognize(context.Background(), png, ocr.Options{}); !types.IsKind(err, want) {
			t.Fatalf("%s: err = %v, want %s", key, err, want)
		}
	}
}
