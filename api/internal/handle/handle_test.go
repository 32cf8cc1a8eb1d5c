package handle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/pipeline"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

type fakeScanner struct {
	got pipeline.Request
	res types.ScanResult
	err error
}

func (f *fakeScanner) Scan(_ context.Context, req pipeline.Request) (types.ScanResult, error) {
	f.got = req
	return f.res, f.err
}

func newServer(s Scanner, health func(context.Context) error) *httptest.Server {
	mux := http.NewServeMux()
	New(s, slog.New(slog.NewTextHandler(io.Discard, nil)), health).Routes(mux)
	return httptest.NewServer(mux)
}

func multipartBody(t *testing.T, image []byte, contentType string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="image"; filename="menu.jpg"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(image)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestScanMenuMultipart(t *testing.T) {
	t.Parallel()

	want := types.ScanResult{
		ScanID:       "scan-1",
		DetectedType: types.DetectedType{Type: "menu", Confidence: 0.9},
		Items: []types.ScoredItem{{
			ItemID:     "item-1",
			SourceText: "餃子",
			Confidence: 0.8,
			Preview:    types.Preview{Title: "Gyoza", Tags: []string{}, Images: []types.ImageCandidate{}},
		}},
	}
	fs := &fakeScanner{res: want}
	srv := newServer(fs, nil)
	defer srv.Close()

	body, ct := multipartBody(t, jpeg, "application/octet-stream", map[string]string{
		"target_lang": "pt-br",
		"device_id":   "d1",
		"app_version": "1.4.0",
		"timezone":    "Asia/Tokyo",
	})
	resp, err := http.Post(srv.URL+"/v1/scan_menu", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, b)
	}
	var got types.ScanResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ScanID != "scan-1" || got.Items[0].Preview.Title != "Gyoza" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if fs.got.TargetLang != "pt-BR" || !bytes.Equal(fs.got.Image, jpeg) {
		t.Fatalf("scanner got %+v", fs.got)
	}
}

func TestScanMenuJSONBody(t *testing.T) {
	t.Parallel()

	fs := &fakeScanner{res: types.ScanResult{ScanID: "s"}}
	srv := newServer(fs, nil)
	defer srv.Close()

	payload, _ := json.Marshal(map[string]string{
		"image_b64":   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
		"target_lang": "ja",
	})
	resp, err := http.Post(srv.URL+"/v1/scan_menu", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || fs.got.TargetLang != "ja" || !bytes.Equal(fs.got.Image, jpeg) {
		t.Fatalf("status = %d, scanner got %+v", resp.StatusCode, fs.got)
	}
}

func TestScanMenuRejects(t *testing.T) {
	t.Parallel()

	srv := newServer(&fakeScanner{}, nil)
	defer srv.Close()

	cases := []struct {
		name   string
		image  []byte
		ctype  string
		fields map[string]string
		status int
		kind   types.Kind
	}{
		{"missing image", nil, "", nil, http.StatusBadRequest, types.KindEmptyInput},
		{"empty image", []byte{}, "image/jpeg", nil, http.StatusBadRequest, types.KindEmptyInput},
		{"not an image", []byte("%PDF-1.4 hello"), "application/pdf", nil, http.StatusBadRequest, types.KindInvalidInput},
		{"bad language", jpeg, "image/jpeg", map[string]string{"target_lang": "!!"}, http.StatusBadRequest, types.KindInvalidInput},
	}
	for _, tc := range cases {
		body, ct := multipartBody(t, tc.image, tc.ctype, tc.fields)
		resp, err := http.Post(srv.URL+"/v1/scan_menu", ct, body)
		if err != nil {
			t.Fatal(err)
		}
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		resp.Body.Close()
		if resp.StatusCode != tc.status || eb.Error != tc.kind {
			t.Fatalf("%s: status=%d body=%+v", tc.name, resp.StatusCode, eb)
		}
	}

	resp, err := http.Get(srv.URL + "/v1/scan_menu")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
}

func TestScanMenuErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err    error
		status int
	}{
		{types.Errorf(types.KindUpstreamTransport, "ocr.recognize", "timeout"), http.StatusBadGateway},
		{types.Errorf(types.KindUpstreamFormat, "llm.extract", "bad json"), http.StatusBadGateway},
		{types.Errorf(types.KindConfiguration, "gemini", "no key"), http.StatusInternalServerError},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		srv := newServer(&fakeScanner{err: tc.err}, nil)
		body, ct := multipartBody(t, jpeg, "image/jpeg", nil)
		resp, err := http.Post(srv.URL+"/v1/scan_menu", ct, body)
		if err != nil {
			t.Fatal(err)
		}
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		resp.Body.Close()
		srv.Close()
		if resp.StatusCode != tc.status || eb.Error != types.KindOf(tc.err) {
			t.Fatalf("%v: status=%d body=%+v", tc.err, resp.StatusCode, eb)
		}
		if tc.status == http.StatusInternalServerError && strings.Contains(eb.Message, "no key") {
			t.Fatalf("internal details leaked: %q", eb.Message)
		}
	}
}

func TestTargetLanguage(t *testing.T) {
	t.Parallel()

	ok := map[string]string{"": "en", " EN ": "en", "ja": "ja", "zh-hant": "zh-Hant"}
	for in, want := range ok {
		got, err := TargetLanguage(in)
		if err != nil || got != want {
			t.Fatalf("TargetLanguage(%q) = %q, %v", in, got, err)
		}
	}
	for _, in := range []string{"!!", "und", "en_US@@"} {
		if _, err := TargetLanguage(in); !types.IsKind(err, types.KindInvalidInput) {
			t.Fatalf("TargetLanguage(%q) err = %v", in, err)
		}
	}
}

func TestRequestDeadline(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   time.Duration
	}{
		{"", scanDeadline},
		{"30s", 30 * time.Second},
		{"1m30s", 90 * time.Second},
		{"45", 45 * time.Second},
		{" 2m ", 2 * time.Minute},
		{"0", scanDeadline},
		{"-5s", scanDeadline},
		{"soon", scanDeadline},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodPost, "/v1/scan_menu", nil)
		if tc.header != "" {
			r.Header.Set("X-Request-Timeout", tc.header)
		}
		if got := requestDeadline(r); got != tc.want {
			t.Fatalf("requestDeadline(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	healthy := newServer(&fakeScanner{}, nil)
	defer healthy.Close()
	resp, err := http.Get(healthy.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	down := newServer(&fakeScanner{}, func(context.Context) error { return errors.New("db down") })
	defer down.Close()
	resp, err = http.Get(down.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
