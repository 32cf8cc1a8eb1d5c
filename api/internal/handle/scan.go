package handle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/pipeline"
	"menulens/api/internal/util"
)

const (
	maxUploadBytes = 12 << 20
	defaultLang    = "en"
	scanDeadline   = 120 * time.Second
)

// scanJSONRequest is the alternative body for clients that cannot send
// multipart: a base64 image or data URL.
type scanJSONRequest struct {
	ImageB64   string `json:"image_b64"`
	TargetLang string `json:"target_lang"`
	DeviceID   string `json:"device_id"`
	AppVersion string `json:"app_version"`
	Timezone   string `json:"timezone"`
}

type upload struct {
	image      []byte
	mime       string
	targetLang string
	deviceID   string
	appVersion string
	timezone   string
}

// ScanMenu accepts a menu photo and answers with the scan result.
func (h *Handle) ScanMenu(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	up, err := readUpload(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	lang, err := TargetLanguage(up.targetLang)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("scan request",
		"bytes", len(up.image),
		"mime", up.mime,
		"target_lang", lang,
		"device_id", up.deviceID,
		"app_version", up.appVersion,
		"timezone", up.timezone,
	)

	ctx, cancel := context.WithTimeout(r.Context(), requestDeadline(r))
	defer cancel()

	res, err := h.scanner.Scan(ctx, pipeline.Request{Image: up.image, TargetLang: lang})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readUpload(r *http.Request) (upload, error) {
	const op = "handle.upload"
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		return readJSONUpload(r)
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return upload{}, types.E(types.KindInvalidInput, op, err)
	}
	up := upload{
		targetLang: r.FormValue("target_lang"),
		deviceID:   r.FormValue("device_id"),
		appVersion: r.FormValue("app_version"),
		timezone:   r.FormValue("timezone"),
	}
	f, hdr, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return upload{}, types.Errorf(types.KindEmptyInput, op, "image part is missing")
		}
		return upload{}, types.E(types.KindInvalidInput, op, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return upload{}, types.E(types.KindInvalidInput, op, err)
	}
	up.image = data
	up.mime = hdr.Header.Get("Content-Type")
	return checkImage(up)
}

func readJSONUpload(r *http.Request) (upload, error) {
	const op = "handle.upload"
	var req scanJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return upload{}, types.Errorf(types.KindInvalidInput, op, "bad json: %v", err)
	}
	if strings.TrimSpace(req.ImageB64) == "" {
		return upload{}, types.Errorf(types.KindEmptyInput, op, "image_b64 is empty")
	}
	data, hint, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
	if err != nil {
		return upload{}, types.Errorf(types.KindInvalidInput, op, "bad image_b64: %v", err)
	}
	return checkImage(upload{
		image:      data,
		mime:       hint,
		targetLang: req.TargetLang,
		deviceID:   req.DeviceID,
		appVersion: req.AppVersion,
		timezone:   req.Timezone,
	})
}

func checkImage(up upload) (upload, error) {
	const op = "handle.upload"
	if len(up.image) == 0 {
		return upload{}, types.Errorf(types.KindEmptyInput, op, "image is empty")
	}
	up.mime = util.PickMIME(up.mime, up.image)
	if !util.IsImageMIME(up.mime) {
		return upload{}, types.Errorf(types.KindInvalidInput, op, "unsupported image type %q", up.mime)
	}
	return up, nil
}

// TargetLanguage validates a BCP-47 tag. Empty means English.
func TargetLanguage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultLang, nil
	}
	tag, err := language.Parse(s)
	if err != nil || tag == language.Und {
		return "", types.Errorf(types.KindInvalidInput, "handle.target_lang", "unknown target language %q", s)
	}
	return tag.String(), nil
}

// requestDeadline honours an X-Request-Timeout header holding a Go duration
// ("30s", "1m30s"). A bare integer is read as seconds.
func requestDeadline(r *http.Request) time.Duration {
	ts := strings.TrimSpace(r.Header.Get("X-Request-Timeout"))
	if ts == "" {
		return scanDeadline
	}
	if d, err := time.ParseDuration(ts); err == nil && d > 0 {
		return d
	}
	if v, err := strconv.Atoi(ts); err == nil && v > 0 {
		return time.Duration(v) * time.Second
	}
	return scanDeadline
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ok\n" + err.Error()))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
