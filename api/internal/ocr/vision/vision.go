package vision

import (
	"context"
	"encoding/base64"
	"strings"

	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/ocr"
)

const featureDocumentText = "DOCUMENT_TEXT_DETECTION"

// Engine recognizes text with the Google Cloud Vision REST API.
type Engine struct {
	svc *visionapi.Service
}

// New builds the client. apiKey may be empty when opts carry credentials.
func New(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Engine, error) {
	if k := strings.TrimSpace(apiKey); k != "" {
		opts = append([]option.ClientOption{option.WithAPIKey(k)}, opts...)
	}
	svc, err := visionapi.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Engine{svc: svc}, nil
}

func (e *Engine) Name() string { return "vision" }

// Recognize prefers the full-document annotation and falls back to the first
// token-level annotation.
func (e *Engine) Recognize(ctx context.Context, image []byte, opt ocr.Options) (string, error) {
	const op = "vision.recognize"
	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{{
			Image:    &visionapi.Image{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []*visionapi.Feature{{Type: featureDocumentText}},
		}},
	}
	if len(opt.Langs) > 0 {
		req.Requests[0].ImageContext = &visionapi.ImageContext{LanguageHints: opt.Langs}
	}

	resp, err := e.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", types.E(types.KindUpstreamTransport, op, err)
	}
	if resp == nil || len(resp.Responses) == 0 {
		return "", nil
	}
	r := resp.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		return "", types.Errorf(types.KindUpstreamTransport, op, "vision %d: %s", r.Error.Code, r.Error.Message)
	}
	if r.FullTextAnnotation != nil {
		if t := strings.TrimSpace(r.FullTextAnnotation.Text); t != "" {
			return t, nil
		}
	}
	if len(r.TextAnnotations) > 0 {
		return strings.TrimSpace(r.TextAnnotations[0].Description), nil
	}
	return "", nil
}
