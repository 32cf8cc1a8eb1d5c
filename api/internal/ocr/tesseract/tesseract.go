//go:build tesseract

package tesseract

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"menulens/api/internal/menu/types"
	"menulens/api/internal/ocr"
)

// Engine runs a local Tesseract install through gosseract.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed OCR engine.
func New() (ocr.Engine, error) {
	return &Engine{clientFactory: gosseract.NewClient}, nil
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, image []byte, opt ocr.Options) (string, error) {
	const op = "tesseract.recognize"
	select {
	case <-ctx.Done():
		return "", types.E(types.KindUpstreamTransport, op, ctx.Err())
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return "", types.E(types.KindUpstreamFormat, op, err)
	}
	if langs := tesseractLangs(opt.Langs); len(langs) > 0 {
		if err := c.SetLanguage(langs...); err != nil {
			return "", types.E(types.KindConfiguration, op, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return "", types.E(types.KindUpstreamTransport, op, err)
	}
	return strings.TrimSpace(text), nil
}
