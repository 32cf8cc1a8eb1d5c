//go:build !tesseract

package tesseract

import (
	"errors"

	"menulens/api/internal/ocr"
)

// New reports that the binary was built without the tesseract tag.
func New() (ocr.Engine, error) {
	return nil, errors.New("tesseract support not compiled in; build with -tags tesseract")
}
