package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/creek-ocr/internal/failure"
)

// Options configures a Tesseract reader.
type Options struct {
	// Language is the Tesseract language code. Defaults to "eng".
	Language string

	// TessdataPrefix overrides the directory holding *.traineddata files.
	// Empty means the engine's compiled-in default (or $TESSDATA_PREFIX).
	TessdataPrefix string

	// Preprocess is applied to every region before recognition.
	Preprocess Preprocess
}

// Tesseract reads single lines of text with the Tesseract engine.
//
// A new gosseract client is created per call, so a Tesseract value is safe
// for concurrent use.
type Tesseract struct {
	opts Options
}

// NewTesseract returns a reader using opts. Zero-valued options get defaults.
func NewTesseract(opts Options) *Tesseract {
	if opts.Language == "" {
		opts.Language = "eng"
	}
	return &Tesseract{opts: opts}
}

// ReadText recognizes a single line of text in img.
//
// Recognition is restricted to the characters in whitelist (no restriction
// when empty). The result is trimmed of surrounding whitespace and may be
// empty; an empty reading is not an error.
//
// Any failure of the engine itself, including image hand-off, is returned as
// failure.OCREngine.
func (t *Tesseract) ReadText(img image.Image, whitelist string) (string, error) {
	prepared := Prepare(img, t.opts.Preprocess)

	var buf bytes.Buffer
	if err := png.Encode(&buf, prepared); err != nil {
		return "", failure.NewOCREngine(fmt.Errorf("failed to encode region: %w", err))
	}

	client := gosseract.NewClient()
	defer client.Close()

	if t.opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.opts.TessdataPrefix); err != nil {
			return "", failure.NewOCREngine(fmt.Errorf("failed to set tessdata path: %w", err))
		}
	}

	if err := client.SetLanguage(t.opts.Language); err != nil {
		return "", failure.NewOCREngine(fmt.Errorf("failed to set language: %w", err))
	}

	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", failure.NewOCREngine(fmt.Errorf("failed to set page segmentation mode: %w", err))
	}

	if whitelist != "" {
		if err := client.SetWhitelist(whitelist); err != nil {
			return "", failure.NewOCREngine(fmt.Errorf("failed to set whitelist: %w", err))
		}
	}

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", failure.NewOCREngine(fmt.Errorf("failed to set image: %w", err))
	}

	text, err := client.Text()
	if err != nil {
		return "", failure.NewOCREngine(fmt.Errorf("OCR failed: %w", err))
	}

	return strings.TrimSpace(text), nil
}

// Info describes the OCR subsystem.
type Info struct {
	Available      bool   `json:"available"`
	Version        string `json:"version,omitempty"`
	Language       string `json:"language"`
	TessdataPrefix string `json:"tessdata_prefix,omitempty"`
	Backend        string `json:"backend"`
	Error          string `json:"error,omitempty"`
}

// Info reports engine availability by initializing a client with the
// configured language and data path.
func (t *Tesseract) Info() Info {
	info := Info{
		Language:       t.opts.Language,
		TessdataPrefix: t.opts.TessdataPrefix,
		Backend:        "gosseract",
	}

	client := gosseract.NewClient()
	defer client.Close()

	info.Version = client.Version()

	if t.opts.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(t.opts.TessdataPrefix); err != nil {
			info.Error = err.Error()
			return info
		}
	}
	if err := client.SetLanguage(t.opts.Language); err != nil {
		info.Error = err.Error()
		return info
	}

	// Language data is only loaded when an image is recognized.
	blank := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range blank.Pix {
		blank.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, blank); err != nil {
		info.Error = err.Error()
		return info
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		info.Error = err.Error()
		return info
	}
	if _, err := client.Text(); err != nil {
		info.Error = err.Error()
		return info
	}

	info.Available = true
	return info
}
