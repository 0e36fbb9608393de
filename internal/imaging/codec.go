package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder

	"github.com/disintegration/imaging"

	"github.com/ironsheep/creek-ocr/internal/failure"
)

// Decode decodes raw capture bytes.
//
// Supported formats are GIF, PNG and JPEG. For animated GIFs only the first
// frame is returned. The format name reported by the registered decoder is
// returned alongside the image.
//
// Any failure, including empty input, is an UnreadableImage error.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", failure.NewUnreadableImage(errors.New("empty input"))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", failure.NewUnreadableImage(err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, "", failure.NewUnreadableImage(fmt.Errorf("zero-sized %s image", format))
	}

	return img, format, nil
}

// EncodeGIF encodes an image as GIF for archival.
func EncodeGIF(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
		return nil, fmt.Errorf("failed to encode gif: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes an image as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
