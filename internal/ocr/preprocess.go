package ocr

import (
	"image"

	"github.com/anthonynsimon/bild/transform"
	"github.com/lucasb-eyer/go-colorful"
)

// Preprocess controls how a region is prepared before recognition.
type Preprocess struct {
	// Scale resizes the region before recognition. Tesseract reads small
	// display digits far better at 2x or more. Values <= 0 or == 1 disable it.
	Scale float64

	// Binarize converts the region to pure black-on-white using CIE L*
	// lightness.
	Binarize bool

	// Threshold is the L* cut-off (0-100) used when Binarize is set.
	// Pixels darker than Threshold become ink.
	Threshold float64
}

// DefaultPreprocess is tuned for the telemetry display's small bitmap font.
func DefaultPreprocess() Preprocess {
	return Preprocess{Scale: 2, Binarize: true, Threshold: 50}
}

// Prepare applies p to img and returns a new image. img is not modified.
func Prepare(img image.Image, p Preprocess) image.Image {
	out := img

	if p.Scale > 0 && p.Scale != 1 {
		b := img.Bounds()
		w := int(float64(b.Dx()) * p.Scale)
		h := int(float64(b.Dy()) * p.Scale)
		if w > 0 && h > 0 {
			out = transform.Resize(img, w, h, transform.Linear)
		}
	}

	if p.Binarize {
		out = binarize(out, p.Threshold)
	}

	return out
}

// binarize maps every pixel to black or white by perceptual lightness.
// When most of the region is ink the result is inverted so text is always
// dark on a light background. Fully transparent pixels count as background.
func binarize(img image.Image, threshold float64) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	ink := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := uint8(0xff)
			if c, ok := colorful.MakeColor(img.At(x, y)); ok {
				l, _, _ := c.Lab()
				if l*100 < threshold {
					v = 0
					ink++
				}
			}
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = v
		}
	}

	if ink*2 > b.Dx()*b.Dy() {
		for i, v := range out.Pix {
			out.Pix[i] = 0xff - v
		}
	}

	return out
}
