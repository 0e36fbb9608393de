package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Box is a labelled rectangle drawn by RegionOverlay.
type Box struct {
	Label string
	Rect  image.Rectangle
}

// RegionOverlay draws labelled rectangles, and optionally a coordinate grid,
// over a copy of img. It is used to check catalog geometry against a real
// capture.
//
// Boxes partially outside the image are still drawn (clipped) so a bad
// calibration is visible rather than silently dropped. A gridSpacing of zero
// disables the grid. boxColorHex accepts "#RRGGBB" or "#RRGGBBAA"; an invalid
// colour falls back to opaque red.
func RegionOverlay(img image.Image, boxes []Box, gridSpacing int, boxColorHex string) *image.RGBA {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	boxColor, err := parseHexColor(boxColorHex)
	if err != nil {
		boxColor = color.RGBA{255, 0, 0, 255}
	}

	if gridSpacing > 0 {
		gridColor := color.RGBA{128, 128, 128, 96}
		for x := bounds.Min.X + gridSpacing; x < bounds.Max.X; x += gridSpacing {
			for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
				result.Set(x, y, gridColor)
			}
		}
		for y := bounds.Min.Y + gridSpacing; y < bounds.Max.Y; y += gridSpacing {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				result.Set(x, y, gridColor)
			}
		}
	}

	labelColor := color.RGBA{255, 255, 255, 255}
	labelBg := color.RGBA{0, 0, 0, 200}
	for _, b := range boxes {
		drawRect(result, b.Rect, boxColor)
		drawLabel(result, b.Rect.Min.X+2, b.Rect.Min.Y+2, b.Label, labelColor, labelBg)
	}

	return result
}

// drawRect draws a one pixel outline. Pixels outside img are skipped by Set.
func drawRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for x := r.Min.X; x < r.Max.X; x++ {
		img.Set(x, r.Min.Y, c)
		img.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		img.Set(r.Min.X, y, c)
		img.Set(r.Max.X-1, y, c)
	}
}

// drawLabel draws text with a filled background; (x,y) is the top-left corner.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Height

	bgRect := image.Rect(x-1, y-1, x+width+1, y+height+1).Intersect(img.Bounds())
	draw.Draw(img, bgRect, image.NewUniform(bg), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(text)
}

// parseHexColor parses "#RRGGBB" or "#RRGGBBAA".
func parseHexColor(hex string) (color.RGBA, error) {
	if hex == "" {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}

	alpha := uint8(255)
	switch len(hex) {
	case 7:
	case 9:
		a, err := strconv.ParseUint(hex[7:], 16, 8)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("invalid alpha %q: %w", hex[7:], err)
		}
		alpha = uint8(a)
		hex = hex[:7]
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: alpha}, nil
}
