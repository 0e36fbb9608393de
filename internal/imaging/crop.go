package imaging

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/creek-ocr/internal/failure"
)

// CheckBounds validates a crop rectangle against image bounds.
//
// The rectangle must have positive area and lie entirely inside bounds. A
// violation is a calibration defect and is reported as RegionOutOfBounds; the
// rectangle is never clamped.
func CheckBounds(bounds image.Rectangle, x1, y1, x2, y2 int) error {
	if x1 >= x2 || y1 >= y2 ||
		x1 < bounds.Min.X || y1 < bounds.Min.Y ||
		x2 > bounds.Max.X || y2 > bounds.Max.Y {
		return failure.NewRegionOutOfBounds(x1, y1, x2, y2, bounds.Dx(), bounds.Dy())
	}
	return nil
}

// Crop extracts a rectangular region from an image.
//
// (x1,y1) is inclusive and (x2,y2) exclusive. The returned image always has
// its origin at (0,0).
func Crop(img image.Image, x1, y1, x2, y2 int) (*image.NRGBA, error) {
	if err := CheckBounds(img.Bounds(), x1, y1, x2, y2); err != nil {
		return nil, err
	}
	return imaging.Crop(img, image.Rect(x1, y1, x2, y2)), nil
}
