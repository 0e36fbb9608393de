// Package imaging provides the image operations of the capture pipeline:
// decoding capture bytes, cropping calibrated regions, encoding crops for
// archival and drawing calibration overlays.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based with the origin at the
// top-left corner:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// # Error Handling
//
// Decode reports every failure as failure.UnreadableImage. Crop and
// CheckBounds report a rectangle with no area, or one that is not fully
// inside the image, as failure.RegionOutOfBounds. Rectangles are never
// clamped: region geometry is calibration data and a mismatch must surface.
//
// # Thread Safety
//
// Every function is stateless and may be called concurrently. Crop returns a
// fresh image, so concurrent crops of one source share no mutable state.
// Cache is the only stateful type and guards itself with a mutex.
package imaging
