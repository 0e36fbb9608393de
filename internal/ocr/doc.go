// Package ocr reads short single-line readings from display regions using
// Tesseract (via gosseract/v2).
//
// # Prerequisites
//
// Tesseract and its English language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// TESSDATA_PREFIX, or Options.TessdataPrefix, points the engine at a
// non-standard language data directory.
//
// # Recognition
//
// Every region on the display is a single line of digits and punctuation,
// so recognition always runs in single-line page segmentation mode with a
// per-region character whitelist. Before recognition a region is upscaled
// and binarized (see Preprocess); the display's bitmap font is a few pixels
// tall and Tesseract reads it poorly at native size.
//
// # Error Handling
//
// Engine failures are returned as failure.OCREngine. An empty reading is not
// an error: deciding whether empty text is acceptable belongs to the caller.
package ocr
