// Package imaging implements the bitmap side of the medication scan pipeline:
// acquisition-time decoding, OCR preprocessing, region tiling and diagnostics.
//
// All operations work with standard Go image.Image types and use a coordinate
// system where (0,0) is at the top-left corner, X increases rightward and Y
// increases downward.
//
// # Pipeline Stages
//
//   - DecodeBytes / LoadFile: validate the content type and decode a RawImage
//   - Preprocess: downscale, grayscale, dark-image classification, binarization
//   - Tiles: the ordered recognition regions (full, top half, middle band)
//   - Crop: cut a Region out of a ProcessedImage for the recognizer
//
// # Coordinate System
//
// Regions use Left/Top/Width/Height in ProcessedImage pixels. Rect converts a
// Region to an image.Rectangle where Min is inclusive and Max is exclusive.
//
// # Determinism
//
// Preprocess never reads external state and never mutates its input. The same
// RawImage always produces a bit-identical ProcessedImage.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. All other functions are stateless.
//
// # Error Handling
//
// Acquisition-time failures (missing file, non-image content, undecodable
// data) are returned as apperr acquisition errors. Preprocess returns apperr
// preprocessing errors.
package imaging
