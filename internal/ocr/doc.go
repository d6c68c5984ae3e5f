// Package ocr defines the text-recognition capability consumed by the scan
// pipeline.
//
// The recognizer is a black box: an Engine starts a Session for a list of
// language models, the Session is configured once (character whitelist, page
// segmentation mode, DPI hint), asked to Recognize any number of regions in
// sequence, and finally closed. Each call returns the recognized text and,
// when the engine supports it, word-level bounding boxes.
//
// # Implementations
//
//   - ocr/tesseract: Tesseract via gosseract (requires cgo and libtesseract)
//   - ocr/ocrtest: a scripted engine for tests
//
// # Coordinates
//
// Word boxes are always reported in the coordinates of the image passed to
// Recognize, not relative to the region. An engine that crops internally must
// translate boxes back by the region offset.
//
// # Concurrency
//
// Engines are safe for concurrent use. A Session is used by one pipeline run
// at a time, one region after another. Recognizer sessions are heavy (they
// load language models into memory), so the pipeline creates one per run and
// reuses it for every region.
package ocr
