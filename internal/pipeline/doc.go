// Package pipeline runs one medication scan end to end.
//
// A run moves through a fixed sequence of stages:
//
//	Preprocessing -> Tiling -> Recognizing(i/N) -> Extracting -> Done | Failed
//
// The raw image is preprocessed into a binarized grayscale bitmap, split into
// the configured regions, and each region is recognized in turn by a single
// recognizer session that is started once and closed exactly once. The
// concatenated passes feed candidate extraction.
//
// Region failures (including per-region timeouts) are logged and skipped.
// Acquisition and preprocessing failures, recognizer start failures and
// cancellation abort the run and reset progress to zero.
//
// A Runner keeps at most one live run: starting a run cancels the
// one in flight, so a stale scan never overwrites the result of a newer one.
package pipeline
