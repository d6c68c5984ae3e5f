// Package apperr defines the error taxonomy of the scan pipeline.
//
// Errors carry a Kind (which stage failed), a Reason (a stable machine code
// used to pick a localized user message) and an optional Cause. Callers use
// errors.As to recover the *Error and errors.Is against the Kind sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies the pipeline stage an error belongs to.
type Kind string

const (
	// KindAcquisition covers missing files, non-image content and camera failures.
	// The pipeline never starts.
	KindAcquisition Kind = "acquisition"

	// KindPreprocessing covers decode/encode failures while preparing the bitmap.
	// Fatal for the run.
	KindPreprocessing Kind = "preprocessing"

	// KindRecognitionRegion covers a failure recognizing one region.
	// Logged and skipped; the run continues.
	KindRecognitionRegion Kind = "recognition_region"
)

// Reason codes. Each maps to a localized message in package locale.
const (
	ReasonNoFile            = "no_file"
	ReasonUnsupportedType   = "unsupported_type"
	ReasonDecodeFailed      = "decode_failed"
	ReasonCameraPermission  = "camera_permission"
	ReasonCameraUnavailable = "camera_unavailable"
	ReasonCameraBusy        = "camera_busy"
	ReasonCaptureFailed     = "capture_failed"
	ReasonEmptyImage        = "empty_image"
	ReasonEncodeFailed      = "encode_failed"
	ReasonRegionFailed      = "region_failed"
	ReasonRegionTimeout     = "region_timeout"
)

// Error is a structured pipeline error.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *Error of the same Kind, and the same Reason
// when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Reason == "" || t.Reason == e.Reason
}

// Sentinels for errors.Is checks by kind.
var (
	ErrAcquisition       = &Error{Kind: KindAcquisition}
	ErrPreprocessing     = &Error{Kind: KindPreprocessing}
	ErrRecognitionRegion = &Error{Kind: KindRecognitionRegion}
)

// Acquisition builds an acquisition error.
func Acquisition(reason, message string, cause error) *Error {
	return &Error{Kind: KindAcquisition, Reason: reason, Message: message, Cause: cause}
}

// Preprocessing builds a preprocessing error.
func Preprocessing(reason, message string, cause error) *Error {
	return &Error{Kind: KindPreprocessing, Reason: reason, Message: message, Cause: cause}
}

// RecognitionRegion builds a per-region recognition error.
func RecognitionRegion(region string, timedOut bool, cause error) *Error {
	reason := ReasonRegionFailed
	msg := fmt.Sprintf("recognition failed for region %s", region)
	if timedOut {
		reason = ReasonRegionTimeout
		msg = fmt.Sprintf("recognition timed out for region %s", region)
	}
	return &Error{Kind: KindRecognitionRegion, Reason: reason, Message: msg, Cause: cause}
}

// ReasonOf returns the reason code of err, or "" if err is not an *Error.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
