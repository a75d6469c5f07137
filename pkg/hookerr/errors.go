// Package hookerr defines the failure taxonomy shared by every stage of the
// OCR hook. Each stage wraps its cause in an *Error carrying one of the kind
// sentinels below, so the command can log a precise diagnostic while treating
// all failures the same way: abort the run and leave the input untouched.
package hookerr

import (
	"errors"
	"fmt"
)

// Failure kinds
var (
	// ErrConfiguration is returned when required settings (OCR endpoint or key)
	// are missing or a setting cannot be parsed.
	ErrConfiguration = errors.New("configuration error")

	// ErrInput is returned when the input path is missing, unreadable, or not
	// a document the hook can open.
	ErrInput = errors.New("input error")

	// ErrConversion is returned when a raster image cannot be converted to PDF.
	ErrConversion = errors.New("image conversion failed")

	// ErrOCRRequest is returned when the OCR service answers a submission or
	// poll with a non-success status, or cannot be reached.
	ErrOCRRequest = errors.New("OCR request failed")

	// ErrOCRTimeout is returned when an asynchronous OCR operation does not
	// finish within the configured maximum wait.
	ErrOCRTimeout = errors.New("OCR operation timed out")

	// ErrOCRProcessing is returned when the OCR service reports that it failed
	// to analyze the document.
	ErrOCRProcessing = errors.New("OCR processing failed")

	// ErrOverlay is returned when the text layer cannot be written.
	ErrOverlay = errors.New("overlay failed")

	// ErrIO is returned for file system failures on working copies and the
	// final replace.
	ErrIO = errors.New("file operation failed")
)

// Error wraps a failure with the operation that produced it.
type Error struct {
	// Op is the operation that failed (e.g. "Classify", "Recognize").
	Op string

	// Kind is one of the failure sentinels of this package.
	Kind error

	// Err is the underlying cause. May be nil when Kind says it all.
	Err error

	// Details provides additional context, such as an HTTP status and body.
	Details string
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind, so callers can match with
// errors.Is(err, hookerr.ErrOCRTimeout).
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// New creates an *Error without an underlying cause.
func New(op string, kind error, details string) *Error {
	return &Error{Op: op, Kind: kind, Details: details}
}

// Wrap wraps err as an *Error of the given kind. An error that already
// carries a kind is returned unchanged so the innermost classification wins.
func Wrap(op string, kind error, err error, details string) error {
	if err == nil {
		return nil
	}
	var hookErr *Error
	if errors.As(err, &hookErr) {
		return err
	}
	return &Error{Op: op, Kind: kind, Err: err, Details: details}
}

// KindOf returns the failure kind carried by err, or nil when err was not
// produced by this package.
func KindOf(err error) error {
	var hookErr *Error
	if errors.As(err, &hookErr) {
		return hookErr.Kind
	}
	return nil
}
