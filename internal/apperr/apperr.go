// Package apperr defines the coded error taxonomy shared by every stage of a
// download: tab navigation, interception, tile assembly and range batching.
package apperr

import (
	"errors"
	"fmt"
)

const (
	CodeNavigationTimeout = "NAVIGATION_TIMEOUT"
	CodeNavigationFailed  = "NAVIGATION_FAILED"
	CodeResourceNotFound  = "RESOURCE_NOT_FOUND"
	CodeNoUsableLevel     = "NO_USABLE_RESOLUTION_LEVEL"
	CodeTileFetchFailed   = "TILE_FETCH_FAILED"
	CodeTileDecodeFailed  = "TILE_DECODE_FAILED"
	CodeEmptyBatch        = "EMPTY_BATCH"
	CodeLibraryUnavail    = "LIBRARY_UNAVAILABLE"

	CodeValidation  = "VALIDATION"
	CodeFetchFailed = "FETCH_FAILED"
	CodeDuplicate   = "DUPLICATE_RESOURCE"
	CodeJobNotFound = "JOB_NOT_FOUND"
	CodeSinkFailed  = "SINK_FAILED"
)

// CodedError is a typed error used for stable API and status mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// New returns a *CodedError.
func New(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// CodeOf returns the code of the outermost CodedError in err's chain, or ""
// when there is none.
func CodeOf(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}
