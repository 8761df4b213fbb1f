package harvest

import (
	"errors"
	"fmt"
)

// FetchError is a transport-level failure: timeout, refused connection, or a
// non-success status code.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode > 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means a response arrived but its structure was unexpected.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return "parse: " + errString(e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractorError is the catch-all for any other fault an extractor chooses to
// report as an item failure (no match, missing field, ...).
type ExtractorError struct {
	Err error
}

func (e *ExtractorError) Error() string { return "extract: " + errString(e.Err) }

func (e *ExtractorError) Unwrap() error { return e.Err }

// NewFetchError wraps err as a FetchError. statusCode may be zero.
func NewFetchError(url string, statusCode int, err error) error {
	return &FetchError{URL: url, StatusCode: statusCode, Err: err}
}

// NewParseError wraps err as a ParseError.
func NewParseError(err error) error {
	return &ParseError{Err: err}
}

// NewExtractorError wraps err as an ExtractorError.
func NewExtractorError(err error) error {
	return &ExtractorError{Err: err}
}

// IsItemFailure reports whether err (or anything in its chain) is one of the
// expected per-item failure kinds. Everything else terminates a run.
func IsItemFailure(err error) bool {
	if err == nil {
		return false
	}
	var fe *FetchError
	var pe *ParseError
	var ee *ExtractorError
	return errors.As(err, &fe) || errors.As(err, &pe) || errors.As(err, &ee)
}

// Failure is the error-log record for one failed item.
type Failure struct {
	Item       WorkItem
	Kind       string // "fetch", "parse" or "extract"
	Reason     string
	StatusCode int
}

// FailureFor builds the Failure record for an item failure error.
func FailureFor(item WorkItem, err error) Failure {
	f := Failure{Item: item, Reason: errString(err), Kind: "extract"}
	var fe *FetchError
	var pe *ParseError
	switch {
	case errors.As(err, &fe):
		f.Kind = "fetch"
		f.StatusCode = fe.StatusCode
	case errors.As(err, &pe):
		f.Kind = "parse"
	}
	return f
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
