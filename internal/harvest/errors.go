package harvest

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrFatal marks conditions that must abort the whole run.
	ErrFatal = errors.New("fatal harvest error")
	// ErrNoUsableProxy is returned when proxy validation leaves nothing to route through.
	ErrNoUsableProxy = fmt.Errorf("no usable proxy: %w", ErrFatal)
	// ErrUnknownPublisher is returned when a publisher name has no source code mapping.
	ErrUnknownPublisher = fmt.Errorf("unknown publisher: %w", ErrFatal)
	// ErrPageCount is returned when the number of result pages cannot be determined.
	ErrPageCount = fmt.Errorf("cannot determine page count: %w", ErrFatal)
	// ErrTransient classifies connection-level failures that are worth retrying.
	ErrTransient = errors.New("transient network error")
	// ErrRetryExhausted is returned once the retry policy gives up on a request.
	ErrRetryExhausted = errors.New("retry budget exhausted")
)

// StatusError reports a non-2xx application response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) from %s", e.Code, http.StatusText(e.Code), e.URL)
}

// AsStatus extracts the StatusError from err, if any.
func AsStatus(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Fatal wraps err so errors.Is(err, ErrFatal) holds.
func Fatal(err error) error {
	if err == nil || errors.Is(err, ErrFatal) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
