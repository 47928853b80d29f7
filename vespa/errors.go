package vespa

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse indicates the endpoint answered but the body could not
// be decoded as a metrics document. Use errors.Is to test for it.
var ErrMalformedResponse = errors.New("malformed metrics response")

// TransportError describes a failed metrics fetch: a connection problem, a
// timeout, or a non-OK status from the endpoint.
type TransportError struct {
	URL        string
	StatusCode int  // non-zero when the endpoint answered with a bad status
	Timeout    bool // true when the request timed out or the deadline expired
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("metrics fetch from %s timed out: %v", e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("metrics fetch from %s returned status %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("metrics fetch from %s failed: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
