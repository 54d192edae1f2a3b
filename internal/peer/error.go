package peer

import (
	goerrors "errors"
	"fmt"
	"net/http"

	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

// StatusError is a non-2xx answer from a peer service.
type StatusError struct {
	Peer       string
	Endpoint   string
	StatusCode int
	Response   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned %d: %s", e.Peer, e.Endpoint, e.StatusCode, truncate(e.Response, 256))
}

// CheckStatus turns a non-2xx response into an error. 501 is marked
// ErrNotSupported so callers can fall back; everything else is ErrHTTPClient.
func CheckStatus(peer, endpoint string, resp *Response) error {
	if IsSuccess(resp.StatusCode) {
		return nil
	}
	statusErr := &StatusError{
		Peer:       peer,
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Response:   resp.Body,
	}
	if resp.StatusCode == http.StatusNotImplemented {
		return ierr.WithError(statusErr).
			WithHintf("%s does not support %s", peer, endpoint).
			Mark(ierr.ErrNotSupported)
	}
	return ierr.WithError(statusErr).
		WithHintf("%s request failed", peer).
		Mark(ierr.ErrHTTPClient)
}

// StatusCode extracts the peer status code from err.
func StatusCode(err error) (int, bool) {
	var statusErr *StatusError
	if goerrors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	return 0, false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
