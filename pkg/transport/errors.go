package transport

import "fmt"

// ErrorKind classifies transport failures.
type ErrorKind int

const (
	// KindHTTP is a non-2xx response from the server.
	// Code carries the HTTP status, Message the response body.
	KindHTTP ErrorKind = iota

	// KindNetwork is a connection-level failure (DNS, refused, timeout).
	// No status code is available.
	KindNetwork

	// KindParse is a malformed JSON body in an otherwise successful response.
	KindParse
)

// String returns a human-readable name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Error is the unified failure type for all transport operations.
// It covers HTTP-level failures (non-2xx responses), connection-level
// failures, and response body parse failures. Use errors.As to inspect
// the kind and status code:
//
//	var terr *transport.Error
//	if errors.As(err, &terr) && terr.Code == http.StatusUnauthorized {
//	    ...
//	}
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Code is the HTTP status code. Zero unless Kind is KindHTTP.
	Code int

	// Message is the response body text for HTTP failures, or the
	// underlying error text for network and parse failures.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("opentmi: request failed (code: %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("opentmi: %s error: %s", e.Kind, e.Message)
}

func newHTTPError(code int, body string) *Error {
	return &Error{Kind: KindHTTP, Code: code, Message: body}
}

func newNetworkError(err error) *Error {
	return &Error{Kind: KindNetwork, Message: err.Error()}
}

func newParseError(err error) *Error {
	return &Error{Kind: KindParse, Message: err.Error()}
}
