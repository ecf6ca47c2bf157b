package opentmi

import (
	"github.com/opentmi/opentmi-go/pkg/log"
	"github.com/opentmi/opentmi-go/pkg/transport"
)

// Option configures optional behavior of a Client.
type Option func(*options)

type options struct {
	transport  *transport.Transport
	httpClient transport.HTTPClient
	logger     log.Logger
}

// WithTransport sets a pre-built transport layer. Mostly for testing.
// A transport given here takes precedence over WithHTTPClient.
func WithTransport(t *transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithHTTPClient sets a custom HTTP client for API communication.
// If not provided, a default client with the standard timeout is used.
func WithHTTPClient(client transport.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
