package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opentmi/opentmi-go/pkg/log"
)

// RequestTimeout is the fixed timeout applied to every request.
const RequestTimeout = 30 * time.Second

// payloadField is the multipart form field carrying the JSON payload
// when file attachments are present.
const payloadField = "payload"

// Transport handles the communication layer against an OpenTMI server.
// It wraps plain HTTP REST requests into simpler JSON-in/JSON-out calls
// and normalizes every failure into *Error.
//
// A Transport is not safe for concurrent mutation of host or token while
// requests are in flight. Concurrent read-only use (stable host and token,
// concurrent GETs) is the supported pattern.
type Transport struct {
	host   string
	token  string
	client HTTPClient
	logger log.Logger
}

// Option configures optional behavior of a Transport.
type Option func(*options)

type options struct {
	httpClient HTTPClient
	logger     log.Logger
	timeout    time.Duration
}

// WithHTTPClient sets a custom HTTP client.
// If not provided, a default client with the configured timeout is used.
func WithHTTPClient(client HTTPClient) Option {
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

// WithTimeout overrides the default request timeout.
// Only applies when the default HTTP client is used.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// New creates a Transport for the given host and port.
// A host of "" defaults to localhost, a port of 0 to 3000.
func New(host string, port int, opts ...Option) *Transport {
	if host == "" {
		host = "localhost"
	}

	o := options{timeout: RequestTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}

	t := &Transport{
		client: o.httpClient,
		logger: o.logger,
	}
	t.SetHost(host, port)
	t.logger.Info("OpenTMI host", log.String("host", t.host))
	return t
}

// SetHost recomputes the base URL from a host string and port number.
func (t *Transport) SetHost(host string, port int) {
	t.host = resolveHost(host, port)
}

// Host returns the current base URL.
func (t *Transport) Host() string {
	return t.host
}

// SetToken stores the bearer token used for subsequent requests.
// Returns the Transport to allow call chaining.
func (t *Transport) SetToken(token string) *Transport {
	t.token = token
	return t
}

// HasToken reports whether an authentication token has been set.
func (t *Transport) HasToken() bool {
	return t.token != ""
}

// ClearToken removes the stored authentication token.
func (t *Transport) ClearToken() {
	t.token = ""
}

// URL joins a path to the base URL.
func (t *Transport) URL(path string) string {
	return t.host + path
}

// GetJSON issues an HTTP GET with the given query parameters.
//
// A 404 response is not an error; it returns (nil, nil) so callers can
// treat "not found" as a normal absent result.
func (t *Transport) GetJSON(ctx context.Context, rawURL string, params url.Values) (json.RawMessage, error) {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}
	t.logger.Debug("GET", log.String("url", rawURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, newNetworkError(err)
	}
	t.setHeaders(req, "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("connection error", log.Err(err))
		return nil, newNetworkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Warn("connection error", log.Err(err))
		return nil, newNetworkError(err)
	}

	switch {
	case IsSuccess(resp.StatusCode):
		return parseJSON(body)
	case resp.StatusCode == http.StatusNotFound:
		t.logger.Warn("not found", log.String("url", rawURL))
		return nil, nil
	default:
		t.logger.Warn("request failed",
			log.String("body", string(body)),
			log.Int("code", resp.StatusCode))
		return nil, newHTTPError(resp.StatusCode, string(body))
	}
}

// PostJSON issues an HTTP POST with a JSON body and optional file
// attachments. With attachments the body switches to multipart form
// encoding; the JSON payload travels in the "payload" form field.
func (t *Transport) PostJSON(ctx context.Context, rawURL string, payload interface{}, files []File) (json.RawMessage, error) {
	return t.sendJSON(ctx, http.MethodPost, rawURL, payload, files)
}

// PutJSON issues an HTTP PUT with a JSON body.
// Same success and error contract as PostJSON, without attachments.
func (t *Transport) PutJSON(ctx context.Context, rawURL string, payload interface{}) (json.RawMessage, error) {
	return t.sendJSON(ctx, http.MethodPut, rawURL, payload, nil)
}

// sendJSON is the shared POST/PUT path.
func (t *Transport) sendJSON(ctx context.Context, method, rawURL string, payload interface{}, files []File) (json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, newParseError(err)
	}

	var body io.Reader = bytes.NewReader(encoded)
	contentType := "application/json"
	if len(files) > 0 {
		body, contentType, err = multipartBody(encoded, files)
		if err != nil {
			return nil, newParseError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, newNetworkError(err)
	}
	t.setHeaders(req, contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn("connection error", log.Err(err))
		return nil, newNetworkError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.logger.Warn("connection error", log.Err(err))
		return nil, newNetworkError(err)
	}

	if !IsSuccess(resp.StatusCode) {
		t.logger.Warn("status_code", log.String("code", strconv.Itoa(resp.StatusCode)))
		t.logger.Warn(string(respBody))
		return nil, newHTTPError(resp.StatusCode, string(respBody))
	}
	return parseJSON(respBody)
}

// setHeaders applies the fixed request headers.
// Authorization is present iff a token has been set.
func (t *Transport) setHeaders(req *http.Request, contentType string) {
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Connection", "close")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

// multipartBody builds a multipart form with the JSON payload as a form
// field and one part per file attachment.
func multipartBody(payload []byte, files []File) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	field, err := writer.CreateFormField(payloadField)
	if err != nil {
		return nil, "", fmt.Errorf("create payload field: %w", err)
	}
	if _, err := field.Write(payload); err != nil {
		return nil, "", fmt.Errorf("write payload: %w", err)
	}

	for _, f := range files {
		part, err := writer.CreateFormFile(f.FieldName, f.Name)
		if err != nil {
			return nil, "", fmt.Errorf("create file field: %w", err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("write file: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// parseJSON validates and returns the body as a raw JSON message.
func parseJSON(body []byte) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, newParseError(err)
	}
	return raw, nil
}

// IsSuccess reports whether a status code is in the success range [200, 300).
func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
