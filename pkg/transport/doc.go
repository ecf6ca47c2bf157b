// Package transport provides the HTTP communication layer for the
// OpenTMI client.
//
// This package wraps GET, POST and PUT requests into simple JSON-in,
// JSON-out calls. It resolves a host and port into a base URL, attaches
// bearer token authorization, and normalizes HTTP-level and
// connection-level failures into a single *Error type.
//
// # Usage
//
// Create a transport and issue requests:
//
//	tr := transport.New("localhost", 3000,
//	    transport.WithLogger(logger))
//	tr.SetToken("api-token")
//
//	data, err := tr.GetJSON(ctx, tr.URL("/api/v0/testcases"), nil)
//	if err != nil {
//	    return err
//	}
//	if data == nil {
//	    // 404: resource does not exist
//	}
//
// A 404 on GET is a normal absent result, not an error. Every other
// non-2xx status, connection failure or malformed body surfaces as
// *transport.Error.
//
// # Custom HTTP Clients
//
// Pass WithHTTPClient to supply an alternative client, for testing or
// custom transports. The standard *http.Client satisfies the interface.
package transport
