package service

// Request is the transport-agnostic inbound request handed to the Handler.
// Front ends (HTTP server, function runtime) construct one per invocation.
type Request struct {
	// Method is the HTTP method, e.g. "POST" or "OPTIONS".
	Method string

	// ContentType is the raw content-type header value; any trailing
	// parameters (";charset=...") are stripped during dispatch.
	ContentType string

	// Body is the raw request body. When IsBase64 is set the body is a
	// base64 encoding of the actual payload, as some function runtimes
	// deliver binary bodies.
	Body     []byte
	IsBase64 bool

	// RequestID is the correlation id supplied by the host runtime.
	// A fresh one is generated when empty.
	RequestID string

	// SourceIP and UserAgent are logged, never acted on.
	SourceIP  string
	UserAgent string
}
