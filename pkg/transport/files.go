package transport

// File is an attachment uploaded alongside a JSON payload in a POST.
// Attachments switch the request body to multipart form encoding; the
// JSON payload travels in a form field next to the file parts.
type File struct {
	// FieldName is the multipart form field name (e.g. "file").
	FieldName string

	// Name is the filename reported to the server (e.g. "logs.zip").
	Name string

	// Content is the raw file content.
	Content []byte
}
