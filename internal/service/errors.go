package service

import "fmt"

// Stable machine-readable error codes. These are part of the wire contract;
// clients match on them, so renaming one is a breaking change.
const (
	CodeConfigError      = "CONFIG_ERROR"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeInvalidContent   = "INVALID_CONTENT_TYPE"
	CodeEmptyBody        = "EMPTY_BODY"
	CodeInvalidBase64    = "INVALID_BASE64"
	CodeEmptyBlob        = "EMPTY_BLOB"
	CodeBlobTooLarge     = "BLOB_TOO_LARGE"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeMissingBlobKey   = "MISSING_BLOB_KEY"
	CodeInvalidBlobKey   = "INVALID_BLOB_KEY"
	CodeBlobNotFound     = "BLOB_NOT_FOUND"
	CodeUploadError      = "S3_UPLOAD_ERROR"
	CodeDownloadError    = "S3_DOWNLOAD_ERROR"
	CodeEncryptError     = "KMS_ENCRYPT_ERROR"
	CodeDecryptError     = "KMS_DECRYPT_ERROR"
	CodeInvalidEncoding  = "INVALID_ENCODING"
	CodeIntegrityError   = "INTEGRITY_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Error is a request-scoped failure carrying the HTTP status and stable code
// it maps to on the wire. Only the Message reaches the caller; Err is for
// the operational log.
type Error struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func wrapError(status int, code, message string, err error) *Error {
	return &Error{Status: status, Code: code, Message: message, Err: err}
}
