// Package service implements the blob request router: dispatch by content
// type, the upload and download paths, and the uniform response envelope.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/solacelabs/blobvault/internal/blobstore/physical"
	"github.com/solacelabs/blobvault/internal/cache"
	"github.com/solacelabs/blobvault/internal/kms"
	"github.com/solacelabs/blobvault/internal/observability"
	"github.com/solacelabs/blobvault/pkg/logging"
)

// DefaultMaxBlobSize bounds upload payloads.
const DefaultMaxBlobSize = 10 << 20 // 10MiB

const (
	contentTypeUpload   = "application/octet-stream"
	contentTypeDownload = "application/json"
)

// Object metadata keys. S3 lowercases metadata keys on read, so these are
// lowercase by construction.
const (
	metaRequestID    = "request-id"
	metaContentHash  = "content-hash"
	metaEncrypted    = "encrypted"
	metaUploadTime   = "upload-time"
	metaOriginalSize = "original-size"
	metaVersion      = "version"
)

// Config carries the handler's request-independent settings.
type Config struct {
	// KeyID is the key-management key identifier. Empty disables
	// application-level encryption; blobs are then stored as given.
	KeyID string

	// MaxBlobSize bounds decoded upload payloads. Zero means DefaultMaxBlobSize.
	MaxBlobSize int64
}

// Handler routes blob requests to the upload or download path. Collaborators
// are injected once at construction; the handler holds no per-request state
// and is safe for concurrent use.
type Handler struct {
	store   physical.Backend
	cipher  kms.Cipher
	cache   *cache.Cache
	cfg     Config
	metrics *observability.Metrics
	log     *logging.Logger
}

// NewHandler creates a Handler. cipher may be nil when cfg.KeyID is empty,
// cache and metrics may be nil to disable them.
func NewHandler(store physical.Backend, cipher kms.Cipher, c *cache.Cache, cfg Config, metrics *observability.Metrics, log *logging.Logger) *Handler {
	if cfg.MaxBlobSize <= 0 {
		cfg.MaxBlobSize = DefaultMaxBlobSize
	}
	if log == nil {
		log = logging.New(nil)
	}
	return &Handler{
		store:   store,
		cipher:  cipher,
		cache:   c,
		cfg:     cfg,
		metrics: metrics,
		log:     log,
	}
}

// Handle processes one request and always produces a well-formed envelope.
// Domain errors map to their status and code; anything else is logged in
// full and collapsed to INTERNAL_ERROR.
func (h *Handler) Handle(ctx context.Context, req Request) Response {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	log := h.log.WithCorrelation(requestID)
	log.InfoContext(ctx, "request started",
		"method", req.Method, "source_ip", req.SourceIP, "user_agent", req.UserAgent)

	op, data, err := h.dispatch(ctx, req, requestID, log)
	if err != nil {
		var svcErr *Error
		if !errors.As(err, &svcErr) {
			log.ErrorContext(ctx, "unexpected error", "error", err)
			svcErr = newError(500, CodeInternalError, "Internal server error")
		}
		log.ErrorContext(ctx, "request failed",
			"error_code", svcErr.Code, "status", svcErr.Status, "error", svcErr.Message)
		h.record(op, "error", start)
		return errorResponse(svcErr, requestID)
	}

	log.InfoContext(ctx, "request completed", "duration", time.Since(start).Seconds())
	h.record(op, "ok", start)
	if op == "preflight" {
		// Preflight responses carry headers only.
		return Response{Status: 200, Headers: securityHeaders()}
	}
	return successResponse(data, requestID)
}

// dispatch resolves the intended operation from method and content type.
func (h *Handler) dispatch(ctx context.Context, req Request, requestID string, log *logging.Logger) (string, map[string]any, error) {
	if h.store == nil {
		return "dispatch", nil, newError(500, CodeConfigError, "blob store not configured")
	}

	method := strings.ToUpper(req.Method)
	if method == "OPTIONS" {
		// CORS preflight: empty success, no side effects.
		return "preflight", map[string]any{}, nil
	}
	if method != "POST" {
		return "dispatch", nil, newError(405, CodeMethodNotAllowed, "Method "+req.Method+" not allowed")
	}

	// Strip any trailing parameter such as a charset.
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(req.ContentType, ";", 2)[0]))
	switch contentType {
	case contentTypeUpload:
		data, err := h.upload(ctx, req, requestID, log)
		return "upload", data, err
	case contentTypeDownload:
		data, err := h.download(ctx, req, log)
		return "download", data, err
	default:
		return "dispatch", nil, newError(400, CodeInvalidContent, "Unsupported content type: "+contentType)
	}
}

func (h *Handler) upload(ctx context.Context, req Request, requestID string, log *logging.Logger) (map[string]any, error) {
	if len(req.Body) == 0 {
		return nil, newError(400, CodeEmptyBody, "Empty request body")
	}

	blobData := req.Body
	if req.IsBase64 {
		decoded, err := base64.StdEncoding.DecodeString(string(req.Body))
		if err != nil {
			return nil, wrapError(400, CodeInvalidBase64, "Invalid base64 encoding", err)
		}
		blobData = decoded
	}

	size := int64(len(blobData))
	if size == 0 {
		return nil, newError(400, CodeEmptyBlob, "Empty blob data")
	}
	if size > h.cfg.MaxBlobSize {
		return nil, newError(413, CodeBlobTooLarge, "Blob size exceeds "+strconv.FormatInt(h.cfg.MaxBlobSize, 10)+" bytes")
	}

	blobKey := NewBlobKey()
	sum := sha256.Sum256(blobData)
	blobHash := hex.EncodeToString(sum[:])

	log.InfoContext(ctx, "uploading blob", "blob_key", blobKey, "size_bytes", size)

	encrypted := h.cfg.KeyID != ""
	stored := blobData
	if encrypted {
		if h.cipher == nil {
			return nil, newError(500, CodeConfigError, "encryption key configured without a cipher")
		}
		ciphertext, err := h.cipher.Encrypt(ctx, h.cfg.KeyID, blobData)
		if err != nil {
			return nil, wrapError(500, CodeEncryptError, "Encryption failed", err)
		}
		stored = ciphertext
	} else {
		log.WarnContext(ctx, "no encryption key configured, storing unencrypted", "blob_key", blobKey)
	}

	metadata := map[string]string{
		metaRequestID:    requestID,
		metaContentHash:  blobHash,
		metaEncrypted:    strconv.FormatBool(encrypted),
		metaUploadTime:   strconv.FormatInt(time.Now().Unix(), 10),
		metaOriginalSize: strconv.FormatInt(size, 10),
		metaVersion:      bodyVersion,
	}

	if err := h.store.Put(ctx, blobKey, stored, metadata); err != nil {
		return nil, wrapError(500, CodeUploadError, "Upload failed", err)
	}

	if h.metrics != nil {
		h.metrics.BytesProcessed.WithLabelValues("upload").Add(float64(size))
	}
	log.InfoContext(ctx, "blob uploaded", "blob_key", blobKey, "size_bytes", size, "encrypted", encrypted)

	return map[string]any{
		"blobKey":   blobKey,
		"size":      size,
		"hash":      blobHash,
		"encrypted": encrypted,
	}, nil
}

func (h *Handler) download(ctx context.Context, req Request, log *logging.Logger) (map[string]any, error) {
	var body struct {
		BlobKey string `json:"blobKey"`
	}
	if len(req.Body) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, wrapError(400, CodeInvalidJSON, "Invalid JSON in request body", err)
		}
	}

	if body.BlobKey == "" {
		return nil, newError(400, CodeMissingBlobKey, "blobKey is required")
	}
	// Format check gates all store access; traversal-style keys stop here.
	if !ValidBlobKey(body.BlobKey) {
		return nil, newError(400, CodeInvalidBlobKey, "Invalid blob key format")
	}
	blobKey := body.BlobKey

	log.InfoContext(ctx, "downloading blob", "blob_key", blobKey)

	if h.cache != nil {
		if data, ok := h.cache.Get(blobKey); ok {
			if utf8.Valid(data) {
				if h.metrics != nil {
					h.metrics.CacheRequests.WithLabelValues("hit").Inc()
				}
				log.InfoContext(ctx, "cache hit", "blob_key", blobKey)
				return map[string]any{
					"plaintext": string(data),
					"size":      len(data),
					"cached":    true,
					"metadata":  map[string]any{"cache_hit": true},
				}, nil
			}
			// Undecodable cache entry: drop it and fall through to the store.
			h.cache.Evict(blobKey)
		}
		if h.metrics != nil {
			h.metrics.CacheRequests.WithLabelValues("miss").Inc()
		}
	}

	stored, metadata, err := h.store.Get(ctx, blobKey)
	if err != nil {
		if errors.Is(err, physical.ErrNotFound) {
			return nil, wrapError(404, CodeBlobNotFound, "Blob not found", err)
		}
		return nil, wrapError(500, CodeDownloadError, "Failed to retrieve blob", err)
	}

	// No metadata means the blob was written outside this system; assume it
	// is encrypted (compatibility default).
	encrypted := metadata[metaEncrypted] == "true" || len(metadata) == 0

	plaintext := stored
	if encrypted {
		if h.cipher == nil {
			return nil, newError(500, CodeConfigError, "encrypted blob requires a cipher")
		}
		decrypted, err := h.cipher.Decrypt(ctx, stored)
		if err != nil {
			return nil, wrapError(500, CodeDecryptError, "Decryption failed", err)
		}
		plaintext = decrypted
	}

	if h.cache != nil {
		h.cache.Put(blobKey, plaintext)
	}

	if !utf8.Valid(plaintext) {
		return nil, newError(400, CodeInvalidEncoding, "Invalid text encoding")
	}

	if wantHash, ok := metadata[metaContentHash]; ok {
		sum := sha256.Sum256(plaintext)
		if hex.EncodeToString(sum[:]) != wantHash {
			return nil, newError(500, CodeIntegrityError, "Data integrity check failed")
		}
	}

	if h.metrics != nil {
		h.metrics.BytesProcessed.WithLabelValues("download").Add(float64(len(plaintext)))
	}
	log.InfoContext(ctx, "blob downloaded", "blob_key", blobKey, "size_bytes", len(plaintext), "encrypted", encrypted)

	var uploadTime any
	if v, ok := metadata[metaUploadTime]; ok {
		uploadTime = v
	}
	version := metadata[metaVersion]
	if version == "" {
		version = "1.0"
	}

	return map[string]any{
		"plaintext": string(plaintext),
		"size":      len(plaintext),
		"cached":    false,
		"metadata": map[string]any{
			"upload_time": uploadTime,
			"encrypted":   metadata[metaEncrypted] == "true",
			"version":     version,
			"cache_hit":   false,
		},
	}, nil
}

func (h *Handler) record(op, status string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RequestDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	h.metrics.RequestTotal.WithLabelValues(op, status).Inc()
}
