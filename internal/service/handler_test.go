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
	"testing"
	"time"

	"github.com/solacelabs/blobvault/internal/cache"
)

const testKeyID = "alias/blobvault-test"

type testEnv struct {
	handler *Handler
	store   *fakeBackend
	cipher  *fakeCipher
	cache   *cache.Cache
}

func newTestEnv(t *testing.T, opts ...func(*testEnv)) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  newFakeBackend(),
		cipher: &fakeCipher{},
		cache:  cache.New(10, 1<<20, time.Minute),
	}
	for _, opt := range opts {
		opt(env)
	}
	env.handler = NewHandler(env.store, env.cipher, env.cache, Config{KeyID: testKeyID}, nil, nil)
	return env
}

func do(t *testing.T, h *Handler, req Request) (Response, map[string]any) {
	t.Helper()
	resp := h.Handle(context.Background(), req)
	var body map[string]any
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("response body is not JSON: %v", err)
	}
	return resp, body
}

func uploadReq(payload string) Request {
	return Request{Method: "POST", ContentType: "application/octet-stream", Body: []byte(payload)}
}

func downloadReq(blobKey string) Request {
	return Request{Method: "POST", ContentType: "application/json", Body: []byte(`{"blobKey":"` + blobKey + `"}`)}
}

func wantErrorCode(t *testing.T, resp Response, body map[string]any, status int, code string) {
	t.Helper()
	if resp.Status != status {
		t.Fatalf("status = %d, want %d (body %s)", resp.Status, status, resp.Body)
	}
	if body["error_code"] != code {
		t.Fatalf("error_code = %v, want %s", body["error_code"], code)
	}
	if body["request_id"] == "" || body["request_id"] == nil {
		t.Fatal("error response missing request_id")
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	resp, body := do(t, env.handler, uploadReq("hello world"))
	if resp.Status != 200 {
		t.Fatalf("upload status = %d, body %s", resp.Status, resp.Body)
	}

	blobKey, _ := body["blobKey"].(string)
	if !strings.HasSuffix(blobKey, BlobKeySuffix) {
		t.Fatalf("blobKey %q missing %q suffix", blobKey, BlobKeySuffix)
	}
	if body["size"] != float64(11) {
		t.Fatalf("size = %v, want 11", body["size"])
	}
	hash, _ := body["hash"].(string)
	if len(hash) != 64 {
		t.Fatalf("hash length = %d, want 64", len(hash))
	}
	sum := sha256.Sum256([]byte("hello world"))
	if hash != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash = %s, want sha256 of plaintext", hash)
	}
	if body["encrypted"] != true {
		t.Fatalf("encrypted = %v, want true", body["encrypted"])
	}

	// First download comes from the store.
	resp, body = do(t, env.handler, downloadReq(blobKey))
	if resp.Status != 200 {
		t.Fatalf("download status = %d, body %s", resp.Status, resp.Body)
	}
	if body["plaintext"] != "hello world" {
		t.Fatalf("plaintext = %v, want %q", body["plaintext"], "hello world")
	}
	if body["cached"] != false {
		t.Fatalf("cached = %v on first download, want false", body["cached"])
	}
	meta, _ := body["metadata"].(map[string]any)
	if meta["encrypted"] != true {
		t.Fatalf("metadata.encrypted = %v, want true", meta["encrypted"])
	}
	if meta["version"] != "2.0" {
		t.Fatalf("metadata.version = %v, want 2.0", meta["version"])
	}

	// Second download within the TTL is a cache hit.
	resp, body = do(t, env.handler, downloadReq(blobKey))
	if resp.Status != 200 {
		t.Fatalf("cached download status = %d", resp.Status)
	}
	if body["cached"] != true {
		t.Fatalf("cached = %v on second download, want true", body["cached"])
	}
	if body["plaintext"] != "hello world" {
		t.Fatalf("cached plaintext = %v", body["plaintext"])
	}
	if env.store.getCalls != 1 {
		t.Fatalf("store.getCalls = %d, want 1", env.store.getCalls)
	}
}

func TestUploadStoresCiphertextNotPlaintext(t *testing.T) {
	env := newTestEnv(t)

	_, body := do(t, env.handler, uploadReq("secret"))
	blobKey := body["blobKey"].(string)

	obj := env.store.objects[blobKey]
	if string(obj.data) != string(seal([]byte("secret"))) {
		t.Fatalf("stored bytes = %q, want sealed payload", obj.data)
	}
	if obj.meta["encrypted"] != "true" {
		t.Fatalf("metadata encrypted = %q, want true", obj.meta["encrypted"])
	}
	if obj.meta["original-size"] != "6" {
		t.Fatalf("metadata original-size = %q, want 6", obj.meta["original-size"])
	}
	if obj.meta["content-hash"] == "" || obj.meta["upload-time"] == "" {
		t.Fatal("metadata missing content-hash or upload-time")
	}
}

func TestUploadBase64(t *testing.T) {
	env := newTestEnv(t)

	encoded := base64.StdEncoding.EncodeToString([]byte("binary payload"))
	req := uploadReq(encoded)
	req.IsBase64 = true

	resp, body := do(t, env.handler, req)
	if resp.Status != 200 {
		t.Fatalf("status = %d, body %s", resp.Status, resp.Body)
	}
	if body["size"] != float64(len("binary payload")) {
		t.Fatalf("size = %v, want decoded length", body["size"])
	}
}

func TestUploadInvalidBase64(t *testing.T) {
	env := newTestEnv(t)

	req := uploadReq("not*valid*base64")
	req.IsBase64 = true

	resp, body := do(t, env.handler, req)
	wantErrorCode(t, resp, body, 400, CodeInvalidBase64)
}

func TestUploadEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	resp, body := do(t, env.handler, uploadReq(""))
	wantErrorCode(t, resp, body, 400, CodeEmptyBody)
}

func TestUploadTooLarge(t *testing.T) {
	store := newFakeBackend()
	h := NewHandler(store, &fakeCipher{}, nil, Config{KeyID: testKeyID, MaxBlobSize: 16}, nil, nil)

	resp, body := do(t, h, uploadReq(strings.Repeat("x", 17)))
	wantErrorCode(t, resp, body, 413, CodeBlobTooLarge)
	if store.putCalls != 0 {
		t.Fatalf("store.putCalls = %d, want 0", store.putCalls)
	}
}

func TestUploadEncryptFailure(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.cipher.encryptErr = errors.New("kms unavailable")
	})
	resp, body := do(t, env.handler, uploadReq("data"))
	wantErrorCode(t, resp, body, 500, CodeEncryptError)
}

func TestUploadStoreFailure(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.store.putErr = errors.New("s3 down")
	})
	resp, body := do(t, env.handler, uploadReq("data"))
	wantErrorCode(t, resp, body, 500, CodeUploadError)
}

func TestUploadWithoutKeyStoresUnencrypted(t *testing.T) {
	store := newFakeBackend()
	cipher := &fakeCipher{}
	h := NewHandler(store, cipher, nil, Config{}, nil, nil)

	resp, body := do(t, h, uploadReq("plain"))
	if resp.Status != 200 {
		t.Fatalf("status = %d", resp.Status)
	}
	if body["encrypted"] != false {
		t.Fatalf("encrypted = %v, want false", body["encrypted"])
	}
	if cipher.encryptCalls != 0 {
		t.Fatalf("encryptCalls = %d, want 0", cipher.encryptCalls)
	}

	obj := store.objects[body["blobKey"].(string)]
	if string(obj.data) != "plain" {
		t.Fatalf("stored bytes = %q, want plaintext", obj.data)
	}
	if obj.meta["encrypted"] != "false" {
		t.Fatalf("metadata encrypted = %q, want false", obj.meta["encrypted"])
	}
}

func TestOptionsPreflight(t *testing.T) {
	env := newTestEnv(t)

	resp := env.handler.Handle(context.Background(), Request{Method: "OPTIONS"})
	if resp.Status != 200 {
		t.Fatalf("status = %d, want 200", resp.Status)
	}
	if len(resp.Body) != 0 {
		t.Fatalf("preflight body = %q, want empty", resp.Body)
	}
	if resp.Headers["Access-Control-Allow-Origin"] == "" {
		t.Fatal("missing CORS headers on preflight response")
	}
	if resp.Headers["Access-Control-Allow-Methods"] != "POST, OPTIONS" {
		t.Fatalf("Allow-Methods = %q", resp.Headers["Access-Control-Allow-Methods"])
	}
	if env.store.putCalls != 0 || env.store.getCalls != 0 {
		t.Fatal("preflight must have no side effects")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp, body := do(t, env.handler, Request{Method: "GET"})
	wantErrorCode(t, resp, body, 405, CodeMethodNotAllowed)
}

func TestUnsupportedContentType(t *testing.T) {
	env := newTestEnv(t)
	resp, body := do(t, env.handler, Request{Method: "POST", ContentType: "text/plain", Body: []byte("x")})
	wantErrorCode(t, resp, body, 400, CodeInvalidContent)
}

func TestContentTypeParameterStripped(t *testing.T) {
	env := newTestEnv(t)
	req := Request{
		Method:      "POST",
		ContentType: "application/json; charset=utf-8",
		Body:        []byte(`{}`),
	}
	resp, body := do(t, env.handler, req)
	// Routed to download, which then rejects the missing key.
	wantErrorCode(t, resp, body, 400, CodeMissingBlobKey)
}

func TestDownloadMissingBlobKey(t *testing.T) {
	env := newTestEnv(t)

	for _, payload := range []string{`{}`, ``} {
		req := Request{Method: "POST", ContentType: "application/json", Body: []byte(payload)}
		resp, body := do(t, env.handler, req)
		wantErrorCode(t, resp, body, 400, CodeMissingBlobKey)
	}
}

func TestDownloadInvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	req := Request{Method: "POST", ContentType: "application/json", Body: []byte(`{"blobKey":`)}
	resp, body := do(t, env.handler, req)
	wantErrorCode(t, resp, body, 400, CodeInvalidJSON)
}

func TestInvalidBlobKeyNeverReachesStore(t *testing.T) {
	env := newTestEnv(t)

	keys := []string{
		"../etc/passwd.blob",
		"a/b.blob",
		`a\b.blob`,
		"no-suffix",
		"sneaky..blob.blob",
		strings.Repeat("a", 101) + ".blob",
		".blob",
	}
	for _, key := range keys {
		resp, body := do(t, env.handler, downloadReq(key))
		wantErrorCode(t, resp, body, 400, CodeInvalidBlobKey)
	}
	if env.store.getCalls != 0 {
		t.Fatalf("store.getCalls = %d, want 0 for rejected keys", env.store.getCalls)
	}
}

func TestDownloadNotFound(t *testing.T) {
	env := newTestEnv(t)
	resp, body := do(t, env.handler, downloadReq(NewBlobKey()))
	wantErrorCode(t, resp, body, 404, CodeBlobNotFound)
}

func TestDownloadStoreFailure(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.store.getErr = errors.New("s3 down")
	})
	resp, body := do(t, env.handler, downloadReq(NewBlobKey()))
	wantErrorCode(t, resp, body, 500, CodeDownloadError)
}

func TestDownloadDecryptFailure(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.cipher.decryptErr = errors.New("kms unavailable")
	})
	key := NewBlobKey()
	env.store.objects[key] = fakeObject{data: seal([]byte("hi")), meta: map[string]string{"encrypted": "true"}}

	resp, body := do(t, env.handler, downloadReq(key))
	wantErrorCode(t, resp, body, 500, CodeDecryptError)
}

func TestDownloadAbsentMetadataAssumesEncrypted(t *testing.T) {
	env := newTestEnv(t)
	key := NewBlobKey()
	env.store.objects[key] = fakeObject{data: seal([]byte("external blob"))}

	resp, body := do(t, env.handler, downloadReq(key))
	if resp.Status != 200 {
		t.Fatalf("status = %d, body %s", resp.Status, resp.Body)
	}
	if body["plaintext"] != "external blob" {
		t.Fatalf("plaintext = %v", body["plaintext"])
	}
	if env.cipher.decryptCalls != 1 {
		t.Fatalf("decryptCalls = %d, want 1", env.cipher.decryptCalls)
	}
}

func TestDownloadUnencryptedMetadataSkipsDecrypt(t *testing.T) {
	env := newTestEnv(t)
	key := NewBlobKey()
	env.store.objects[key] = fakeObject{
		data: []byte("clear text"),
		meta: map[string]string{"encrypted": "false"},
	}

	resp, body := do(t, env.handler, downloadReq(key))
	if resp.Status != 200 {
		t.Fatalf("status = %d, body %s", resp.Status, resp.Body)
	}
	if body["plaintext"] != "clear text" {
		t.Fatalf("plaintext = %v", body["plaintext"])
	}
	if env.cipher.decryptCalls != 0 {
		t.Fatalf("decryptCalls = %d, want 0", env.cipher.decryptCalls)
	}
	meta := body["metadata"].(map[string]any)
	if meta["version"] != "1.0" {
		t.Fatalf("metadata.version = %v, want 1.0 fallback", meta["version"])
	}
}

func TestDownloadIntegrityMismatch(t *testing.T) {
	env := newTestEnv(t)
	key := NewBlobKey()
	env.store.objects[key] = fakeObject{
		data: seal([]byte("tampered")),
		meta: map[string]string{
			"encrypted":    "true",
			"content-hash": strings.Repeat("0", 64),
		},
	}

	resp, body := do(t, env.handler, downloadReq(key))
	wantErrorCode(t, resp, body, 500, CodeIntegrityError)
}

func TestDownloadInvalidEncoding(t *testing.T) {
	env := newTestEnv(t)
	key := NewBlobKey()
	env.store.objects[key] = fakeObject{
		data: []byte{0xff, 0xfe, 0xfd},
		meta: map[string]string{"encrypted": "false"},
	}

	resp, body := do(t, env.handler, downloadReq(key))
	wantErrorCode(t, resp, body, 400, CodeInvalidEncoding)
}

func TestExpiredCacheEntryFallsThroughToStore(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.cache = cache.New(10, 1<<20, time.Nanosecond)
	})

	_, body := do(t, env.handler, uploadReq("short lived"))
	key := body["blobKey"].(string)

	for i := 1; i <= 2; i++ {
		resp, body := do(t, env.handler, downloadReq(key))
		if resp.Status != 200 {
			t.Fatalf("download %d status = %d", i, resp.Status)
		}
		if body["cached"] != false {
			t.Fatalf("download %d cached = %v, want false with expired TTL", i, body["cached"])
		}
	}
	if env.store.getCalls != 2 {
		t.Fatalf("store.getCalls = %d, want 2", env.store.getCalls)
	}
}

func TestCorruptCacheEntryEvictedAndRefetched(t *testing.T) {
	env := newTestEnv(t)

	_, body := do(t, env.handler, uploadReq("good data"))
	key := body["blobKey"].(string)

	// Poison the cache with bytes that do not decode as text.
	env.cache.Put(key, []byte{0xff, 0xfe})

	resp, body := do(t, env.handler, downloadReq(key))
	if resp.Status != 200 {
		t.Fatalf("status = %d, body %s", resp.Status, resp.Body)
	}
	if body["plaintext"] != "good data" {
		t.Fatalf("plaintext = %v, want refetched data", body["plaintext"])
	}
	if body["cached"] != false {
		t.Fatalf("cached = %v, want false after eviction", body["cached"])
	}
	if env.store.getCalls != 1 {
		t.Fatalf("store.getCalls = %d, want 1", env.store.getCalls)
	}
}

func TestNilStoreIsConfigError(t *testing.T) {
	h := NewHandler(nil, nil, nil, Config{}, nil, nil)
	resp, body := do(t, h, uploadReq("x"))
	wantErrorCode(t, resp, body, 500, CodeConfigError)
}

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	env := newTestEnv(t)

	req := uploadReq("hello")
	req.RequestID = "req-123"
	_, body := do(t, env.handler, req)
	if body["request_id"] != "req-123" {
		t.Fatalf("request_id = %v, want echoed req-123", body["request_id"])
	}

	_, body = do(t, env.handler, uploadReq("hello"))
	if id, _ := body["request_id"].(string); id == "" {
		t.Fatal("request_id not generated when absent")
	}
}

func TestUploadResponseOmitsPayload(t *testing.T) {
	env := newTestEnv(t)
	_, body := do(t, env.handler, uploadReq("do not echo me"))
	if _, ok := body["plaintext"]; ok {
		t.Fatal("upload response must not echo the payload")
	}
	if ts, ok := body["timestamp"].(float64); !ok || int64(ts) <= 0 {
		t.Fatalf("timestamp = %v", body["timestamp"])
	}
	if body["version"] != "2.0" {
		t.Fatalf("version = %v, want 2.0", body["version"])
	}
}

func TestGeneratedKeysAreUnique(t *testing.T) {
	env := newTestEnv(t)
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		_, body := do(t, env.handler, uploadReq("payload "+strconv.Itoa(i)))
		key := body["blobKey"].(string)
		if seen[key] {
			t.Fatalf("duplicate generated key %q", key)
		}
		seen[key] = true
		if !ValidBlobKey(key) {
			t.Fatalf("generated key %q fails validation", key)
		}
	}
	if got := len(env.store.storedKeys()); got != 10 {
		t.Fatalf("stored objects = %d, want 10", got)
	}
}
