package service

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/solacelabs/blobvault/internal/blobstore/physical"
)

type fakeObject struct {
	data []byte
	meta map[string]string
}

// fakeBackend is an in-memory physical.Backend that records calls and can be
// primed with errors.
type fakeBackend struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	putCalls int
	getCalls int
	putErr   error
	getErr   error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: make(map[string]fakeObject)}
}

func (b *fakeBackend) Put(_ context.Context, key string, data []byte, metadata map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putCalls++
	if b.putErr != nil {
		return b.putErr
	}
	b.objects[key] = fakeObject{data: data, meta: metadata}
	return nil
}

func (b *fakeBackend) Get(_ context.Context, key string) ([]byte, map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getCalls++
	if b.getErr != nil {
		return nil, nil, b.getErr
	}
	obj, ok := b.objects[key]
	if !ok {
		return nil, nil, physical.ErrNotFound
	}
	return obj.data, obj.meta, nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) storedKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	return keys
}

var sealPrefix = []byte("sealed:")

// fakeCipher seals payloads with a marker prefix so tests can tell
// ciphertext from plaintext.
type fakeCipher struct {
	mu           sync.Mutex
	encryptCalls int
	decryptCalls int
	encryptErr   error
	decryptErr   error
}

func (c *fakeCipher) Encrypt(_ context.Context, keyID string, plaintext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encryptCalls++
	if c.encryptErr != nil {
		return nil, c.encryptErr
	}
	if keyID == "" {
		return nil, errors.New("empty key id")
	}
	return append(append([]byte{}, sealPrefix...), plaintext...), nil
}

func (c *fakeCipher) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decryptCalls++
	if c.decryptErr != nil {
		return nil, c.decryptErr
	}
	if !bytes.HasPrefix(ciphertext, sealPrefix) {
		return nil, errors.New("not a sealed payload")
	}
	return ciphertext[len(sealPrefix):], nil
}

func seal(plaintext []byte) []byte {
	return append(append([]byte{}, sealPrefix...), plaintext...)
}
