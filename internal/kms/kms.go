// Package kms provides the key-management collaborator used for
// application-level blob encryption.
package kms

import "context"

// Cipher encrypts and decrypts blob payloads under a managed key.
// Implementations must be safe for concurrent use.
type Cipher interface {
	// Encrypt encrypts plaintext under the given key identifier.
	Encrypt(ctx context.Context, keyID string, plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext. The key identifier is carried inside the
	// ciphertext envelope, as produced by the managed service.
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}
