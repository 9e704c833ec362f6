// Package bitrot implements the per-block integrity check used by the
// shard reader: HighwayHash-256 with the fixed, all-zero 32-byte key that
// MinIO uses for its xl storage bitrot protection.
package bitrot

import (
	"crypto/subtle"

	"github.com/minio/highwayhash"
)

// Size is the length in bytes of a HighwayHash-256 digest.
const Size = highwayhash.Size

// key is the fixed 32-byte all-zero HighwayHash key. It is set once at
// package initialization and never modified — every Verifier uses the same key, and the
// zero Verifier value is ready to use.
var key = make([]byte, Size)

// Verifier computes and checks HighwayHash-256 digests. It is stateless and
// safe to share across goroutines.
type Verifier struct{}

// New returns a ready-to-use Verifier.
func New() Verifier { return Verifier{} }

// Digest returns the HighwayHash-256 digest of data.
func (Verifier) Digest(data []byte) []byte {
	h, err := highwayhash.New(key)
	if err != nil {
		// key is a fixed, correctly-sized constant; New only fails on bad
		// key length.
		panic("bitrot: invalid highwayhash key length: " + err.Error())
	}
	h.Write(data)
	return h.Sum(nil)
}

// Verify reports whether data hashes to expected under HighwayHash-256.
// The comparison is constant-time.
func (v Verifier) Verify(expected []byte, data []byte) bool {
	if len(expected) != Size {
		return false
	}
	got := v.Digest(data)
	return subtle.ConstantTimeCompare(expected, got) == 1
}
