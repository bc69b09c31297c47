// Package fingerprint derives the content identity of an upload.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Fingerprint identifies a byte stream by digest and length. Two
// streams share a fingerprint iff they are byte-identical.
type Fingerprint struct {
	ContentHash string
	ByteSize    int64
}

// Tee returns a writer that fingerprints everything written through
// it. Callers stream the upload to storage and the hasher in one pass
// via io.MultiWriter, then call Sum.
func Tee() *Hasher {
	return &Hasher{hash: sha256.New()}
}

// Hasher accumulates a fingerprint as bytes pass through Write.
type Hasher struct {
	hash interface {
		io.Writer
		Sum([]byte) []byte
	}
	size int64
}

func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.hash.Write(p)
	h.size += int64(n)
	return n, err
}

// Sum returns the fingerprint of everything written so far.
func (h *Hasher) Sum() Fingerprint {
	return Fingerprint{
		ContentHash: hex.EncodeToString(h.hash.Sum(nil)),
		ByteSize:    h.size,
	}
}

// ComputeBytes fingerprints an in-memory payload.
func ComputeBytes(data []byte) Fingerprint {
	sum := sha256.Sum256(data)
	return Fingerprint{
		ContentHash: hex.EncodeToString(sum[:]),
		ByteSize:    int64(len(data)),
	}
}
