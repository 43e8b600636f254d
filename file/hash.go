package file

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// ErrUnknownAlgorithm indicates an unsupported hash algorithm name.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Algorithm identifies a file digest algorithm by its XEP-0300 wire name.
type Algorithm string

const (
	// SHA256 is the default file digest algorithm.
	SHA256 Algorithm = "sha-256"
	// SHA3_256 is the SHA-3 variant of the file digest.
	SHA3_256 Algorithm = "sha3-256"
	// BLAKE2b256 is the BLAKE2b variant of the file digest.
	BLAKE2b256 Algorithm = "blake2b-256"
)

// New returns a fresh hash state for the algorithm.
func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA3_256:
		return sha3.New256(), nil
	case BLAKE2b256:
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, fmt.Errorf("blake2b init: %w", err)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
	}
}

// Valid reports whether the algorithm is supported.
func (a Algorithm) Valid() bool {
	_, err := a.New()
	return err == nil
}

// DigestFile computes the digest of the file at path with the given
// algorithm. File-system errors are returned as-is so callers can
// distinguish them from protocol errors.
func DigestFile(path string, algo Algorithm) ([]byte, error) {
	h, err := algo.New()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
