// Package checksum computes and verifies file digests for downloaded images.
package checksum

import (
	"bufio"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// Algorithm identifies a supported hash algorithm.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

// readBufferSize is the chunk size used when streaming a file through a hash.
const readBufferSize = 8192

// ParseAlgorithm maps a checksum type name to an Algorithm, defaulting to
// SHA256 for unrecognized or empty names.
func ParseAlgorithm(name string) Algorithm {
	switch strings.ToLower(name) {
	case "md5":
		return MD5
	case "sha1":
		return SHA1
	case "sha512":
		return SHA512
	default:
		return SHA256
	}
}

// AlgorithmForDigest infers the algorithm from a hex digest's length.
// Returns false for lengths no supported algorithm produces.
func AlgorithmForDigest(digest string) (Algorithm, bool) {
	switch len(digest) {
	case 32:
		return MD5, true
	case 40:
		return SHA1, true
	case 64:
		return SHA256, true
	case 128:
		return SHA512, true
	}
	return "", false
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA1:
		return sha1.New(), nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", string(a))
	}
}

// Calculate streams the file at path through the given algorithm in fixed-size
// chunks and returns the lowercase hex digest. Any I/O error aborts the
// computation; there is no partial result.
func Calculate(path string, algorithm Algorithm) (string, error) {
	h, err := algorithm.newHash()
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	buf := make([]byte, readBufferSize)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile computes the file's digest and compares it case-insensitively
// against expected.
func VerifyFile(path, expected string, algorithm Algorithm) (bool, error) {
	actual, err := Calculate(path, algorithm)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}
