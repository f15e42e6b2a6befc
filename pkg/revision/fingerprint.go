package revision

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// Algorithm names a digest used for fingerprints.
type Algorithm string

const (
	AlgorithmMD5    Algorithm = "md5"
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmXXHash Algorithm = "xxhash"
)

// DefaultFingerprintLength matches the 10 hex characters produced by gulp-rev.
const DefaultFingerprintLength = 10

// Algorithms lists the supported digests in display order.
var Algorithms = []Algorithm{AlgorithmMD5, AlgorithmSHA256, AlgorithmXXHash}

// Fingerprinter computes short content tokens suitable for file names.
type Fingerprinter struct {
	algorithm Algorithm
	length    int
}

// NewFingerprinter creates a fingerprinter. A length of zero keeps the full digest.
func NewFingerprinter(algorithm Algorithm, length int) (*Fingerprinter, error) {
	if algorithm == "" {
		algorithm = AlgorithmMD5
	}
	if _, err := newHash(algorithm); err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("fingerprint length must not be negative: %d", length)
	}
	return &Fingerprinter{algorithm: algorithm, length: length}, nil
}

// DefaultFingerprinter returns an md5 fingerprinter truncated to 10 hex characters.
func DefaultFingerprinter() *Fingerprinter {
	return &Fingerprinter{algorithm: AlgorithmMD5, length: DefaultFingerprintLength}
}

// Algorithm returns the digest in use.
func (f *Fingerprinter) Algorithm() Algorithm { return f.algorithm }

// Length returns the number of hex characters in a fingerprint.
func (f *Fingerprinter) Length() int {
	full := fullLength(f.algorithm)
	if f.length == 0 || f.length > full {
		return full
	}
	return f.length
}

// Sum fingerprints everything read from r.
func (f *Fingerprinter) Sum(r io.Reader) (string, error) {
	h, _ := newHash(f.algorithm)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return f.truncate(hex.EncodeToString(h.Sum(nil))), nil
}

// SumBytes fingerprints an in-memory buffer.
func (f *Fingerprinter) SumBytes(data []byte) string {
	h, _ := newHash(f.algorithm)
	_, _ = h.Write(data)
	return f.truncate(hex.EncodeToString(h.Sum(nil)))
}

// SumFile fingerprints a file on disk, returning a *ReadError on failure.
func (f *Fingerprinter) SumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	defer func() { _ = file.Close() }()

	sum, err := f.Sum(file)
	if err != nil {
		return "", &ReadError{Path: path, Err: err}
	}
	return sum, nil
}

func (f *Fingerprinter) truncate(sum string) string {
	if n := f.Length(); n < len(sum) {
		return sum[:n]
	}
	return sum
}

func newHash(a Algorithm) (hash.Hash, error) {
	switch a {
	case AlgorithmMD5:
		return md5.New(), nil
	case AlgorithmSHA256:
		return sha256.New(), nil
	case AlgorithmXXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("unknown fingerprint algorithm %q", a)
	}
}

func fullLength(a Algorithm) int {
	switch a {
	case AlgorithmSHA256:
		return sha256.Size * 2
	case AlgorithmXXHash:
		return 16
	default:
		return md5.Size * 2
	}
}
