// Package digest maps declared hash algorithm names onto streaming hash
// constructors and reports which algorithms piece validation can support.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"strings"
)

var constructors = map[string]func() hash.Hash{
	"md5":     md5.New,
	"sha-1":   sha1.New,
	"sha-256": sha256.New,
	"crc32":   func() hash.Hash { return crc32.NewIEEE() },
}

// normalize folds the common spellings ("SHA1", "sha-1") onto one key.
func normalize(algo string) string {
	a := strings.ToLower(algo)
	switch a {
	case "sha1":
		return "sha-1"
	case "sha256":
		return "sha-256"
	}
	return a
}

// Supported reports whether a streaming digest exists for algo.
func Supported(algo string) bool {
	_, ok := constructors[normalize(algo)]
	return ok
}

// New returns a fresh streaming hash for algo.
func New(algo string) (hash.Hash, error) {
	ctor, ok := constructors[normalize(algo)]
	if !ok {
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
	return ctor(), nil
}

// HexSum finalizes h into a lowercase hex string.
func HexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// SumReader streams r through a fresh algo digest. Used when a rolling hash
// was not kept and the persisted bytes are re-read instead.
func SumReader(algo string, r io.Reader) (string, error) {
	h, err := New(algo)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return HexSum(h), nil
}
