package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"strings"
)

type Algorithm string

const (
	MD5    Algorithm = "MD5"
	SHA1   Algorithm = "SHA1"
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

var constructors = map[Algorithm]func() hash.Hash{
	MD5:    md5.New,
	SHA1:   sha1.New,
	SHA256: sha256.New,
	SHA512: sha512.New,
}

// ParseAlgorithm accepts the configuration spellings "sha256", "SHA-256"
// and "SHA256".
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ToUpper(strings.ReplaceAll(s, "-", "")))
	if _, ok := constructors[a]; !ok {
		return "", fmt.Errorf("unsupported hash algorithm %q", s)
	}
	return a, nil
}

func (a Algorithm) Sum(data []byte) ([]byte, error) {
	newHash, ok := constructors[a]
	if !ok {
		return nil, fmt.Errorf("unsupported hash algorithm %q", string(a))
	}
	h := newHash()
	h.Write(data)
	return h.Sum(nil), nil
}

func (a Algorithm) SumHex(data []byte) (string, error) {
	sum, err := a.Sum(data)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// CanonicalSHA256 hashes the json.Marshal encoding of v.
func CanonicalSHA256(v any) (string, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}
