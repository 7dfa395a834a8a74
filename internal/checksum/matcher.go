package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strings"
)

// Matcher verifies assembled upload files against the SHA-256 the client
// declared at init time.
type Matcher struct {
	expected string
}

func NewMatcher(expected string) *Matcher {
	return &Matcher{expected: strings.ToLower(strings.TrimSpace(expected))}
}

// Declared reports whether the client supplied a checksum at all.
func (m *Matcher) Declared() bool {
	return m.expected != ""
}

// MatchFile hashes the file in a single streaming pass and compares. A
// matcher with no declared checksum never matches; callers should check
// Declared first.
func (m *Matcher) MatchFile(path string) (bool, error) {
	if m.expected == "" {
		return false, errors.New("expected checksum is not set")
	}
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == m.expected, nil
}

// FileSHA256 returns the hex digest of a file, used when retaining source
// artifacts so duplicate uploads can be spotted in the logs.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
