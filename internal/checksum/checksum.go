// Package checksum computes content fingerprints used for duplicate detection.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Content fingerprints a note payload. The type is part of the digest so the
// same URL stored as TEXT and as LINK are distinct notes; surrounding
// whitespace is ignored.
func Content(noteType, content string) string {
	return Sum([]byte(strings.ToUpper(noteType) + "\x00" + strings.TrimSpace(content)))
}
