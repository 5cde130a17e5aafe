// Package contenthash fingerprints uploaded material so the same content
// is not imported twice.
package contenthash

import (
	"crypto/sha256"
	"fmt"
	"path/filepath"
	"strings"
)

// textExtensions are hashed after normalisation; everything else is hashed raw.
var textExtensions = map[string]bool{
	".txt": true,
}

// Normalize lowercases text, unifies line endings and trims surrounding
// whitespace, so cosmetic edits do not produce a new fingerprint.
func Normalize(text string) string {
	t := strings.ToLower(text)
	t = strings.ReplaceAll(t, "\r\n", "\n")
	return strings.TrimSpace(t)
}

// Sum returns the SHA-256 of data as a hex string.
func Sum(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ForFile fingerprints a file's content, normalising text formats first.
func ForFile(name string, data []byte) string {
	if textExtensions[strings.ToLower(filepath.Ext(name))] {
		return Sum([]byte(Normalize(string(data))))
	}
	return Sum(data)
}
