// Package checksum provides SHA-256 helpers used to fingerprint export artifacts.
// The digest travels with every artifact (X-Content-Checksum header, export_artifacts
// row, object metadata) so a downloaded CSV can be checked against what was produced.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CalculateSHA256 returns the hex-encoded SHA-256 digest of everything read from reader.
func CalculateSHA256(reader io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, reader); err != nil {
		return "", fmt.Errorf("failed to calculate checksum: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify reports whether data hashes to expected.
func Verify(data []byte, expected string) bool {
	return Sum(data) == expected
}
