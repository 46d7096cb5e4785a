package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentFingerprint returns the SHA-256 hex digest of the document content
// after whitespace normalization. Two snapshots with the same fingerprint are
// treated as the same content everywhere in the pipeline.
func ContentFingerprint(content string) string {
	normalized := strings.Join(strings.Fields(content), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
