package store

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// Fingerprint returns the hex-encoded blake3 hash of data. Used to
// detect unchanged transcripts so repeated saves skip the write.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
