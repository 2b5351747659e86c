// Package checksum provides the SHA-256 digest used to fingerprint audit archive
// batches. Every archived object carries its digest in object metadata so an
// auditor can prove a batch was not altered after upload.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Bytes returns the lower-case hex SHA-256 of data.
func SHA256Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
