// Package sha256 computes content digests for stored attachments.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/sam-opportunity-harvester/internal/harvest"
)

var _ harvest.Hasher = (*Hasher)(nil)

// Hasher digests attachment payloads. Identical bytes always map to the same
// lowercase hex digest.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex SHA-256 digest of payload.
func (*Hasher) Hash(payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:]), nil
}
