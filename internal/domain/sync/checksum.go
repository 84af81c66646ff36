package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ChecksumPair is one (SKU, content hash) input to a catalog checksum
type ChecksumPair struct {
	SKU         string
	ContentHash string
}

// ComputeCatalogChecksum computes the deterministic checksum of a set of
// (SKU, content hash) pairs. The pairs are sorted by SKU before hashing so
// the result is independent of input ordering; agents compute the same
// digest over their own catalog view.
func ComputeCatalogChecksum(pairs []ChecksumPair) string {
	sorted := make([]ChecksumPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].SKU < sorted[j].SKU
	})

	var b strings.Builder
	for i, p := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.SKU)
		b.WriteByte(':')
		b.WriteString(p.ContentHash)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
