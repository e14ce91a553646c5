package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/sells-group/literature-agent/internal/model"
)

// hashLen is the number of hex characters kept from the SHA-256 digest.
// 16 hex chars (64 bits) keeps IDs short; collision risk is negligible for
// the corpus sizes this pipeline sees (thousands of items, not billions).
const hashLen = 16

// StableHash returns the first 16 hex characters of the SHA-256 digest of
// text. Deterministic across runs and platforms.
func StableHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:hashLen]
}

// TitleHash hashes a normalized title. Titles differing only by case,
// accents, or punctuation produce the same hash.
func TitleHash(title string) string {
	return StableHash(NormalizeTitle(title))
}

// CompositeHash derives a hash-based canonical ID from a title, year, and
// venue. Used by sources without a native identifier. An empty title still
// produces an ID from year+venue alone; near-duplicate empty-title items from
// the same venue and year will therefore collide. That is a known weak point,
// accepted because such items carry no usable dedup signal anyway.
func CompositeHash(title string, year int, venue string) string {
	return StableHash(fmt.Sprintf("%s_%d_%s", NormalizeTitle(title), year, venue))
}

// Resolve returns the canonical ID for a record. Records whose retrieval
// client already assigned an ID (native or precomputed hash) keep it
// verbatim; anything else falls back to the composite hash.
func Resolve(rec model.Record) string {
	if rec.CanonicalID != "" {
		return rec.CanonicalID
	}
	return CompositeHash(rec.Title, rec.Year, rec.Venue)
}
