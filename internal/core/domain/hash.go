package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// ConfidenceBucket rounds a confidence score to one decimal place, so small
// OCR jitter between extractions does not register as a content change.
func ConfidenceBucket(confidence float64) int {
	return int(math.Round(confidence * 10))
}

// ComputeContentHash returns the SHA-256 hex digest of the unit's semantic
// fields. Timestamps and identifiers of the extraction run are excluded.
func ComputeContentHash(u SyncableUnit) string {
	var b strings.Builder
	b.WriteString(string(u.ItemType))
	b.WriteByte(0)
	b.WriteString(strings.TrimSpace(u.Text))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(u.Sequence))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(ConfidenceBucket(u.Confidence)))
	if u.ItemType == ItemTypeTodo {
		b.WriteByte(0)
		b.WriteString(strconv.FormatBool(u.Completed))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// WithHash returns a copy of the unit with ContentHash populated.
func (u SyncableUnit) WithHash() SyncableUnit {
	u.ContentHash = ComputeContentHash(u)
	return u
}
