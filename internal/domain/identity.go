package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// KeyFunc derives the dedup identity of a record.
type KeyFunc func(Record) string

// StructuralKey derives a key from author, text and date.
func StructuralKey(r Record) string {
	h := sha256.New()
	h.Write([]byte(r.Author))
	h.Write([]byte{0x1f})
	h.Write([]byte(r.Text))
	h.Write([]byte{0x1f})
	h.Write([]byte(r.Date))
	return "s:" + hex.EncodeToString(h.Sum(nil))
}

// ExplicitKey is the record id, or its structural key when the id is empty.
func ExplicitKey(r Record) string {
	if r.ID == "" {
		return StructuralKey(r)
	}
	return r.ID
}
