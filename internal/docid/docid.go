// Package docid derives stable index document ids from content ids, languages, and sub-document paths.
package docid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

const sep = "_"

// For returns the document id for a content item's language and sub-document.
// An empty sub names the primary document. Same inputs always yield the same id.
func For(contentID uuid.UUID, language, sub string) string {
	base := contentID.String() + sep + language
	if sub == "" {
		return base
	}
	hash := sha256.Sum256([]byte(sub))
	return base + sep + hex.EncodeToString(hash[:8])
}

// Owner returns the content id a document id was derived from.
func Owner(docID string) (uuid.UUID, bool) {
	head, _, ok := strings.Cut(docID, sep)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(head)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
