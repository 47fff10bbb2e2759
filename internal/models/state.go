package models

import (
	"sort"
)

// TextContentState is the per-content bookkeeping of which index documents exist.
// The ids recorded here are exactly the ids present in the committed index.
type TextContentState struct {
	ContentID        ContentID           `json:"content_id"`
	DocIDsByLanguage map[string][]string `json:"doc_ids"`
}

// NewTextContentState builds a normalized state from language -> doc ids.
func NewTextContentState(id ContentID, byLanguage map[string][]string) *TextContentState {
	s := &TextContentState{ContentID: id, DocIDsByLanguage: make(map[string][]string, len(byLanguage))}
	for lang, ids := range byLanguage {
		s.DocIDsByLanguage[lang] = append([]string(nil), ids...)
	}
	s.Normalize()
	return s
}

// Normalize sorts and de-duplicates each id list and drops empty languages.
func (s *TextContentState) Normalize() {
	for lang, ids := range s.DocIDsByLanguage {
		ids = sortedUnique(ids)
		if len(ids) == 0 {
			delete(s.DocIDsByLanguage, lang)
			continue
		}
		s.DocIDsByLanguage[lang] = ids
	}
}

// AllDocIDs returns the sorted union of every language's ids. A nil state has none.
func (s *TextContentState) AllDocIDs() []string {
	if s == nil {
		return nil
	}
	var all []string
	for _, ids := range s.DocIDsByLanguage {
		all = append(all, ids...)
	}
	return sortedUnique(all)
}

// Languages returns the sorted languages that currently own documents.
func (s *TextContentState) Languages() []string {
	if s == nil {
		return nil
	}
	langs := make([]string, 0, len(s.DocIDsByLanguage))
	for lang := range s.DocIDsByLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// IsEmpty reports whether the state references no documents.
func (s *TextContentState) IsEmpty() bool {
	return s == nil || len(s.AllDocIDs()) == 0
}

// Clone returns a deep copy.
func (s *TextContentState) Clone() *TextContentState {
	if s == nil {
		return nil
	}
	return NewTextContentState(s.ContentID, s.DocIDsByLanguage)
}

// Equal compares two states after normalization.
func (s *TextContentState) Equal(other *TextContentState) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	if s.ContentID != other.ContentID {
		return false
	}
	a, b := s.Clone(), other.Clone()
	if len(a.DocIDsByLanguage) != len(b.DocIDsByLanguage) {
		return false
	}
	for lang, ids := range a.DocIDsByLanguage {
		o, ok := b.DocIDsByLanguage[lang]
		if !ok || len(o) != len(ids) {
			return false
		}
		for i := range ids {
			if ids[i] != o[i] {
				return false
			}
		}
	}
	return true
}

func sortedUnique(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for _, id := range out {
		if id == "" || (n > 0 && id == out[n-1]) {
			continue
		}
		out[n] = id
		n++
	}
	if n == 0 {
		return nil
	}
	return out[:n]
}
