package docid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFor_deterministic(t *testing.T) {
	id := uuid.MustParse("8f14e45f-ceea-467f-a0e6-2f4f1d9e1c11")
	a := For(id, "en", "gallery[0]")
	b := For(id, "en", "gallery[0]")
	if a != b {
		t.Errorf("same input should give same id: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, id.String()+"_en_") {
		t.Errorf("id should be prefixed by content and language: %q", a)
	}
}

func TestFor_primaryDocument(t *testing.T) {
	id := uuid.MustParse("8f14e45f-ceea-467f-a0e6-2f4f1d9e1c11")
	if got, want := For(id, "de", ""), id.String()+"_de"; got != want {
		t.Errorf("For() = %q, want %q", got, want)
	}
}

func TestFor_distinct(t *testing.T) {
	id := uuid.New()
	seen := map[string]bool{}
	for _, in := range [][2]string{{"en", ""}, {"de", ""}, {"en", "a[0]"}, {"en", "a[1]"}, {"de", "a[0]"}} {
		got := For(id, in[0], in[1])
		if seen[got] {
			t.Errorf("duplicate id %q for %v", got, in)
		}
		seen[got] = true
	}
}

func TestOwner(t *testing.T) {
	id := uuid.New()
	for _, doc := range []string{For(id, "en", ""), For(id, "iv", "items[3]")} {
		got, ok := Owner(doc)
		if !ok || got != id {
			t.Errorf("Owner(%q) = %v, %v; want %v", doc, got, ok, id)
		}
	}
	if _, ok := Owner("not-a-doc-id"); ok {
		t.Error("expected malformed id to have no owner")
	}
}
