// Package mapper flattens localized, nested content data into search documents.
//
// Mapping is pure: the same content and schema always produce the same documents
// (same ids, same field paths, same order). The indexer relies on this to diff
// the mapped set against the previously indexed set.
package mapper

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/contentindex/internal/docid"
	"github.com/hyperjump/contentindex/internal/models"
)

// DefaultMaxFieldsPerDocument bounds the text fields of one primary document before it is paged.
const DefaultMaxFieldsPerDocument = 64

// Mapper converts content into search documents.
type Mapper struct {
	maxFields int
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithMaxFieldsPerDocument sets the text field count above which a primary document is split into pages.
func WithMaxFieldsPerDocument(n int) Option {
	return func(m *Mapper) {
		if n > 0 {
			m.maxFields = n
		}
	}
}

// New creates a mapper.
func New(opts ...Option) *Mapper {
	m := &Mapper{maxFields: DefaultMaxFieldsPerDocument}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Result is the mapped document set of one content item.
type Result struct {
	// Documents sorted by id.
	Documents []*models.SearchDocument
	// Languages that produced at least one document, sorted.
	Languages []string
	// Retired are schema languages that produced no document.
	Retired []string
}

// DocIDsByLanguage groups the document ids by language.
func (r *Result) DocIDsByLanguage() map[string][]string {
	out := make(map[string][]string)
	for _, d := range r.Documents {
		out[d.Language] = append(out[d.Language], d.ID)
	}
	return out
}

// State returns the index state describing exactly the mapped documents.
func (r *Result) State(id models.ContentID) *models.TextContentState {
	return models.NewTextContentState(id, r.DocIDsByLanguage())
}

// Map flattens content into documents. A *models.MappingError is returned when a
// value cannot be typed as its schema field demands (e.g. invalid coordinates).
func (m *Mapper) Map(content *models.Content, schema *models.Schema) (*Result, error) {
	if content == nil {
		return nil, fmt.Errorf("content is nil")
	}
	langs := make(map[string]*languageBuilder)
	builder := func(lang string) *languageBuilder {
		lb, ok := langs[lang]
		if !ok {
			lb = newLanguageBuilder(content, lang)
			langs[lang] = lb
		}
		return lb
	}

	for _, name := range sortedKeys(content.Data) {
		def, ok := schema.Field(name)
		if !ok {
			def = models.FieldDef{Name: name, Type: models.FieldJSON}
		}
		partitions := content.Data[name]
		for _, lang := range sortedKeys(partitions) {
			if lang == "" {
				continue
			}
			lb := builder(lang)
			w := &writer{contentID: content.ID}
			var err error
			if def.Type == models.FieldArray {
				err = lb.addArray(w, def, partitions[lang])
			} else {
				err = w.add(lb.primary, name, def, partitions[lang])
			}
			if err != nil {
				return nil, err
			}
		}
	}

	result := &Result{}
	for _, lang := range sortedKeys(langs) {
		docs := langs[lang].build(m.maxFields)
		if len(docs) == 0 {
			continue
		}
		result.Documents = append(result.Documents, docs...)
		result.Languages = append(result.Languages, lang)
	}
	sort.Slice(result.Documents, func(i, j int) bool {
		return result.Documents[i].ID < result.Documents[j].ID
	})
	if schema != nil {
		produced := make(map[string]bool, len(result.Languages))
		for _, l := range result.Languages {
			produced[l] = true
		}
		for _, l := range sortedUnique(schema.Languages) {
			if !produced[l] {
				result.Retired = append(result.Retired, l)
			}
		}
	}
	return result, nil
}

// languageBuilder collects the documents of one language.
type languageBuilder struct {
	content *models.Content
	lang    string
	primary *models.SearchDocument
	subs    map[string]*models.SearchDocument
}

func newLanguageBuilder(content *models.Content, lang string) *languageBuilder {
	return &languageBuilder{
		content: content,
		lang:    lang,
		primary: newDocument(content, lang, ""),
		subs:    make(map[string]*models.SearchDocument),
	}
}

func newDocument(content *models.Content, lang, sub string) *models.SearchDocument {
	return &models.SearchDocument{
		ID:           docid.For(content.ID, lang, sub),
		ContentID:    content.ID,
		Language:     lang,
		SchemaID:     content.SchemaID,
		Status:       content.Status,
		Created:      content.Created,
		LastModified: content.LastModified,
		Texts:        map[string]string{},
		Numbers:      map[string]float64{},
		Dates:        map[string]time.Time{},
		Bools:        map[string]bool{},
		Geo:          map[string]models.GeoPoint{},
	}
}

// addArray gives each array item its own sub-document so items stay independently queryable.
func (lb *languageBuilder) addArray(w *writer, def models.FieldDef, value interface{}) error {
	items, ok := value.([]interface{})
	if !ok || len(items) == 0 {
		return nil
	}
	for i, item := range items {
		if item == nil {
			continue
		}
		sub := fmt.Sprintf("%s[%d]", def.Name, i)
		doc := newDocument(lb.content, lb.lang, sub)
		var err error
		if obj, isObj := item.(map[string]interface{}); isObj {
			err = w.addObject(doc, def.Name, def.Nested, obj)
		} else {
			err = w.add(doc, def.Name, models.FieldDef{Name: def.Name, Type: models.FieldJSON}, item)
		}
		if err != nil {
			return err
		}
		lb.subs[sub] = doc
	}
	return nil
}

// build returns the language's non-empty documents. A primary document with more text
// fields than maxFields is split into pages by sorted field path.
func (lb *languageBuilder) build(maxFields int) []*models.SearchDocument {
	var docs []*models.SearchDocument
	primary := lb.primary
	if len(primary.Texts) > maxFields {
		paths := sortedKeys(primary.Texts)
		texts := primary.Texts
		primary.Texts = map[string]string{}
		for page := 0; page*maxFields < len(paths); page++ {
			end := (page + 1) * maxFields
			if end > len(paths) {
				end = len(paths)
			}
			target := primary
			if page > 0 {
				target = newDocument(lb.content, lb.lang, fmt.Sprintf("p%d", page))
				docs = append(docs, target)
			}
			for _, p := range paths[page*maxFields : end] {
				target.Texts[p] = texts[p]
			}
		}
	}
	if !primary.IsEmpty() {
		docs = append(docs, primary)
	}
	for _, sub := range sortedKeys(lb.subs) {
		if d := lb.subs[sub]; !d.IsEmpty() {
			docs = append(docs, d)
		}
	}
	for _, d := range docs {
		compact(d)
	}
	return docs
}

// compact drops empty maps so documents compare and encode identically.
func compact(d *models.SearchDocument) {
	if len(d.Texts) == 0 {
		d.Texts = nil
	}
	if len(d.Numbers) == 0 {
		d.Numbers = nil
	}
	if len(d.Dates) == 0 {
		d.Dates = nil
	}
	if len(d.Bools) == 0 {
		d.Bools = nil
	}
	if len(d.Geo) == 0 {
		d.Geo = nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedUnique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
