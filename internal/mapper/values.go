package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hyperjump/contentindex/internal/models"
)

// writer types raw values into document fields.
type writer struct {
	contentID models.ContentID
}

func (w *writer) fail(path, format string, args ...interface{}) error {
	return &models.MappingError{ContentID: w.contentID, Field: path, Reason: fmt.Sprintf(format, args...)}
}

// add writes value at path according to the field's declared type. Empty values are skipped.
func (w *writer) add(doc *models.SearchDocument, path string, def models.FieldDef, value interface{}) error {
	if value == nil {
		return nil
	}
	switch def.Type {
	case models.FieldString, models.FieldTags, models.FieldReferences, models.FieldAssets:
		appendText(doc, path, collectText(value))
	case models.FieldNumber:
		n, ok, err := toNumber(value)
		if err != nil {
			return w.fail(path, "%v", err)
		}
		if ok {
			doc.Numbers[path] = n
		}
	case models.FieldBoolean:
		if b, ok := value.(bool); ok {
			doc.Bools[path] = b
		}
	case models.FieldDateTime:
		return w.addDate(doc, path, value)
	case models.FieldGeolocation:
		return w.addGeo(doc, path, value)
	case models.FieldArray:
		// Arrays nested below the top level are indexed as text only.
		appendText(doc, path, collectText(value))
	default:
		return w.addJSON(doc, path, value)
	}
	return nil
}

// addObject writes the keys of an array item using the item's nested field definitions.
func (w *writer) addObject(doc *models.SearchDocument, prefix string, nested []models.FieldDef, obj map[string]interface{}) error {
	defs := make(map[string]models.FieldDef, len(nested))
	for _, d := range nested {
		defs[d.Name] = d
	}
	for _, key := range sortedKeys(obj) {
		def, ok := defs[key]
		if !ok {
			def = models.FieldDef{Name: key, Type: models.FieldJSON}
		}
		if err := w.add(doc, prefix+"."+key, def, obj[key]); err != nil {
			return err
		}
	}
	return nil
}

// addJSON flattens schema-less values: objects become dotted paths, strings become
// text, numbers and booleans keep their type. Arrays only contribute their text.
func (w *writer) addJSON(doc *models.SearchDocument, path string, value interface{}) error {
	switch v := value.(type) {
	case string:
		appendText(doc, path, v)
	case bool:
		doc.Bools[path] = v
	case map[string]interface{}:
		for _, key := range sortedKeys(v) {
			if err := w.addJSON(doc, path+"."+key, v[key]); err != nil {
				return err
			}
		}
	case []interface{}:
		appendText(doc, path, collectText(v))
	default:
		n, ok, err := toNumber(v)
		if err != nil {
			return w.fail(path, "%v", err)
		}
		if ok {
			doc.Numbers[path] = n
		}
	}
	return nil
}

func (w *writer) addDate(doc *models.SearchDocument, path string, value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		if !v.IsZero() {
			doc.Dates[path] = v.UTC()
		}
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
		if err != nil {
			return w.fail(path, "invalid date %q", v)
		}
		doc.Dates[path] = t.UTC()
	default:
		return w.fail(path, "date must be an RFC 3339 string, got %T", value)
	}
	return nil
}

func (w *writer) addGeo(doc *models.SearchDocument, path string, value interface{}) error {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return w.fail(path, "geolocation must be an object, got %T", value)
	}
	if len(obj) == 0 {
		return nil
	}
	lat, latOK, latErr := toNumber(obj["latitude"])
	lon, lonOK, lonErr := toNumber(obj["longitude"])
	if latErr != nil || lonErr != nil || !latOK || !lonOK {
		return w.fail(path, "geolocation needs numeric latitude and longitude")
	}
	p := models.GeoPoint{Lat: lat, Lon: lon}
	if !p.Valid() {
		return w.fail(path, "coordinates out of range (%g, %g)", lat, lon)
	}
	doc.Geo[path] = p
	return nil
}

// toNumber converts JSON numbers. ok is false for non-numeric values, which are skipped.
func toNumber(value interface{}) (n float64, ok bool, err error) {
	switch v := value.(type) {
	case json.Number:
		f, perr := v.Float64()
		if perr != nil {
			return 0, false, fmt.Errorf("invalid number %q", v.String())
		}
		n = f
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case int32:
		n = float64(v)
	default:
		return 0, false, nil
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, fmt.Errorf("number is not finite")
	}
	return n, true, nil
}

// collectText gathers every string below value in a deterministic order.
func collectText(value interface{}) string {
	var parts []string
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch x := v.(type) {
		case string:
			if s := Normalize(x); s != "" {
				parts = append(parts, s)
			}
		case []interface{}:
			for _, item := range x {
				walk(item)
			}
		case []string:
			for _, item := range x {
				walk(item)
			}
		case map[string]interface{}:
			for _, k := range sortedKeys(x) {
				walk(x[k])
			}
		}
	}
	walk(value)
	return strings.Join(parts, " ")
}

func appendText(doc *models.SearchDocument, path, text string) {
	text = Normalize(text)
	if text == "" {
		return
	}
	if prev, ok := doc.Texts[path]; ok {
		doc.Texts[path] = prev + " " + text
		return
	}
	doc.Texts[path] = text
}
