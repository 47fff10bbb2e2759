// Package models defines core data structures for content, index state, search documents, and queries.
package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// InvariantLanguage is the partition key used for fields that are not localized.
const InvariantLanguage = "iv"

// ContentID identifies a content item for its whole life.
type ContentID = uuid.UUID

var tenantPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateTenant checks that a tenant (app) name can be used as a path and key component.
func ValidateTenant(tenant string) error {
	if len(tenant) > 64 || !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("%w: %q", ErrInvalidTenant, tenant)
	}
	return nil
}

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldTags        FieldType = "tags"
	FieldNumber      FieldType = "number"
	FieldBoolean     FieldType = "boolean"
	FieldDateTime    FieldType = "datetime"
	FieldGeolocation FieldType = "geolocation"
	FieldArray       FieldType = "array"
	FieldJSON        FieldType = "json"
	FieldReferences  FieldType = "references"
	FieldAssets      FieldType = "assets"
)

// FieldDef describes one schema field. Nested is only used by array fields.
type FieldDef struct {
	Name      string     `json:"name" yaml:"name"`
	Type      FieldType  `json:"type" yaml:"type"`
	Localized bool       `json:"localized,omitempty" yaml:"localized,omitempty"`
	Nested    []FieldDef `json:"nested,omitempty" yaml:"nested,omitempty"`
}

// Schema describes the shape of a content type.
type Schema struct {
	ID        string     `json:"id"`
	Name      string     `json:"name,omitempty"`
	Fields    []FieldDef `json:"fields"`
	Languages []string   `json:"languages,omitempty"`
}

// Field returns the definition of the named field, if any.
func (s *Schema) Field(name string) (FieldDef, bool) {
	if s == nil {
		return FieldDef{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// ContentData maps field name -> partition (language or "iv") -> raw JSON value.
type ContentData map[string]map[string]interface{}

// Content is one content item as delivered by the content subsystem.
type Content struct {
	ID           ContentID   `json:"id"`
	SchemaID     string      `json:"schema_id"`
	Status       string      `json:"status,omitempty"`
	Created      time.Time   `json:"created,omitempty"`
	LastModified time.Time   `json:"last_modified,omitempty"`
	Data         ContentData `json:"data"`
}

// Kind is the kind of content change being notified.
type Kind int

const (
	KindCreated Kind = iota + 1
	KindUpdated
	KindDeleted
	KindUnpublished
)

var kindNames = map[Kind]string{
	KindCreated:     "created",
	KindUpdated:     "updated",
	KindDeleted:     "deleted",
	KindUnpublished: "unpublished",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Removes reports whether the kind retires every document of the content item.
func (k Kind) Removes() bool {
	return k == KindDeleted || k == KindUnpublished
}

// ParseKind parses the lower-case kind name.
func ParseKind(s string) (Kind, error) {
	for k, n := range kindNames {
		if n == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown notification kind %q", s)
}

// MarshalJSON encodes the kind as its name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Notification is a content change delivered (at least once) by the event subsystem.
type Notification struct {
	Tenant  string   `json:"app"`
	Kind    Kind     `json:"kind"`
	Content *Content `json:"content"`
	Schema  *Schema  `json:"schema,omitempty"`
}

// Validate checks the notification carries what its kind needs.
func (n *Notification) Validate() error {
	if err := ValidateTenant(n.Tenant); err != nil {
		return err
	}
	if _, ok := kindNames[n.Kind]; !ok {
		return fmt.Errorf("invalid notification kind %d", int(n.Kind))
	}
	if n.Content == nil || n.Content.ID == uuid.Nil {
		return fmt.Errorf("notification has no content id")
	}
	return nil
}
