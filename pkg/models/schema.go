package models

import "strings"

// MetaSchema is a stored schema definition. The upstream management
// service writes these in camelCase, hence the field tags.
type MetaSchema struct {
	Key     string        `json:"_key"`
	Name    string        `json:"name"`
	Version int           `json:"version,omitempty"`
	Fields  []SchemaField `json:"fields"`
}

// SchemaField describes one metadata slot of a schema.
type SchemaField struct {
	FieldKey     string     `json:"fieldKey"`
	Label        string     `json:"label"`
	DataType     string     `json:"dataType"`
	IsRequired   bool       `json:"isRequired"`
	SortOrder    int        `json:"sortOrder,omitempty"`
	EntityTypeID string     `json:"entityTypeId,omitempty"`
	TypeInput    *KeyedName `json:"typeInput,omitempty"`
	EntityType   *KeyedName `json:"entityType,omitempty"`
}

// KeyedName is the {key, name} shape the management service uses for
// lookups embedded in schema fields.
type KeyedName struct {
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

var entityInputKeys = map[string]bool{
	"entity":  true,
	"faculty": true,
	"career":  true,
	"user":    true,
	"person":  true,
}

// IsEntityField reports whether OCR output for this field must resolve
// against a real graph entity (or user) instead of passing through as
// text.
func (f SchemaField) IsEntityField() bool {
	if f.EntityTypeID != "" {
		return true
	}
	if f.TypeInput != nil && entityInputKeys[strings.ToLower(f.TypeInput.Key)] {
		return true
	}
	return false
}

// EntityTypeKey returns the declared entity type key, if any.
func (f SchemaField) EntityTypeKey() string {
	if f.EntityType != nil {
		return strings.ToLower(f.EntityType.Key)
	}
	return ""
}

// IsUserField reports whether the field references a person rather than
// an organizational entity.
func (f SchemaField) IsUserField() bool {
	if IsUserType(f.EntityTypeKey()) {
		return true
	}
	if f.TypeInput != nil {
		k := strings.ToLower(f.TypeInput.Key)
		return k == "user" || k == "person"
	}
	return false
}

// AllowedKeys returns the set of field keys a sanitized metadata map may
// carry.
func (s *MetaSchema) AllowedKeys() map[string]bool {
	keys := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.FieldKey != "" {
			keys[f.FieldKey] = true
		}
	}
	return keys
}

// FieldByKey returns the schema field for a metadata key.
func (s *MetaSchema) FieldByKey(key string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.FieldKey == key {
			return f, true
		}
	}
	return SchemaField{}, false
}

var userTypes = map[string]bool{
	"user":    true,
	"person":  true,
	"usuario": true,
}

// IsUserType reports whether an entity type key designates a person.
func IsUserType(entityType string) bool {
	return userTypes[strings.ToLower(entityType)]
}

// CollectionForType maps a schema entity type key to the vertex
// collection that must contain the referenced id. Unknown types map to
// the empty string.
func CollectionForType(entityType string) string {
	switch strings.ToLower(entityType) {
	case "user", "person", "usuario":
		return "dms_users"
	case "faculty", "facultad", "career", "carrera", "department", "departamento", "entity":
		return "entities"
	}
	return ""
}
