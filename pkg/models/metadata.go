package models

import "strings"

// Sources recorded on metadata wrappers during ingestion.
const (
	SourceOCRRaw        = "ocr_raw"
	SourceRegexMatch    = "regex_match"
	SourceDatabaseMatch = "database_match"
	SourceGraphUser     = "graph_user_match"
)

// FieldKind discriminates the shapes a validated_metadata value can
// take. The wire format stays a map; this is the in-memory view used by
// validation and sanitization.
type FieldKind int

const (
	KindNull FieldKind = iota
	KindPrimitive
	KindEntityRef
	KindUserRef
	KindWrapper
)

// FieldValue is the typed view over one validated_metadata entry.
type FieldValue struct {
	Kind FieldKind

	// KindPrimitive
	Scalar any

	// KindEntityRef
	Entity EntityRefValue

	// KindUserRef
	User UserRefValue

	// KindWrapper: the raw wrapper produced by the OCR pipeline,
	// still carrying is_valid/source/message.
	Wrapper WrapperValue
}

// EntityRefValue is the clean shape of an entity reference after
// sanitization.
type EntityRefValue struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Code string `json:"code,omitempty"`
	Type string `json:"type,omitempty"`
}

// UserRefValue is the clean shape of a user reference after
// sanitization.
type UserRefValue struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

// WrapperValue is the {value, is_valid, source, message} shape the OCR
// pipeline writes and the confirmation pass must strip.
type WrapperValue struct {
	Value   any
	IsValid *bool
	Source  string
	Message string
}

// ParseFieldValue classifies one raw metadata entry.
func ParseFieldValue(raw any) FieldValue {
	if raw == nil {
		return FieldValue{Kind: KindNull}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return FieldValue{Kind: KindPrimitive, Scalar: raw}
	}

	if _, hasValue := m["value"]; hasValue || m["is_valid"] != nil || m["source"] != nil {
		w := WrapperValue{Value: m["value"]}
		if b, ok := m["is_valid"].(bool); ok {
			w.IsValid = &b
		}
		w.Source, _ = m["source"].(string)
		w.Message, _ = m["message"].(string)
		if w.IsValid != nil || w.Source != "" || w.Message != "" {
			return FieldValue{Kind: KindWrapper, Wrapper: w}
		}
		// A bare {value: x} map is treated as a wrapper too so the
		// sanitizer unwraps it uniformly.
		return FieldValue{Kind: KindWrapper, Wrapper: w}
	}

	if LooksLikeUserPayload(m) {
		u := UserRefValue{
			ID:          stringField(m, "id"),
			DisplayName: stringField(m, "display_name"),
			Email:       stringField(m, "email"),
		}
		if u.DisplayName == "" {
			fn := stringField(m, "first_name")
			ln := stringField(m, "last_name")
			u.DisplayName = strings.TrimSpace(fn + " " + ln)
		}
		return FieldValue{Kind: KindUserRef, User: u}
	}

	return FieldValue{Kind: KindEntityRef, Entity: EntityRefValue{
		ID:   stringField(m, "id"),
		Name: stringField(m, "name"),
		Code: stringField(m, "code"),
		Type: stringField(m, "type"),
	}}
}

// LooksLikeUserPayload reports whether a metadata object carries person
// fields. Only the parse layer may use this; downstream code works with
// the discriminated FieldValue.
func LooksLikeUserPayload(m map[string]any) bool {
	for _, k := range []string{"first_name", "last_name", "display_name", "email"} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	if t, _ := m["type"].(string); IsUserType(t) {
		return true
	}
	return false
}

// RepresentativeValue picks the searchable scalar for a clean metadata
// object: the first non-empty of display_name, name, code, email, id.
func RepresentativeValue(m map[string]any) any {
	for _, k := range []string{"display_name", "name", "code", "email", "id"} {
		if v, ok := m[k]; ok && v != nil && v != "" {
			return v
		}
	}
	for _, v := range m {
		if v != nil && v != "" {
			return v
		}
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
