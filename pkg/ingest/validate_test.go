package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uleam-dti/dms/pkg/identity"
	"github.com/uleam-dti/dms/pkg/models"
)

type fakeValidationStore struct {
	schema    *models.MetaSchema
	entityHit *entityHit
}

func (f *fakeValidationStore) QueryOne(_ context.Context, aql string, _ map[string]any, out any) (bool, error) {
	switch {
	case strings.Contains(aql, "meta_schemas"):
		if f.schema == nil {
			return false, nil
		}
		return marshalInto(out, f.schema)
	case strings.Contains(aql, "entities_search_view"):
		if f.entityHit == nil {
			return false, nil
		}
		return marshalInto(out, f.entityHit)
	}
	return false, nil
}

func marshalInto(out, v any) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

type fakeUsers struct {
	user *models.User
}

func (f *fakeUsers) Resolve(context.Context, identity.Input) (*models.User, error) {
	return f.user, nil
}

func testSchema() *models.MetaSchema {
	return &models.MetaSchema{
		Key: "sch1",
		Fields: []models.SchemaField{
			{FieldKey: "career", Label: "Carrera", EntityTypeID: "t1",
				EntityType: &models.KeyedName{Key: "carrera"}},
			{FieldKey: "tutor", Label: "Tutor",
				TypeInput: &models.KeyedName{Key: "user"}},
			{FieldKey: "academic_period", Label: "Periodo Académico"},
			{FieldKey: "notes", Label: "Observaciones"},
		},
	}
}

func TestValidateEntityMatch(t *testing.T) {
	store := &fakeValidationStore{
		schema: testSchema(),
		entityHit: &entityHit{
			Doc:   models.Entity{Key: "e9", Name: "Ingeniería de Software", Code: "TDI"},
			Score: 0.8,
		},
	}
	v := NewValidator(store, &fakeUsers{}, nil)

	out, warnings := v.Validate(context.Background(), "sch1", []OCRItem{
		{FieldKey: "career", Response: "Ing. de Software"},
	})

	require.Empty(t, warnings)
	field := out["career"].(map[string]any)
	assert.Equal(t, true, field["is_valid"])
	assert.Equal(t, models.SourceDatabaseMatch, field["source"])
	assert.Equal(t, "e9", field["value"].(map[string]any)["id"])
}

func TestValidateEntityBelowScore(t *testing.T) {
	store := &fakeValidationStore{
		schema:    testSchema(),
		entityHit: &entityHit{Doc: models.Entity{Key: "e9"}, Score: 0.05},
	}
	v := NewValidator(store, &fakeUsers{}, nil)

	out, warnings := v.Validate(context.Background(), "sch1", []OCRItem{
		{FieldKey: "career", Response: "Algo Inexistente"},
	})

	require.Len(t, warnings, 1)
	assert.Equal(t, "Campo 'Carrera' no coincide con registros.", warnings[0])
	field := out["career"].(map[string]any)
	assert.Equal(t, false, field["is_valid"])
	assert.Equal(t, models.SourceOCRRaw, field["source"])
	assert.Equal(t, "Algo Inexistente", field["value"])
}

func TestValidateUserField(t *testing.T) {
	store := &fakeValidationStore{schema: testSchema()}
	users := &fakeUsers{user: &models.User{
		Key: "u7", Name: "Juan", LastName: "Pérez", Email: "jperez@uleam.edu.ec",
	}}
	v := NewValidator(store, users, nil)

	out, warnings := v.Validate(context.Background(), "sch1", []OCRItem{
		{FieldKey: "tutor", Response: "Tutor: Ing. Juan Pérez"},
	})

	require.Empty(t, warnings)
	field := out["tutor"].(map[string]any)
	assert.Equal(t, models.SourceGraphUser, field["source"])
	assert.Equal(t, "u7", field["value"].(map[string]any)["id"])
}

func TestValidateUserUnresolved(t *testing.T) {
	v := NewValidator(&fakeValidationStore{schema: testSchema()}, &fakeUsers{}, nil)

	out, warnings := v.Validate(context.Background(), "sch1", []OCRItem{
		{FieldKey: "tutor", Response: "Juan Perez"},
	})

	require.Len(t, warnings, 1)
	assert.Equal(t, "Campo 'Tutor' no coincide con registros.", warnings[0])
	assert.Equal(t, false, out["tutor"].(map[string]any)["is_valid"])
}

func TestValidateAcademicPeriod(t *testing.T) {
	v := NewValidator(&fakeValidationStore{schema: testSchema()}, nil, nil)

	out, warnings := v.Validate(context.Background(), "sch1", []OCRItem{
		{FieldKey: "academic_period", Response: "Periodo 2026-1"},
	})
	require.Empty(t, warnings)
	field := out["academic_period"].(map[string]any)
	assert.Equal(t, true, field["is_valid"])
	assert.Equal(t, models.SourceRegexMatch, field["source"])

	out, _ = v.Validate(context.Background(), "sch1", []OCRItem{
		{FieldKey: "academic_period", Response: "2026/1"},
	})
	field = out["academic_period"].(map[string]any)
	assert.Equal(t, false, field["is_valid"])
	assert.Equal(t, "Formato inválido (Ej: 2025-1)", field["message"])
}

func TestValidateTextAndUnknownFields(t *testing.T) {
	v := NewValidator(&fakeValidationStore{schema: testSchema()}, nil, nil)

	out, warnings := v.Validate(context.Background(), "sch1", []OCRItem{
		{FieldKey: "notes", Response: "breve"},
		{FieldKey: "notes_long", Response: strings.Repeat("x", 120)},
		{FieldKey: "unknown", Response: "dropped"},
	})

	require.Empty(t, warnings)
	assert.Equal(t, true, out["notes"].(map[string]any)["is_valid"])
	// Unknown keys are dropped entirely.
	assert.NotContains(t, out, "unknown")
	assert.NotContains(t, out, "notes_long")
}

func TestValidateMissingSchema(t *testing.T) {
	v := NewValidator(&fakeValidationStore{}, nil, nil)

	out, warnings := v.Validate(context.Background(), "missing", []OCRItem{
		{FieldKey: "notes", Response: "x"},
	})

	assert.Empty(t, out)
	require.Len(t, warnings, 1)
	assert.Equal(t, "No se encontró definición de esquema.", warnings[0])
}

func TestValidateLongTextField(t *testing.T) {
	schema := testSchema()
	v := NewValidator(&fakeValidationStore{schema: schema}, nil, nil)

	out, warnings := v.Validate(context.Background(), "sch1", []OCRItem{
		{FieldKey: "notes", Response: strings.Repeat("a", 150)},
	})

	require.Empty(t, warnings)
	field := out["notes"].(map[string]any)
	assert.Equal(t, false, field["is_valid"])
	assert.Equal(t, "Texto demasiado largo.", field["message"])
}
