package naming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uleam-dti/dms/pkg/models"
)

type fakeHierarchy struct {
	chains map[string][]models.Entity
}

func (f *fakeHierarchy) OrganizationalChain(_ context.Context, key string) ([]models.Entity, error) {
	return f.chains[key], nil
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 2, 16, 22, 29, 8, 0, time.Local)
	}
}

func testBuilder(chains map[string][]models.Entity) *Builder {
	return New(&fakeHierarchy{chains: chains}, nil).WithClock(fixedClock())
}

func TestBuildTwoLevelChain(t *testing.T) {
	// Traversal order is leaf first.
	b := testBuilder(map[string][]models.Entity{
		"e9": {
			{Key: "e9", Name: "Ingeniería de Software", Type: "carrera", Code: "TDI", CodeNumeric: "213.9"},
			{Key: "e2", Name: "Facultad de Ciencias", Type: "facultad", Code: "FAC", CodeNumeric: 213.0},
			{Key: "e1", Name: "ULEAM", Type: "sede", Code: "ULEAM"},
		},
	})

	res := b.Build(context.Background(), "e9", nil)

	assert.Equal(t, "ULEAM / Facultad de Ciencias / Ingeniería de Software", res.NamePath)
	assert.Equal(t, "ULEAM / FAC / TDI", res.CodePath)
	assert.Equal(t, "213 / 213.9", res.CodeNumericPath)
	assert.Equal(t, "FAC-TDI - Ingeniería de Software", res.NameCode)
	assert.Equal(t, "213-213.9 - Ingeniería de Software", res.NameCodeNumeric)
	assert.Equal(t, "20260216_222908", res.TimestampTag)
	assert.Equal(t, "FAC-TDI - Ingeniería de Software - 20260216_222908", res.DisplayName)
	require.Len(t, res.PathNodes, 3)
	assert.Equal(t, "e1", res.PathNodes[0].Key)
}

func TestBuildWithRequiredDocument(t *testing.T) {
	b := testBuilder(map[string][]models.Entity{
		"e9": {
			{Key: "e9", Name: "Ingeniería de Software", Type: "carrera", Code: "TDI"},
			{Key: "e2", Name: "Facultad de Ciencias", Type: "facultad", Code: "FAC"},
		},
	})

	res := b.Build(context.Background(), "e9", &RequiredDocument{
		ID: "rd1", Name: "Plan de Prácticas", Code: "PAP-01-002",
	})

	assert.Equal(t, "FAC-TDI-PAP-01-002 - Plan de Prácticas", res.NameCode)
	assert.Equal(t, "FAC / TDI / PAP-01-002", res.CodePath)
	assert.Equal(t, "Facultad de Ciencias / Ingeniería de Software / Plan de Prácticas", res.NamePath)
	assert.Equal(t, "PAP-01-002", res.RequiredDocumentCode)
}

func TestBuildSingleLevelChain(t *testing.T) {
	b := testBuilder(map[string][]models.Entity{
		"e1": {{Key: "e1", Name: "ULEAM", Type: "sede", Code: "ULEAM"}},
	})

	res := b.Build(context.Background(), "e1", nil)
	assert.Equal(t, "ULEAM - ULEAM", res.NameCode)
	assert.Equal(t, "ULEAM", res.CodePath)
}

func TestBuildFallbacks(t *testing.T) {
	b := testBuilder(map[string][]models.Entity{})

	res := b.Build(context.Background(), "", nil)
	assert.Equal(t, "document_20260216_222908", res.DisplayName)
	assert.Empty(t, res.NameCode)

	res = b.Build(context.Background(), "missing", &RequiredDocument{Code: "X"})
	assert.Equal(t, "document_20260216_222908", res.DisplayName)
	assert.Equal(t, "X", res.RequiredDocumentCode)
}

func TestNumericNormalization(t *testing.T) {
	assert.Equal(t, "213", models.FormatNumeric(213.0))
	assert.Equal(t, "213", models.FormatNumeric("213.0"))
	assert.Equal(t, "213.9", models.FormatNumeric("213.9"))
	assert.Equal(t, "", models.FormatNumeric(nil))
	assert.Equal(t, "FCVT", models.FormatNumeric("FCVT"))
}
