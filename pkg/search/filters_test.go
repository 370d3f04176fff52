package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderCombinesClausesWithAnd(t *testing.T) {
	b := NewBuilder().
		Status("validated").
		Entity("e9").
		Owner("u1")

	clause := b.Clause()
	assert.True(t, strings.HasPrefix(clause, "FILTER "))
	assert.Contains(t, clause, "doc.status == @status")
	assert.Contains(t, clause, "1..5 OUTBOUND doc file_located_in, belongs_to")
	assert.Contains(t, clause, "doc.owner.id == @owner_id")
	assert.Equal(t, 2, strings.Count(clause, "AND "))

	bind := b.Bind()
	assert.Equal(t, "validated", bind["status"])
	assert.Equal(t, "e9", bind["entity_id"])
	assert.Equal(t, "u1", bind["owner_id"])
}

func TestBuilderEmpty(t *testing.T) {
	assert.Empty(t, NewBuilder().Clause())
}

func TestBuilderSecurityAndProcess(t *testing.T) {
	b := NewBuilder().
		Security([]string{"e1", "e2"}).
		Process([]string{"p1"})

	clause := b.Clause()
	assert.Contains(t, clause, "1..2 OUTBOUND doc file_located_in, belongs_to")
	assert.Contains(t, clause, "1..6 OUTBOUND doc complies_with, catalog_belongs_to")
	assert.Equal(t, []string{"e1", "e2"}, b.Bind()["valid_owner_ids"])
	assert.Equal(t, []string{"p1"}, b.Bind()["process_ids"])
}

func TestBuilderDateRangeExpandsToDayBounds(t *testing.T) {
	b := NewBuilder().DateRange("2026-01-01", "2026-06-30")

	assert.Equal(t, "2026-01-01T00:00:00", b.Bind()["date_from"])
	assert.Equal(t, "2026-06-30T23:59:59.999999", b.Bind()["date_to"])

	partial := NewBuilder().DateRange("", "2026-06-30")
	assert.NotContains(t, partial.Bind(), "date_from")
	assert.Contains(t, partial.Bind(), "date_to")
}

func TestFuzzinessGrading(t *testing.T) {
	assert.Equal(t, 1, fuzzinessFor("corto", 0))
	assert.Equal(t, 2, fuzzinessFor("mediano-valor", 0))
	assert.Equal(t, 3, fuzzinessFor("un valor bastante largo", 0))
	assert.Equal(t, 4, fuzzinessFor("corto", 4))
}

func TestBuilderMetadataScalar(t *testing.T) {
	b := NewBuilder().Metadata(map[string]any{"career": "Software"}, 0)

	clause := b.Clause()
	assert.Contains(t, clause, "CONTAINS(")
	assert.Contains(t, clause, "LEVENSHTEIN_DISTANCE(")
	assert.Contains(t, clause, "NOT_NULL(doc.validated_metadata[@mf_key_1].value")

	bind := b.Bind()
	assert.Equal(t, "career", bind["mf_key_1"])
	assert.Equal(t, "Software", bind["mf_val_1"])
	assert.Equal(t, 2, bind["mf_val_1_fuzz"])
}

func TestBuilderMetadataRange(t *testing.T) {
	b := NewBuilder().Metadata(map[string]any{
		"score": map[string]any{"gte": 10, "lte": 20},
	}, 0)

	clause := b.Clause()
	assert.Contains(t, clause, "TO_NUMBER(")
	assert.Equal(t, 10, b.Bind()["mf_val_1_gte"])
	assert.Equal(t, 20, b.Bind()["mf_val_1_lte"])
	assert.NotContains(t, clause, "LEVENSHTEIN_DISTANCE")
}
