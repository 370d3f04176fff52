package search

import (
	"fmt"
	"strings"

	"github.com/uleam-dti/dms/pkg/graph"
)

// Builder accumulates AQL filter clauses and their bind variables. Each
// option contributes one clause; clauses are combined with AND. The
// document variable inside every clause is `doc`.
type Builder struct {
	clauses []string
	bind    map[string]any
	mfSeq   int
}

// NewBuilder starts an empty filter set.
func NewBuilder() *Builder {
	return &Builder{bind: map[string]any{}}
}

// Security limits results to documents located under one of the given
// entity keys, directly or through the parent entity. Owner permissions
// inherit one level: a grant on the faculty covers its careers.
func (b *Builder) Security(entityKeys []string) *Builder {
	b.clauses = append(b.clauses, `LENGTH(
		FOR owner IN 1..2 OUTBOUND doc `+graph.EdgeFileLocatedIn+`, `+graph.EdgeBelongsTo+`
			FILTER owner._key IN @valid_owner_ids
			LIMIT 1
			RETURN 1
	) > 0`)
	b.bind["valid_owner_ids"] = entityKeys
	return b
}

// Status filters on the document lifecycle state.
func (b *Builder) Status(status string) *Builder {
	b.clauses = append(b.clauses, "doc.status == @status")
	b.bind["status"] = status
	return b
}

// CurrentUser restricts results to the caller's own documents. Applied
// for sensitive statuses so reviewers only see their pending work.
func (b *Builder) CurrentUser(userID string) *Builder {
	b.clauses = append(b.clauses, "doc.owner.id == @current_user_id")
	b.bind["current_user_id"] = userID
	return b
}

// Owner filters on the uploader.
func (b *Builder) Owner(ownerID string) *Builder {
	b.clauses = append(b.clauses, "doc.owner.id == @owner_id")
	b.bind["owner_id"] = ownerID
	return b
}

// Entity filters hierarchically: the document may live in the entity
// itself or anywhere below it.
func (b *Builder) Entity(entityID string) *Builder {
	b.clauses = append(b.clauses, `LENGTH(
		FOR entity IN 1..5 OUTBOUND doc `+graph.EdgeFileLocatedIn+`, `+graph.EdgeBelongsTo+`
			FILTER entity._key == @entity_id
			LIMIT 1
			RETURN 1
	) > 0`)
	b.bind["entity_id"] = entityID
	return b
}

// Process filters over the catalog chain: required document, category
// or process, at any level.
func (b *Builder) Process(processIDs []string) *Builder {
	b.clauses = append(b.clauses, `LENGTH(
		FOR node IN 1..6 OUTBOUND doc `+graph.EdgeCompliesWith+`, `+graph.EdgeCatalogBelongsTo+`
			FILTER node._key IN @process_ids
			LIMIT 1
			RETURN 1
	) > 0`)
	b.bind["process_ids"] = processIDs
	return b
}

// RequiredDocument filters on the direct complies_with target.
func (b *Builder) RequiredDocument(id string) *Builder {
	b.clauses = append(b.clauses, `LENGTH(
		FOR rd IN 1..1 OUTBOUND doc `+graph.EdgeCompliesWith+`
			FILTER rd._key == @required_document_id
			LIMIT 1
			RETURN 1
	) > 0`)
	b.bind["required_document_id"] = id
	return b
}

// ReferencedEntity filters on the direct references target.
func (b *Builder) ReferencedEntity(id string) *Builder {
	b.clauses = append(b.clauses, `LENGTH(
		FOR e IN 1..1 OUTBOUND doc `+graph.EdgeReferences+`
			FILTER e._key == @referenced_entity_id
			LIMIT 1
			RETURN 1
	) > 0`)
	b.bind["referenced_entity_id"] = id
	return b
}

// Schema filters on the direct usa_esquema target.
func (b *Builder) Schema(id string) *Builder {
	b.clauses = append(b.clauses, `LENGTH(
		FOR s IN 1..1 OUTBOUND doc `+graph.EdgeUsaEsquema+`
			FILTER s._key == @schema_id
			LIMIT 1
			RETURN 1
	) > 0`)
	b.bind["schema_id"] = id
	return b
}

// DateRange filters created_at inclusively. Inputs are plain dates
// ("2006-01-02"); bounds expand to the start and end of the day.
func (b *Builder) DateRange(from, to string) *Builder {
	if from != "" {
		b.clauses = append(b.clauses, "doc.created_at >= @date_from")
		b.bind["date_from"] = from + "T00:00:00"
	}
	if to != "" {
		b.clauses = append(b.clauses, "doc.created_at <= @date_to")
		b.bind["date_to"] = to + "T23:59:59.999999"
	}
	return b
}

// fuzzinessFor grades tolerance by the query length: short values allow
// one edit, medium two, long three.
func fuzzinessFor(value string, requested int) int {
	if requested > 0 {
		return requested
	}
	switch n := len(value); {
	case n <= 6:
		return 1
	case n <= 16:
		return 2
	default:
		return 3
	}
}

// Metadata adds one clause per metadata key. Scalars match by substring
// or Levenshtein distance over the representative value of the stored
// object. Objects shaped {gte, lte} become numeric range comparisons.
func (b *Builder) Metadata(filters map[string]any, fuzziness int) *Builder {
	for key, raw := range filters {
		b.mfSeq++
		keyVar := fmt.Sprintf("mf_key_%d", b.mfSeq)
		valVar := fmt.Sprintf("mf_val_%d", b.mfSeq)
		b.bind[keyVar] = key

		valueExpr := fmt.Sprintf(
			"NOT_NULL(doc.validated_metadata[@%s].value, doc.validated_metadata[@%s].display_name, doc.validated_metadata[@%s].name, doc.validated_metadata[@%s])",
			keyVar, keyVar, keyVar, keyVar)

		if rng, ok := raw.(map[string]any); ok {
			if gte, has := rng["gte"]; has {
				gteVar := valVar + "_gte"
				b.clauses = append(b.clauses,
					fmt.Sprintf("TO_NUMBER(%s) >= @%s", valueExpr, gteVar))
				b.bind[gteVar] = gte
			}
			if lte, has := rng["lte"]; has {
				lteVar := valVar + "_lte"
				b.clauses = append(b.clauses,
					fmt.Sprintf("TO_NUMBER(%s) <= @%s", valueExpr, lteVar))
				b.bind[lteVar] = lte
			}
			continue
		}

		value := fmt.Sprintf("%v", raw)
		fuzzVar := valVar + "_fuzz"
		b.clauses = append(b.clauses, fmt.Sprintf(
			`(CONTAINS(LOWER(TO_STRING(%s)), LOWER(@%s)) OR LEVENSHTEIN_DISTANCE(LOWER(TO_STRING(%s)), LOWER(@%s)) <= @%s)`,
			valueExpr, valVar, valueExpr, valVar, fuzzVar))
		b.bind[valVar] = value
		b.bind[fuzzVar] = fuzzinessFor(value, fuzziness)
	}
	return b
}

// Clause renders the combined FILTER statement, or an empty string when
// nothing was added.
func (b *Builder) Clause() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return "FILTER " + strings.Join(b.clauses, "\n\tAND ")
}

// Bind returns the accumulated bind variables.
func (b *Builder) Bind() map[string]any {
	return b.bind
}
