package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/uleam-dti/dms/pkg/graph"
)

// teamTypeMap translates the permission prefix of a team code to the
// entity type stored in the graph.
var teamTypeMap = map[string]string{
	"CARR": "carrera",
	"FAC":  "facultad",
	"DEP":  "departamento",
}

// Store is the graph surface the search package queries.
type Store interface {
	Query(ctx context.Context, aql string, bindVars map[string]any, out any) error
	QueryOne(ctx context.Context, aql string, bindVars map[string]any, out any) (bool, error)
}

// TeamEntity is the resolved shape of a team code, as the frontend
// consumes it in filter dropdowns.
type TeamEntity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Code   string `json:"code"`
	Type   string `json:"type"`
	TeamID string `json:"teamId"`
}

type teamCriterion struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// parseTeamCodes keeps only the "<PREFIX>:<code>" entries with a known
// prefix.
func parseTeamCodes(teams []string) []teamCriterion {
	var criteria []teamCriterion
	for _, team := range teams {
		prefix, code, ok := strings.Cut(team, ":")
		if !ok {
			continue
		}
		entityType, known := teamTypeMap[prefix]
		if !known {
			continue
		}
		criteria = append(criteria, teamCriterion{Type: entityType, Code: strings.TrimSpace(code)})
	}
	return criteria
}

// ResolveTeamKeys translates team codes to entity keys. Numeric codes
// are matched both textually and through code_numeric, since upstream
// systems disagree on the representation. Unknown codes resolve to
// nothing.
func ResolveTeamKeys(ctx context.Context, store Store, teams []string) ([]string, error) {
	criteria := parseTeamCodes(teams)
	if len(criteria) == 0 {
		return nil, nil
	}

	var keys []string
	err := store.Query(ctx, `
		FOR c IN @criteria
			LET e = FIRST(
				FOR doc IN `+graph.ColEntities+`
					FILTER doc.type == c.type
						AND (doc.code == c.code
							OR TO_STRING(doc.code) == c.code
							OR TO_STRING(doc.code_numeric) == c.code)
					LIMIT 1
					RETURN doc
			)
			FILTER e != null
			RETURN e._key`,
		map[string]any{"criteria": criteria}, &keys)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve team codes: %w", err)
	}
	return keys, nil
}

// ResolveTeamEntities is ResolveTeamKeys with the full frontend shape,
// including the reconstructed teamId tag.
func ResolveTeamEntities(ctx context.Context, store Store, teams []string) ([]TeamEntity, error) {
	criteria := parseTeamCodes(teams)
	if len(criteria) == 0 {
		return []TeamEntity{}, nil
	}

	var entities []TeamEntity
	err := store.Query(ctx, `
		FOR c IN @criteria
			LET e = FIRST(
				FOR doc IN `+graph.ColEntities+`
					FILTER doc.type == c.type
						AND (doc.code == c.code
							OR TO_STRING(doc.code) == c.code
							OR TO_STRING(doc.code_numeric) == c.code)
					LIMIT 1
					RETURN doc
			)
			FILTER e != null
			RETURN {
				id: e._key,
				name: e.name,
				code: e.code,
				type: CONCAT(UPPER(SUBSTRING(e.type, 0, 1)), LOWER(SUBSTRING(e.type, 1))),
				teamId: CONCAT(
					(e.type == 'carrera' ? 'CARR:' :
					 e.type == 'facultad' ? 'FAC:' :
					 e.type == 'departamento' ? 'DEP:' : 'UNK:'),
					(e.code_numeric != null ? TO_STRING(e.code_numeric) : e.code))
			}`,
		map[string]any{"criteria": criteria}, &entities)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve team entities: %w", err)
	}
	if entities == nil {
		entities = []TeamEntity{}
	}
	return entities, nil
}
