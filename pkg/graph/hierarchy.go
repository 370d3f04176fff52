package graph

import (
	"context"
	"fmt"

	"github.com/uleam-dti/dms/pkg/models"
)

// OrganizationalChain walks belongs_to edges from a leaf entity up to
// the root. The result is leaf first. A missing entity yields an empty
// chain, not an error.
func (c *Client) OrganizationalChain(ctx context.Context, entityKey string) ([]models.Entity, error) {
	if entityKey == "" {
		return nil, nil
	}

	exists, err := c.VertexExists(ctx, ColEntities, entityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to check entity %q: %w", entityKey, err)
	}
	if !exists {
		return nil, nil
	}

	var chain []models.Entity
	aql := `
		FOR v IN 0..10 OUTBOUND @start ` + EdgeBelongsTo + `
			RETURN { _key: v._key, name: v.name, type: v.type, code: v.code, code_numeric: v.code_numeric }`
	if err := c.Query(ctx, aql, map[string]any{"start": ColEntities + "/" + entityKey}, &chain); err != nil {
		return nil, fmt.Errorf("failed to walk hierarchy of %q: %w", entityKey, err)
	}
	return chain, nil
}
