package graph

import (
	"context"
	"fmt"
)

// EdgeKey builds the deterministic edge key that makes edge upserts
// idempotent under message replay.
func EdgeKey(fromKey, toKey string) string {
	return fromKey + "_" + toKey
}

// UpsertEdge writes a keyed edge between two vertex ids
// ("collection/key" form). The edge collection is created on first
// write. Inserts stamp created_at, updates only touch updated_at; both
// use the database clock.
func (c *Client) UpsertEdge(ctx context.Context, collection, fromID, toID, key string) error {
	if !edgeNameOK(collection) {
		return fmt.Errorf("invalid edge collection %q", collection)
	}
	if _, err := c.collection(ctx, collection, true); err != nil {
		return err
	}

	aql := fmt.Sprintf(`
	UPSERT { _key: @key }
	INSERT {
		_key: @key,
		_from: @from,
		_to: @to,
		created_at: DATE_NOW(),
		updated_at: DATE_NOW()
	}
	UPDATE { updated_at: DATE_NOW() }
	IN %s`, collection)

	if err := c.Execute(ctx, aql, map[string]any{
		"key":  key,
		"from": fromID,
		"to":   toID,
	}); err != nil {
		return fmt.Errorf("edge upsert %s(%s -> %s) failed: %w", collection, fromID, toID, err)
	}
	return nil
}
