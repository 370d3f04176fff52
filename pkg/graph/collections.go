package graph

import (
	"context"
	"fmt"

	driver "github.com/arangodb/go-driver"
)

// Vertex collections.
const (
	ColEntities          = "entities"
	ColSubsystems        = "subsystems"
	ColProcessCategories = "process_categories"
	ColProcesses         = "processes"
	ColRequiredDocuments = "required_documents"
	ColMetaSchemas       = "meta_schemas"
	ColUsers             = "dms_users"
	ColDocuments         = "documents"
	ColAuditDownloads    = "audit_downloads"
)

// Edge collections. All edges carry the deterministic key
// "<from_key>_<to_key>".
const (
	EdgeBelongsTo        = "belongs_to"
	EdgeCatalogBelongsTo = "catalog_belongs_to"
	EdgeFileLocatedIn    = "file_located_in"
	EdgeUsaEsquema       = "usa_esquema"
	EdgeCompliesWith     = "complies_with"
	EdgeReferences       = "references"
)

// ArangoSearch views.
const (
	ViewEntitiesSearch  = "entities_search_view"
	ViewDocumentsSearch = "documents_search_view"
)

// EnsureSchema creates the vertex/edge collections, the dms_users
// indexes and the two search views. Everything is create-if-absent so
// boot is idempotent.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for _, name := range []string{
		ColEntities, ColSubsystems, ColProcessCategories, ColProcesses,
		ColRequiredDocuments, ColMetaSchemas, ColUsers, ColDocuments,
		ColAuditDownloads,
	} {
		if _, err := c.collection(ctx, name, false); err != nil {
			return err
		}
	}
	for _, name := range []string{
		EdgeBelongsTo, EdgeCatalogBelongsTo, EdgeFileLocatedIn,
		EdgeUsaEsquema, EdgeCompliesWith, EdgeReferences,
	} {
		if _, err := c.collection(ctx, name, true); err != nil {
			return err
		}
	}

	if err := c.ensureUserIndexes(ctx); err != nil {
		return err
	}
	return c.ensureSearchViews(ctx)
}

func (c *Client) ensureUserIndexes(ctx context.Context) error {
	col, err := c.collection(ctx, ColUsers, false)
	if err != nil {
		return err
	}
	sparse := true
	unique := true
	if _, _, err := col.EnsurePersistentIndex(ctx, []string{"guid_ms"}, &driver.EnsurePersistentIndexOptions{
		Unique: unique, Sparse: sparse,
	}); err != nil {
		return fmt.Errorf("failed to ensure guid_ms index: %w", err)
	}
	if _, _, err := col.EnsurePersistentIndex(ctx, []string{"email"}, &driver.EnsurePersistentIndexOptions{
		Unique: unique, Sparse: sparse,
	}); err != nil {
		return fmt.Errorf("failed to ensure email index: %w", err)
	}
	if _, _, err := col.EnsurePersistentIndex(ctx, []string{"name", "last_name"}, &driver.EnsurePersistentIndexOptions{
		Sparse: sparse,
	}); err != nil {
		return fmt.Errorf("failed to ensure name index: %w", err)
	}
	return nil
}

func (c *Client) ensureSearchViews(ctx context.Context) error {
	views := []struct {
		name   string
		col    string
		fields map[string]driver.ArangoSearchElementProperties
	}{
		{
			name: ViewEntitiesSearch,
			col:  ColEntities,
			fields: map[string]driver.ArangoSearchElementProperties{
				"name": {Analyzers: []string{"text_es"}},
				"code": {Analyzers: []string{"identity"}},
			},
		},
		{
			name: ViewDocumentsSearch,
			col:  ColDocuments,
			fields: map[string]driver.ArangoSearchElementProperties{
				"naming": {Fields: map[string]driver.ArangoSearchElementProperties{
					"display_name": {Analyzers: []string{"text_es"}},
				}},
				"original_filename": {Analyzers: []string{"text_es"}},
			},
		},
	}

	for _, v := range views {
		exists, err := c.db.ViewExists(ctx, v.name)
		if err != nil {
			return fmt.Errorf("failed to check view %q: %w", v.name, err)
		}
		if exists {
			continue
		}
		includeAll := false
		props := &driver.ArangoSearchViewProperties{
			Links: driver.ArangoSearchLinks{
				v.col: driver.ArangoSearchElementProperties{
					IncludeAllFields: &includeAll,
					Fields:           v.fields,
				},
			},
		}
		if _, err := c.db.CreateArangoSearchView(ctx, v.name, props); err != nil {
			return fmt.Errorf("failed to create view %q: %w", v.name, err)
		}
		c.logger.Info("created search view", "name", v.name)
	}
	return nil
}
