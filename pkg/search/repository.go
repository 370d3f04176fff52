package search

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/models"
)

// EntityRef is the joined location entity of a document.
type EntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Code string `json:"code,omitempty"`
}

// SchemaRef is the joined metadata schema of a document.
type SchemaRef struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version int    `json:"version,omitempty"`
}

// RequiredDocRef is the joined catalog slot the document fulfills.
type RequiredDocRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CodeDefault string `json:"code_default,omitempty"`
}

// DocumentHit is a document enriched with its one-hop graph relations.
type DocumentHit struct {
	models.Document
	ContextEntity    *EntityRef      `json:"context_entity"`
	UsedSchema       *SchemaRef      `json:"used_schema"`
	RequiredDocument *RequiredDocRef `json:"required_document"`
}

// PageResult is one page of hits plus the unpaginated total.
type PageResult struct {
	Items []DocumentHit
	Total int
}

// relationSubqueries joins the three one-hop relations onto each doc.
const relationSubqueries = `
	LET entity = (
		FOR v IN 1..1 OUTBOUND doc ` + graph.EdgeFileLocatedIn + `
		RETURN { id: v._key, name: v.name, type: v.type, code: v.code }
	)[0]
	LET schema = (
		FOR v IN 1..1 OUTBOUND doc ` + graph.EdgeUsaEsquema + `
		RETURN { id: v._key, name: v.name, version: v.version }
	)[0]
	LET req_doc = (
		FOR v IN 1..1 OUTBOUND doc ` + graph.EdgeCompliesWith + `
		RETURN { id: v._key, name: v.name, code_default: v.code }
	)[0]`

// Repository executes the composed search queries.
type Repository struct {
	store  Store
	logger hclog.Logger
}

// NewRepository builds the query layer.
func NewRepository(store Store, logger hclog.Logger) *Repository {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Repository{store: store, logger: logger.Named("search")}
}

// GetByID loads one document with its joined relations. Nil when the
// key does not exist.
func (r *Repository) GetByID(ctx context.Context, docID string) (*DocumentHit, error) {
	var hit DocumentHit
	found, err := r.store.QueryOne(ctx, `
		FOR doc IN `+graph.ColDocuments+`
			FILTER doc._key == @doc_id
			`+relationSubqueries+`
			RETURN MERGE(doc, {
				context_entity: entity,
				used_schema: schema,
				required_document: req_doc
			})`,
		map[string]any{"doc_id": docID}, &hit)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %q: %w", docID, err)
	}
	if !found {
		return nil, nil
	}
	return &hit, nil
}

// Search runs the filtered, paginated query. A non-empty text query
// switches the source to the documents search view, ranking by BM25
// before recency; otherwise plain recency ordering applies.
func (r *Repository) Search(ctx context.Context, offset, limit int, b *Builder, text string) (*PageResult, error) {
	filterClause := b.Clause()
	bindVars := b.Bind()
	bindVars["offset"] = offset
	bindVars["limit"] = limit

	source := "FOR doc IN " + graph.ColDocuments
	sort := "SORT doc.created_at DESC"
	if text != "" {
		source = `FOR doc IN ` + graph.ViewDocumentsSearch + `
			SEARCH ANALYZER(doc.naming.display_name IN TOKENS(@search_text, 'text_es'), 'text_es')
				OR ANALYZER(doc.original_filename IN TOKENS(@search_text, 'text_es'), 'text_es')`
		sort = "SORT BM25(doc) DESC, doc.created_at DESC"
		bindVars["search_text"] = text
	}

	aql := `
	LET docs = (
		` + source + `
			` + filterClause + `
			` + sort + `
			LIMIT @offset, @limit
			` + relationSubqueries + `
			RETURN MERGE(doc, {
				context_entity: entity,
				used_schema: schema,
				required_document: req_doc
			})
	)
	LET total_count = (
		` + source + `
			` + filterClause + `
			RETURN 1
	)
	RETURN { items: docs, total: LENGTH(total_count) }`

	var page struct {
		Items []DocumentHit `json:"items"`
		Total int           `json:"total"`
	}
	found, err := r.store.QueryOne(ctx, aql, bindVars, &page)
	if err != nil {
		return nil, fmt.Errorf("document search failed: %w", err)
	}
	if !found {
		return &PageResult{Items: []DocumentHit{}}, nil
	}
	if page.Items == nil {
		page.Items = []DocumentHit{}
	}
	return &PageResult{Items: page.Items, Total: page.Total}, nil
}

// EntitiesWithDocuments lists the distinct entities that hold at least
// one document, for frontend filter dropdowns.
func (r *Repository) EntitiesWithDocuments(ctx context.Context) ([]EntityRef, error) {
	var entities []EntityRef
	err := r.store.Query(ctx, `
		FOR doc IN `+graph.ColDocuments+`
			FOR entity IN 1..1 OUTBOUND doc `+graph.EdgeFileLocatedIn+`
			RETURN DISTINCT {
				id: entity._key,
				name: entity.name,
				type: entity.type
			}`,
		nil, &entities)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities with documents: %w", err)
	}
	if entities == nil {
		entities = []EntityRef{}
	}
	return entities, nil
}
