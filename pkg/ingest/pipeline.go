package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/models"
	"github.com/uleam-dti/dms/pkg/naming"
	"github.com/uleam-dti/dms/pkg/objectstore"
)

// DocumentWriter is the graph surface the pipeline persists through.
type DocumentWriter interface {
	InsertVertex(ctx context.Context, collection string, doc any, overwrite bool) error
	UpsertEdge(ctx context.Context, collection, fromID, toID, key string) error
}

// Pipeline turns one OCR message into a staged document vertex plus
// its structural edges.
type Pipeline struct {
	writer    DocumentWriter
	transfer  *Transfer
	validator *Validator
	namer     *naming.Builder
	bucket    string
	logger    hclog.Logger
	now       func() time.Time
}

// PipelineConfig wires the pipeline steps together.
type PipelineConfig struct {
	Writer    DocumentWriter
	Transfer  *Transfer
	Validator *Validator
	Namer     *naming.Builder
	Bucket    string
	Logger    hclog.Logger
}

// NewPipeline validates the wiring and builds the pipeline.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("document writer is required")
	}
	if cfg.Transfer == nil || cfg.Validator == nil || cfg.Namer == nil {
		return nil, fmt.Errorf("transfer, validator and namer are all required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Pipeline{
		writer:    cfg.Writer,
		transfer:  cfg.Transfer,
		validator: cfg.Validator,
		namer:     cfg.Namer,
		bucket:    cfg.Bucket,
		logger:    cfg.Logger.Named("ingest"),
		now:       time.Now,
	}, nil
}

// Process runs the full ingestion for one message value. Errors after
// the parse step never abort persistence of what already succeeded; the
// caller decides whether to swallow the returned error.
func (p *Pipeline) Process(ctx context.Context, value []byte) error {
	parsed, err := Parse(value)
	if err != nil {
		return err
	}

	p.logger.Info("processing ocr result",
		"task_id", parsed.TaskID,
		"entity", parsed.ContextEntityID(),
		"entity_type", parsed.ContextEntityType(),
	)

	basePath := objectstore.StagePrefix + parsed.UserID + "/" + parsed.TaskID
	stored, terr := p.transfer.Run(ctx, parsed.PresignedURLs, basePath)
	if terr != nil {
		p.logger.Warn("some artifacts failed to stage", "task_id", parsed.TaskID, "error", terr)
	}

	validated, warnings := p.validator.Validate(ctx, parsed.SchemaID, parsed.Metadata)

	status := models.StatusValidated
	if len(warnings) > 0 || hasInvalidField(validated) {
		status = models.StatusAttentionRequired
	}

	var required *naming.RequiredDocument
	if parsed.RequiredDocID != "" || parsed.RequiredDocName != "" || parsed.RequiredDocCode != "" {
		required = &naming.RequiredDocument{
			ID:   parsed.RequiredDocID,
			Name: parsed.RequiredDocName,
			Code: parsed.RequiredDocCode,
		}
	}
	names := p.namer.Build(ctx, parsed.ContextEntityID(), required)

	doc := p.buildRecord(parsed, status, stored, validated, warnings, names)
	if err := p.writer.InsertVertex(ctx, graph.ColDocuments, doc, true); err != nil {
		return fmt.Errorf("failed to upsert document %q: %w", parsed.TaskID, err)
	}
	p.logger.Info("document stored", "task_id", parsed.TaskID, "status", status)

	return p.createStructuralEdges(ctx, parsed)
}

func (p *Pipeline) buildRecord(
	parsed *ParsedPayload,
	status string,
	stored map[string]any,
	validated map[string]any,
	warnings []string,
	names naming.Result,
) models.Document {
	if warnings == nil {
		warnings = []string{}
	}
	return models.Document{
		Key:    parsed.TaskID,
		Status: status,
		Owner: models.Owner{
			ID:    parsed.UserID,
			Name:  parsed.UserName,
			Email: parsed.UserEmail,
		},
		OriginalFilename: parsed.Filename,
		ProcessingTime:   parsed.ProcessingTime,
		CreatedAt:        parsed.Timestamp,
		UpdatedAt:        p.now().Format(time.RFC3339),
		Naming:           names.Naming,
		Storage: models.Storage{
			Bucket:          p.bucket,
			PDFPath:         storedPath(stored, "pdf"),
			JSONPath:        storedPath(stored, "json"),
			TextPath:        storedPath(stored, "text"),
			PDFOriginalPath: storedPath(stored, "pdf_original_path"),
		},
		ValidatedMetadata: validated,
		IntegrityWarnings: warnings,
		ContextSnapshot: models.ContextSnapshot{
			EntityID:        parsed.ContextEntityID(),
			EntityName:      parsed.ContextEntityName(),
			SchemaID:        parsed.SchemaID,
			SchemaName:      parsed.SchemaName,
			RequiredDocID:   parsed.RequiredDocID,
			RequiredDocName: parsed.RequiredDocName,
			RequiredDocCode: parsed.RequiredDocCode,
		},
	}
}

// createStructuralEdges links the document to its schema, its context
// entity and its catalog slot. These relations come from the upstream
// context, never from OCR output.
func (p *Pipeline) createStructuralEdges(ctx context.Context, parsed *ParsedPayload) error {
	docID := graph.ColDocuments + "/" + parsed.TaskID

	type link struct {
		collection string
		toCol      string
		toKey      string
	}
	links := []link{
		{graph.EdgeUsaEsquema, graph.ColMetaSchemas, parsed.SchemaID},
		{graph.EdgeFileLocatedIn, graph.ColEntities, parsed.ContextEntityID()},
		{graph.EdgeCompliesWith, graph.ColRequiredDocuments, parsed.RequiredDocID},
	}

	for _, l := range links {
		if l.toKey == "" {
			continue
		}
		key := graph.EdgeKey(parsed.TaskID, l.toKey)
		if err := p.writer.UpsertEdge(ctx, l.collection, docID, l.toCol+"/"+l.toKey, key); err != nil {
			return fmt.Errorf("failed to create %s edge for %q: %w", l.collection, parsed.TaskID, err)
		}
		p.logger.Debug("structural edge upserted",
			"collection", l.collection, "from", docID, "to", l.toCol+"/"+l.toKey)
	}
	return nil
}

func hasInvalidField(validated map[string]any) bool {
	for _, v := range validated {
		m, ok := v.(map[string]any)
		if !ok {
			continue
		}
		if valid, ok := m["is_valid"].(bool); ok && !valid {
			return true
		}
	}
	return false
}

func storedPath(stored map[string]any, key string) string {
	s, _ := stored[key].(string)
	return s
}
