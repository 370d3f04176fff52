package validation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/models"
	"github.com/uleam-dti/dms/pkg/objectstore"
)

// Sentinel errors the API layer maps to status codes.
var (
	ErrNotFound         = errors.New("document not found")
	ErrPermissionDenied = errors.New("caller is not the document owner")
	ErrLocked           = errors.New("document is locked")
	ErrNoOriginalPDF    = errors.New("no existe archivo PDF original para conservar")
	ErrInvalidRequest   = errors.New("invalid request")
)

// Store is the graph surface the confirmation service uses.
type Store interface {
	QueryOne(ctx context.Context, aql string, bindVars map[string]any, out any) (bool, error)
	Execute(ctx context.Context, aql string, bindVars map[string]any) error
	VertexExists(ctx context.Context, collection, key string) (bool, error)
	ReadVertex(ctx context.Context, collection, key string, out any) (bool, error)
	UpsertEdge(ctx context.Context, collection, fromID, toID, key string) error
}

// ObjectStreamer reads stored artifacts for hashing.
type ObjectStreamer interface {
	Stream(ctx context.Context, storagePath string) (io.ReadCloser, error)
}

// ConfirmRequest is the owner's final validation payload.
type ConfirmRequest struct {
	Metadata     map[string]any
	DisplayName  string
	IsPublic     bool
	KeepOriginal bool
}

// Service runs the confirmation workflow end to end.
type Service struct {
	store    Store
	objects  ObjectStreamer
	archiver *Archiver
	ensurer  *EntityEnsurer
	quality  *QualityChecker
	signer   *Signer
	logger   hclog.Logger
}

// ServiceConfig wires the confirmation dependencies.
type ServiceConfig struct {
	Store    Store
	Objects  ObjectStreamer
	Archiver *Archiver
	Ensurer  *EntityEnsurer
	Quality  *QualityChecker
	Signer   *Signer
	Logger   hclog.Logger
}

// NewService validates the wiring and builds the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil || cfg.Objects == nil {
		return nil, fmt.Errorf("store and object streamer are required")
	}
	if cfg.Archiver == nil || cfg.Ensurer == nil || cfg.Quality == nil || cfg.Signer == nil {
		return nil, fmt.Errorf("archiver, ensurer, quality checker and signer are all required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &Service{
		store:    cfg.Store,
		objects:  cfg.Objects,
		archiver: cfg.Archiver,
		ensurer:  cfg.Ensurer,
		quality:  cfg.Quality,
		signer:   cfg.Signer,
		logger:   cfg.Logger.Named("validation"),
	}, nil
}

// QualityCheck runs the read-only dry run.
func (s *Service) QualityCheck(ctx context.Context, docID string, metadata map[string]any) (*QualityReport, error) {
	exists, err := s.store.VertexExists(ctx, graph.ColDocuments, docID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return s.quality.Check(ctx, docID, metadata)
}

// Confirm applies the owner's validation: storage selection, archive
// promotion, entity assurance, sanitization, integrity sealing and one
// wholesale locked update, followed by semantic reference edges.
func (s *Service) Confirm(ctx context.Context, docID, callerID string, req ConfirmRequest) (*models.Document, error) {
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName != "" && len([]rune(displayName)) < 3 {
		return nil, fmt.Errorf("%w: display_name must be at least 3 characters", ErrInvalidRequest)
	}

	var doc models.Document
	found, err := s.store.ReadVertex(ctx, graph.ColDocuments, docID, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	if doc.Owner.ID != callerID {
		return nil, ErrPermissionDenied
	}
	if doc.IsLocked {
		return nil, ErrLocked
	}

	storage := doc.Storage
	if req.KeepOriginal {
		if storage.PDFOriginalPath == "" {
			return nil, ErrNoOriginalPDF
		}
		storage.PDFPath = storage.PDFOriginalPath
		storage.PrimarySource = "original"
		storage.PDFAConversionRequired = true
		storage.PDFAConversionStatus = "pending"
	} else {
		storage.PrimarySource = "ocr_pdfa"
	}
	doc.Storage = storage

	if NeedsPromotion(doc.Storage) {
		process := s.processFor(ctx, docID)
		promoted, err := s.archiver.Promote(ctx, &doc, process)
		if err != nil {
			return nil, err
		}
		doc.Storage = promoted
	}

	schema, err := SchemaForDocument(ctx, s.store, docID)
	if err != nil {
		return nil, err
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	if err := s.ensurer.EnsureExist(ctx, metadata, schema); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
	}

	var allowed map[string]bool
	if schema != nil {
		allowed = schema.AllowedKeys()
	}
	clean := SanitizeMetadata(metadata, allowed)

	integrity, err := s.seal(ctx, docID, clean, callerID, req.KeepOriginal, doc.Storage.PDFPath)
	if err != nil {
		return nil, err
	}

	updated, err := s.persist(ctx, docID, clean, displayName, callerID, req.IsPublic, req.KeepOriginal, doc.Storage, integrity)
	if err != nil {
		return nil, err
	}

	s.createReferenceEdges(ctx, docID, clean)

	s.logger.Info("document confirmed", "doc_id", docID, "by", callerID,
		"keep_original", req.KeepOriginal, "is_public", req.IsPublic)
	return updated, nil
}

// VerifyIntegrity recomputes the seal. Only the owner may verify a
// private document.
func (s *Service) VerifyIntegrity(ctx context.Context, docID, callerID string) (*VerifyResult, error) {
	var doc models.Document
	found, err := s.store.ReadVertex(ctx, graph.ColDocuments, docID, &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	if !doc.IsPublic && doc.Owner.ID != callerID {
		return nil, ErrPermissionDenied
	}

	var pdf io.ReadCloser
	if doc.Storage.PDFPath != "" {
		pdf, err = s.objects.Stream(ctx, doc.Storage.PDFPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open pdf for verification: %w", err)
		}
		defer pdf.Close()
	}

	var reader io.Reader
	if pdf != nil {
		reader = pdf
	}
	return s.signer.Verify(doc.Integrity, doc.ValidatedMetadata, reader)
}

func (s *Service) seal(ctx context.Context, docID string, clean map[string]any, callerID string, keepOriginal bool, pdfPath string) (*models.Integrity, error) {
	var pdf io.Reader
	if pdfPath != "" {
		rc, err := s.objects.Stream(ctx, pdfPath)
		if err != nil {
			if objectstore.StatNotFound(err) {
				return nil, fmt.Errorf("%w: selected pdf %q is missing", ErrInvalidRequest, pdfPath)
			}
			return nil, fmt.Errorf("failed to open pdf for sealing: %w", err)
		}
		defer rc.Close()
		pdf = rc
	}
	return s.signer.Seal(docID, clean, callerID, keepOriginal, pdfPath, pdf)
}

// persist writes the confirmation in a single update. validated_metadata
// is replaced wholesale, never merged, so dropped keys actually drop.
func (s *Service) persist(
	ctx context.Context,
	docID string,
	clean map[string]any,
	displayName, confirmedBy string,
	isPublic, keepOriginal bool,
	storage models.Storage,
	integrity *models.Integrity,
) (*models.Document, error) {
	var displayNameBind any
	if displayName != "" {
		displayNameBind = displayName
	}

	aql := `
	FOR d IN ` + graph.ColDocuments + `
		FILTER d._key == @key

		LET current = d.display_name != null ? d.display_name : d.naming.display_name
		LET changed = @display_name != null AND @display_name != current

		LET next_snap = changed
			? (d.snap_context_name != null ? d.snap_context_name : current)
			: d.snap_context_name
		LET next_display = changed ? @display_name : current

		UPDATE d WITH {
			validated_metadata: @clean_data,
			status: 'confirmed',
			integrity_warnings: [],
			manually_validated_at: DATE_ISO8601(DATE_NOW()),
			confirmed_at: @confirmed_at,
			confirmed_by: @confirmed_by,
			is_public: @is_public,
			keep_original: @keep_original,
			is_locked: true,
			display_name: next_display,
			snap_context_name: next_snap,
			naming: MERGE(d.naming, { display_name: next_display }),
			storage: @storage,
			integrity: @integrity
		} IN ` + graph.ColDocuments + `
		OPTIONS { mergeObjects: false }
		RETURN NEW`

	var updated models.Document
	found, err := s.store.QueryOne(ctx, aql, map[string]any{
		"key":           docID,
		"clean_data":    clean,
		"display_name":  displayNameBind,
		"confirmed_at":  time.Now().UTC().Format(time.RFC3339),
		"confirmed_by":  confirmedBy,
		"is_public":     isPublic,
		"keep_original": keepOriginal,
		"storage":       storage,
		"integrity":     integrity,
	}, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to persist confirmation of %q: %w", docID, err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return &updated, nil
}

// createReferenceEdges links the document to every entity its clean
// metadata mentions. The file_located_in target is skipped so ownership
// is never duplicated as a reference. Failures log and continue: the
// confirmation itself already succeeded.
func (s *Service) createReferenceEdges(ctx context.Context, docID string, clean map[string]any) {
	for key, item := range clean {
		m, ok := item.(map[string]any)
		if !ok || m == nil {
			continue
		}
		// User references live in dms_users, not entities.
		if _, isUser := m["display_name"]; isUser {
			continue
		}
		entityID, _ := m["id"].(string)
		if entityID == "" {
			continue
		}

		located, err := s.isLocatedIn(ctx, docID, entityID)
		if err != nil {
			s.logger.Warn("location check failed", "field", key, "entity", entityID, "error", err)
			continue
		}
		if located {
			continue
		}

		edgeKey := graph.EdgeKey(docID, entityID)
		if err := s.store.UpsertEdge(ctx, graph.EdgeReferences,
			graph.ColDocuments+"/"+docID, graph.ColEntities+"/"+entityID, edgeKey); err != nil {
			s.logger.Warn("reference edge failed", "field", key, "entity", entityID, "error", err)
		}
	}
}

func (s *Service) isLocatedIn(ctx context.Context, docID, entityID string) (bool, error) {
	var one int
	found, err := s.store.QueryOne(ctx, `
		FOR doc IN `+graph.ColDocuments+`
			FILTER doc._key == @doc_id
			FOR v IN 1..1 OUTBOUND doc `+graph.EdgeFileLocatedIn+`
				FILTER v._key == @entity_id
				LIMIT 1
				RETURN 1`,
		map[string]any{"doc_id": docID, "entity_id": entityID}, &one)
	if err != nil {
		return false, err
	}
	return found, nil
}

// processFor resolves the catalog process of the document's required
// document slot, for the archive prefix. Empty when the document is not
// linked to the catalog.
func (s *Service) processFor(ctx context.Context, docID string) string {
	var process struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	found, err := s.store.QueryOne(ctx, `
		FOR doc IN `+graph.ColDocuments+`
			FILTER doc._key == @doc_id
			FOR rd IN 1..1 OUTBOUND doc `+graph.EdgeCompliesWith+`
				FOR p IN 1..1 OUTBOUND rd `+graph.EdgeCatalogBelongsTo+`
					LIMIT 1
					RETURN { code: p.code, name: p.name }`,
		map[string]any{"doc_id": docID}, &process)
	if err != nil {
		s.logger.Warn("process lookup failed", "doc_id", docID, "error", err)
		return ""
	}
	if !found {
		return ""
	}
	return firstNonEmpty(process.Code, process.Name)
}
