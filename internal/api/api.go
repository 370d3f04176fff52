// Package api is the HTTP surface: bearer auth, the standard response
// envelope, and one handler per operation. Handlers translate sentinel
// errors from the engines into status codes and never leak internals.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/pkg/models"
	"github.com/uleam-dti/dms/pkg/search"
	"github.com/uleam-dti/dms/pkg/validation"
)

// Authenticator resolves bearer tokens and permission scopes.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Context, error)
	ScopesFor(ctx context.Context, permission string, c *auth.Context) ([]string, error)
}

// DocumentSearcher is the search engine surface the handlers use.
type DocumentSearcher interface {
	Search(ctx context.Context, p search.Params) (*search.Result, error)
	GetDocument(ctx context.Context, docID string) (*search.DocumentHit, error)
	AvailableEntities(ctx context.Context) ([]search.EntityRef, error)
}

// ObjectFetcher authorizes and streams stored artifacts.
type ObjectFetcher interface {
	Fetch(ctx context.Context, objectPath, callerID, callerIP string, readTeams []string) (*search.Download, error)
}

// Validator runs quality checks, confirmations and integrity verification.
type Validator interface {
	QualityCheck(ctx context.Context, docID string, metadata map[string]any) (*validation.QualityReport, error)
	Confirm(ctx context.Context, docID, callerID string, req validation.ConfirmRequest) (*models.Document, error)
	VerifyIntegrity(ctx context.Context, docID, callerID string) (*validation.VerifyResult, error)
}

// TemplateStore is the object-store surface for system templates.
type TemplateStore interface {
	Upload(ctx context.Context, data []byte, objectPath, contentType string) (string, error)
	Copy(ctx context.Context, src, dst string) error
	Remove(ctx context.Context, path string) error
	PresignedGet(ctx context.Context, storagePath string, expiry time.Duration) (string, error)
}

// SyncRunner triggers a master-data sync in an external collaborator.
type SyncRunner interface {
	Run(ctx context.Context) error
}

// API holds the handler dependencies.
type API struct {
	auth      Authenticator
	search    DocumentSearcher
	fetcher   ObjectFetcher
	validator Validator
	store     search.Store
	templates TemplateStore
	sync      SyncRunner
	logger    hclog.Logger
}

// Config wires the API.
type Config struct {
	Auth      Authenticator
	Search    DocumentSearcher
	Fetcher   ObjectFetcher
	Validator Validator
	Store     search.Store
	Templates TemplateStore
	Sync      SyncRunner
	Logger    hclog.Logger
}

// New builds the API. Sync and Templates are optional.
func New(cfg Config) *API {
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	return &API{
		auth:      cfg.Auth,
		search:    cfg.Search,
		fetcher:   cfg.Fetcher,
		validator: cfg.Validator,
		store:     cfg.Store,
		templates: cfg.Templates,
		sync:      cfg.Sync,
		logger:    cfg.Logger.Named("api"),
	}
}

// Router builds the route table. Everything except /health requires a
// bearer token.
func (a *API) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)

	mux.Handle("GET /documents", a.authenticated(a.handleListDocuments))
	mux.Handle("GET /documents/catalogs/entities", a.authenticated(a.handleCatalogEntities))
	mux.Handle("GET /documents/{doc_id}", a.authenticated(a.handleGetDocument))
	mux.Handle("POST /documents/{doc_id}/metadata/quality-check", a.authenticated(a.handleQualityCheck))
	mux.Handle("PATCH /documents/{doc_id}/metadata/confirm", a.authenticated(a.handleConfirm))
	mux.Handle("GET /documents/{doc_id}/integrity", a.authenticated(a.handleVerifyIntegrity))

	mux.Handle("GET /storage/proxy/{object_path...}", a.authenticated(a.handleStorageProxy))

	mux.Handle("GET /me/entities", a.authenticated(a.handleMyEntities))

	mux.HandleFunc("GET /catalog/faculties", a.handleCatalogFaculties)
	mux.HandleFunc("GET /catalog/careers", a.handleCatalogCareers)
	mux.HandleFunc("GET /catalog/processes/tree", a.handleProcessTree)
	mux.HandleFunc("GET /catalog/processes/{process_id}/required-documents", a.handleRequiredDocuments)

	if a.templates != nil {
		mux.Handle("POST /templates/upload", a.authenticated(a.handleTemplateUpload))
		mux.Handle("GET /templates/download", a.authenticated(a.handleTemplateDownload))
	}
	if a.sync != nil {
		mux.Handle("POST /admin/force-sync", a.authenticated(a.handleForceSync))
	}

	return mux
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
