package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/models"
)

// ErrObjectNotFound is returned when no document owns the requested
// object path.
var ErrObjectNotFound = errors.New("no document owns the requested object")

// ObjectStore is the storage surface the download proxy streams from.
type ObjectStore interface {
	Stream(ctx context.Context, storagePath string) (io.ReadCloser, error)
	Bucket() string
}

// Auditor records a completed download grant. Implementations are
// expected to be asynchronous; the proxy never waits on them.
type Auditor interface {
	RecordDownload(docID, userID, ipAddress string)
}

// Download is a granted object stream.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Filename    string
	Document    *models.Document
}

// Downloader authorizes and streams stored artifacts. Authorization
// ladder: public, owner, global read scope, then team reachability over
// the location hierarchy.
type Downloader struct {
	store   Store
	objects ObjectStore
	auditor Auditor
	logger  hclog.Logger
}

// NewDownloader builds the proxy. The auditor may be nil.
func NewDownloader(store Store, objects ObjectStore, auditor Auditor, logger hclog.Logger) *Downloader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Downloader{store: store, objects: objects, auditor: auditor, logger: logger.Named("download")}
}

// Fetch resolves the document owning objectPath, applies the ladder and
// opens the stream. readTeams are the caller's document.read scopes.
func (d *Downloader) Fetch(ctx context.Context, objectPath, callerID, callerIP string, readTeams []string) (*Download, error) {
	doc, err := d.documentForPath(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrObjectNotFound
	}

	allowed, err := d.hasAccess(ctx, doc, callerID, readTeams)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	storagePath := objectPath
	if !strings.HasPrefix(storagePath, d.objects.Bucket()+"/") {
		storagePath = d.objects.Bucket() + "/" + strings.TrimPrefix(objectPath, "/")
	}
	body, err := d.objects.Stream(ctx, storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", storagePath, err)
	}

	if d.auditor != nil {
		d.auditor.RecordDownload(doc.Key, callerID, callerIP)
	}

	filename := path.Base(storagePath)
	return &Download{
		Body:        body,
		ContentType: contentTypeFor(filename),
		Filename:    filename,
		Document:    doc,
	}, nil
}

// documentForPath matches the object path against every storage slot,
// tolerating the presence or absence of the bucket prefix.
func (d *Downloader) documentForPath(ctx context.Context, objectPath string) (*models.Document, error) {
	clean := strings.TrimPrefix(objectPath, d.objects.Bucket()+"/")
	candidates := []string{objectPath, clean, d.objects.Bucket() + "/" + clean}

	var doc models.Document
	found, err := d.store.QueryOne(ctx, `
		FOR doc IN `+graph.ColDocuments+`
			FILTER doc.storage != null
				AND (doc.storage.pdf_path IN @candidate_paths
					OR doc.storage.pdf_original_path IN @candidate_paths
					OR doc.storage.json_path IN @candidate_paths
					OR doc.storage.text_path IN @candidate_paths)
			LIMIT 1
			RETURN doc`,
		map[string]any{"candidate_paths": candidates}, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve object %q: %w", objectPath, err)
	}
	if !found {
		return nil, nil
	}
	return &doc, nil
}

func (d *Downloader) hasAccess(ctx context.Context, doc *models.Document, callerID string, readTeams []string) (bool, error) {
	if doc.IsPublic {
		return true, nil
	}
	if doc.Owner.ID != "" && doc.Owner.ID == callerID {
		return true, nil
	}
	if contains(readTeams, "*") {
		return true, nil
	}

	keys, err := ResolveTeamKeys(ctx, d.store, readTeams)
	if err != nil {
		return false, err
	}
	if len(keys) == 0 {
		return false, nil
	}

	var reachable bool
	found, err := d.store.QueryOne(ctx, `
		RETURN LENGTH(
			FOR doc IN `+graph.ColDocuments+`
				FILTER doc._key == @doc_id
				FOR owner IN 1..2 OUTBOUND doc `+graph.EdgeFileLocatedIn+`, `+graph.EdgeBelongsTo+`
					FILTER owner._key IN @valid_owner_ids
					LIMIT 1
					RETURN 1
		) > 0`,
		map[string]any{"doc_id": doc.Key, "valid_owner_ids": keys}, &reachable)
	if err != nil {
		return false, err
	}
	return found && reachable, nil
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
