package validation

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/pkg/models"
	"github.com/uleam-dti/dms/pkg/objectstore"
)

// ObjectMover is the object-store surface archive promotion needs.
type ObjectMover interface {
	Copy(ctx context.Context, src, dst string) error
	Remove(ctx context.Context, path string) error
	ObjectName(storagePath string) string
	StoragePath(objectName string) string
}

// Archiver moves a document's artifacts from the staging prefix into
// their permanent archival layout.
type Archiver struct {
	store  ObjectMover
	logger hclog.Logger
}

// NewArchiver builds the promotion step.
func NewArchiver(store ObjectMover, logger hclog.Logger) *Archiver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Archiver{store: store, logger: logger.Named("archive")}
}

// archive filenames per logical storage slot, in promotion order.
var archiveSlots = []struct {
	field    string
	filename string
}{
	{"pdf_path", "principal.pdf"},
	{"json_path", "metadata.json"},
	{"text_path", "extracted.txt"},
	{"pdf_original_path", "original.pdf"},
}

// NeedsPromotion reports whether any artifact still lives in staging.
func NeedsPromotion(storage models.Storage) bool {
	for _, p := range []string{storage.PDFPath, storage.JSONPath, storage.TextPath, storage.PDFOriginalPath} {
		if inStaging(p) {
			return true
		}
	}
	return false
}

// Promote copies every staged artifact under the archive prefix built
// from the document's naming and catalog process, removes the staging
// sources and returns the rewritten storage record. Idempotent:
// already-archived paths are copied in place without effect, and a
// shared staging object is removed only once.
func (a *Archiver) Promote(ctx context.Context, doc *models.Document, process string) (models.Storage, error) {
	prefix := ArchivePrefixFor(doc, process)
	updated := doc.Storage

	paths := map[string]*string{
		"pdf_path":          &updated.PDFPath,
		"json_path":         &updated.JSONPath,
		"text_path":         &updated.TextPath,
		"pdf_original_path": &updated.PDFOriginalPath,
	}

	removed := map[string]bool{}
	for _, slot := range archiveSlots {
		src := *paths[slot.field]
		if src == "" {
			continue
		}

		srcObject := a.store.ObjectName(src)
		dstObject := prefix + "/" + slot.filename

		if err := a.store.Copy(ctx, srcObject, dstObject); err != nil {
			return doc.Storage, fmt.Errorf("failed to archive %s: %w", slot.field, err)
		}

		if strings.HasPrefix(srcObject, objectstore.StagePrefix) && !removed[srcObject] {
			removed[srcObject] = true
			if err := a.store.Remove(ctx, srcObject); err != nil {
				a.logger.Warn("failed to remove staging object", "object", srcObject, "error", err)
			}
		}

		*paths[slot.field] = a.store.StoragePath(dstObject)
	}

	updated.ArchivePrefix = prefix
	updated.StorageTier = "archive"

	a.logger.Info("document promoted to archive", "doc_id", doc.Key, "prefix", prefix)
	return updated, nil
}

// ArchivePrefixFor derives the archival prefix from the naming code
// path, the catalog process and the required-document slot, all
// slugged. process is the code or name of the process node the
// document's catalog slot belongs to, empty when unknown.
func ArchivePrefixFor(doc *models.Document, process string) string {
	codePath := doc.Naming.CodePath
	if codePath == "" {
		codePath = doc.Naming.NamePath
	}
	if codePath == "" {
		codePath = doc.ContextSnapshot.EntityName
	}
	if codePath == "" {
		codePath = "general"
	}

	var segments []string
	for _, seg := range strings.Split(codePath, "/") {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		segments = append(segments, objectstore.Slug(seg))
	}
	if len(segments) == 0 {
		segments = []string{"general"}
	}

	processSeg := objectstore.Slug(firstNonEmpty(process, "sin-proceso"))
	requiredSeg := objectstore.Slug(firstNonEmpty(
		doc.ContextSnapshot.RequiredDocCode,
		doc.ContextSnapshot.RequiredDocName,
		"sin-documento",
	))

	return strings.TrimSuffix(objectstore.ArchivePrefix, "/") + "/" +
		strings.Join(segments, "/") + "/" + processSeg + "/" + requiredSeg + "/" + doc.Key
}

func inStaging(storagePath string) bool {
	if storagePath == "" {
		return false
	}
	// Paths may or may not carry the bucket prefix.
	return strings.Contains(storagePath, objectstore.StagePrefix) ||
		strings.Contains(storagePath, "/stage/") || strings.HasPrefix(storagePath, "stage/")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
