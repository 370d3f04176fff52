package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

// maxArtifactSize caps a single staged download.
const maxArtifactSize = 200 << 20

// Uploader is the slice of the object store the transfer step needs.
type Uploader interface {
	Upload(ctx context.Context, data []byte, objectPath, contentType string) (string, error)
}

// artifact maps one presigned source key to its staged destination.
type artifact struct {
	sourceKey   string
	ext         string
	storageKey  string
	contentType string
}

// Staged artifacts, in transfer order. storageKey is the field name
// under storage on the document record.
var artifacts = []artifact{
	{"minio_pdfa", ".pdf", "pdf", "application/pdf"},
	{"minio_validated", ".json", "json", "application/json"},
	{"minio_text", ".txt", "text", "text/plain"},
	{"minio_original_pdf", ".pdf", "pdf_original_path", "application/pdf"},
}

// Transfer copies OCR artifacts from their presigned URLs into the
// staging prefix of the bucket.
type Transfer struct {
	uploader Uploader
	http     *http.Client
	logger   hclog.Logger
}

// NewTransfer builds the transfer step with a 30 second per-download
// budget.
func NewTransfer(uploader Uploader, logger hclog.Logger) *Transfer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Transfer{
		uploader: uploader,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   logger.Named("transfer"),
	}
}

// Run downloads every presigned artifact and uploads it under
// basePath. A failed artifact stores nil and the pipeline continues;
// the aggregated error is returned for logging only.
func (t *Transfer) Run(ctx context.Context, sourceURLs map[string]string, basePath string) (map[string]any, error) {
	stored := make(map[string]any, len(artifacts))
	var merr *multierror.Error

	for _, a := range artifacts {
		url := sourceURLs[a.sourceKey]
		if url == "" {
			continue
		}

		dest := fmt.Sprintf("%s/%s_document%s", basePath, a.storageKey, a.ext)
		path, err := t.transferOne(ctx, url, dest, a.contentType)
		if err != nil {
			t.logger.Warn("artifact transfer failed",
				"source", a.sourceKey, "dest", dest, "error", err)
			stored[a.storageKey] = nil
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", a.sourceKey, err))
			continue
		}

		stored[a.storageKey] = path
		t.logger.Debug("artifact staged", "source", a.sourceKey, "path", path)
	}

	return stored, merr.ErrorOrNil()
}

func (t *Transfer) transferOne(ctx context.Context, url, dest, contentType string) (string, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := t.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err = fmt.Errorf("download returned %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}

	path, err := t.uploader.Upload(ctx, body, dest, contentType)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	return path, nil
}
