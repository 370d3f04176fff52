// Package server owns the assembled service: every adapter and engine
// wired together, the HTTP listener, and the OCR consumer lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/uleam-dti/dms/internal/audit"
	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/internal/config"
	"github.com/uleam-dti/dms/pkg/graph"
	"github.com/uleam-dti/dms/pkg/ingest"
	"github.com/uleam-dti/dms/pkg/objectstore"
	"github.com/uleam-dti/dms/pkg/search"
	"github.com/uleam-dti/dms/pkg/validation"
)

const shutdownGrace = 10 * time.Second

// Server contains the fully wired service.
type Server struct {
	// Config is the config for the server.
	Config *config.Config

	// Graph is the ArangoDB adapter shared by every engine.
	Graph *graph.Client

	// Objects is the MinIO adapter.
	Objects *objectstore.Store

	// Auth authenticates bearer tokens and resolves scopes.
	Auth *auth.Authenticator

	// Audit is the asynchronous download-audit writer.
	Audit *audit.Recorder

	// Search runs gated document queries.
	Search *search.Service

	// Downloader streams stored artifacts under the access ladder.
	Downloader *search.Downloader

	// Validation runs quality checks and confirmations.
	Validation *validation.Service

	// Consumer is the OCR results consumer. Optional: nil disables
	// ingestion (API-only mode).
	Consumer *ingest.Consumer

	// Handler is the HTTP API.
	Handler http.Handler

	// Logger is the logger for the server.
	Logger hclog.Logger
}

// Run serves HTTP and the OCR consumer until ctx is cancelled, then
// shuts both down in order: listener first, consumer, audit queue.
func (s *Server) Run(ctx context.Context) error {
	if s.Logger == nil {
		s.Logger = hclog.NewNullLogger()
	}
	log := s.Logger.Named("server")

	httpSrv := &http.Server{
		Addr:    s.Config.ListenAddr,
		Handler: s.Handler,
	}

	errCh := make(chan error, 2)

	if s.Consumer != nil {
		go func() {
			if err := s.Consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("ocr consumer: %w", err)
			}
		}()
	}

	go func() {
		log.Info("http listener starting", "addr", s.Config.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http listener: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.Error("server component failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}

	if s.Consumer != nil {
		s.Consumer.Stop()
	}
	if s.Audit != nil {
		s.Audit.Stop()
	}

	log.Info("server stopped")
	return runErr
}
