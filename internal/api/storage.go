package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/pkg/search"
)

// handleStorageProxy streams a stored artifact after the access ladder
// has cleared the caller. The audit row is enqueued by the fetcher.
func (a *API) handleStorageProxy(w http.ResponseWriter, r *http.Request, caller *auth.Context) {
	objectPath := r.PathValue("object_path")
	if objectPath == "" {
		respondError(w, http.StatusNotFound, "Archivo no encontrado.")
		return
	}

	readTeams, err := a.auth.ScopesFor(r.Context(), auth.PermDocumentRead, caller)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "Servicio de permisos no disponible.")
		return
	}

	dl, err := a.fetcher.Fetch(r.Context(), objectPath, caller.UserID, clientIP(r), readTeams)
	if err != nil {
		switch {
		case errors.Is(err, search.ErrObjectNotFound):
			respondError(w, http.StatusNotFound, "Archivo no encontrado.")
		case errors.Is(err, search.ErrForbidden):
			respondError(w, http.StatusForbidden, "No tiene permisos para descargar este archivo.")
		default:
			a.logger.Error("proxy download failed", "object_path", objectPath, "error", err)
			respondError(w, http.StatusInternalServerError, "Error al descargar el archivo.")
		}
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%s", dl.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		a.logger.Warn("proxy stream interrupted", "object_path", objectPath, "error", err)
	}
}
