package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/pkg/objectstore"
)

const (
	templateMaxBytes      = 32 << 20
	templateLinkExpiry    = 2 * time.Hour
	templateArchiveFormat = "20060102T150405"
)

// handleTemplateUpload stores a system template under a fresh UUID
// name. When `replaces` names an older template, that object is moved
// into the archive prefix first.
func (a *API) handleTemplateUpload(w http.ResponseWriter, r *http.Request, _ *auth.Context) {
	if err := r.ParseMultipartForm(templateMaxBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Formulario multipart inválido.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "El campo 'file' es obligatorio.")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, templateMaxBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "No se pudo leer el archivo.")
		return
	}

	ext := strings.TrimPrefix(path.Ext(header.Filename), ".")
	objectName := objectstore.TemplatesPrefix + uuid.NewString()
	if ext != "" {
		objectName += "." + ext
	}

	if replaces := r.FormValue("replaces"); replaces != "" {
		if err := a.archiveTemplate(r, replaces); err != nil {
			a.logger.Warn("template archive failed, keeping old object", "path", replaces, "error", err)
		}
	}

	contentType := header.Header.Get("Content-Type")
	storagePath, err := a.templates.Upload(r.Context(), data, objectName, contentType)
	if err != nil {
		a.logger.Error("template upload failed", "object", objectName, "error", err)
		respondError(w, http.StatusInternalServerError, "Error al subir la plantilla.")
		return
	}

	respondData(w, http.StatusOK, "Plantilla subida exitosamente.", map[string]any{
		"storage_path":  storagePath,
		"original_name": header.Filename,
		"mime_type":     contentType,
	})
}

// archiveTemplate moves a replaced template under the archive prefix
// with a timestamped name.
func (a *API) archiveTemplate(r *http.Request, storagePath string) error {
	base := path.Base(storagePath)
	dst := fmt.Sprintf("%s%s_%s", objectstore.TemplateArchivePrefix,
		time.Now().UTC().Format(templateArchiveFormat), base)
	if err := a.templates.Copy(r.Context(), storagePath, dst); err != nil {
		return err
	}
	return a.templates.Remove(r.Context(), storagePath)
}

// handleTemplateDownload hands out a time-limited presigned link.
func (a *API) handleTemplateDownload(w http.ResponseWriter, r *http.Request, _ *auth.Context) {
	storagePath := r.URL.Query().Get("path")
	if storagePath == "" {
		respondError(w, http.StatusBadRequest, "El parámetro 'path' es obligatorio.")
		return
	}

	url, err := a.templates.PresignedGet(r.Context(), storagePath, templateLinkExpiry)
	if err != nil {
		a.logger.Error("presigned link failed", "path", storagePath, "error", err)
		respondError(w, http.StatusInternalServerError, "Error al generar el enlace de descarga.")
		return
	}
	respondData(w, http.StatusOK, "Enlace generado exitosamente.", map[string]string{"url": url})
}
