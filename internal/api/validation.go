package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/pkg/validation"
)

// confirmPayload is the body of quality-check and confirm requests.
type confirmPayload struct {
	Metadata     map[string]any `json:"metadata"`
	DisplayName  string         `json:"display_name"`
	IsPublic     bool           `json:"is_public"`
	KeepOriginal bool           `json:"keep_original"`
}

func (a *API) handleQualityCheck(w http.ResponseWriter, r *http.Request, _ *auth.Context) {
	var payload confirmPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Cuerpo de la petición inválido.")
		return
	}

	report, err := a.validator.QualityCheck(r.Context(), r.PathValue("doc_id"), payload.Metadata)
	if err != nil {
		if errors.Is(err, validation.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Documento no encontrado.")
			return
		}
		a.logger.Error("quality check failed", "doc_id", r.PathValue("doc_id"), "error", err)
		respondError(w, http.StatusInternalServerError, "Error al validar el documento.")
		return
	}
	respondData(w, http.StatusOK, "Análisis de calidad completado.", report)
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request, caller *auth.Context) {
	var payload confirmPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Cuerpo de la petición inválido.")
		return
	}

	doc, err := a.validator.Confirm(r.Context(), r.PathValue("doc_id"), caller.UserID, validation.ConfirmRequest{
		Metadata:     payload.Metadata,
		DisplayName:  payload.DisplayName,
		IsPublic:     payload.IsPublic,
		KeepOriginal: payload.KeepOriginal,
	})
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrNotFound):
			respondError(w, http.StatusNotFound, "Documento no encontrado.")
		case errors.Is(err, validation.ErrPermissionDenied):
			respondError(w, http.StatusForbidden, "Solo el propietario puede confirmar este documento.")
		case errors.Is(err, validation.ErrLocked),
			errors.Is(err, validation.ErrNoOriginalPDF),
			errors.Is(err, validation.ErrInvalidRequest):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			a.logger.Error("confirmation failed", "doc_id", r.PathValue("doc_id"), "error", err)
			respondError(w, http.StatusInternalServerError, "Error al confirmar el documento.")
		}
		return
	}
	respondData(w, http.StatusOK, "Documento confirmado exitosamente.", doc)
}

func (a *API) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request, caller *auth.Context) {
	result, err := a.validator.VerifyIntegrity(r.Context(), r.PathValue("doc_id"), caller.UserID)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrNotFound):
			respondError(w, http.StatusNotFound, "Documento no encontrado.")
		case errors.Is(err, validation.ErrPermissionDenied):
			respondError(w, http.StatusForbidden, "No tiene permisos sobre este documento.")
		default:
			a.logger.Error("integrity verification failed", "doc_id", r.PathValue("doc_id"), "error", err)
			respondError(w, http.StatusInternalServerError, "Error al verificar la integridad.")
		}
		return
	}
	respondData(w, http.StatusOK, "Verificación de integridad completada.", result)
}
