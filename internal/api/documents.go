package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/pkg/search"
)

// handleListDocuments runs the gated document search. The caller's
// read/approve/reject scopes are resolved up front; the status gate
// decides which of them apply.
func (a *API) handleListDocuments(w http.ResponseWriter, r *http.Request, caller *auth.Context) {
	ctx := r.Context()

	readTeams, err := a.auth.ScopesFor(ctx, auth.PermDocumentRead, caller)
	if err != nil {
		a.logger.Error("scope resolution failed", "permission", auth.PermDocumentRead, "error", err)
		respondError(w, http.StatusServiceUnavailable, "Servicio de permisos no disponible.")
		return
	}
	approveTeams, err := a.auth.ScopesFor(ctx, auth.PermWorkflowApprove, caller)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "Servicio de permisos no disponible.")
		return
	}
	rejectTeams, err := a.auth.ScopesFor(ctx, auth.PermWorkflowReject, caller)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "Servicio de permisos no disponible.")
		return
	}

	q := r.URL.Query()
	status, teams, err := search.ResolveStatusAndTeams(search.GateInput{
		Status:       q.Get("status"),
		ReadTeams:    readTeams,
		ApproveTeams: approveTeams,
		RejectTeams:  rejectTeams,
	})
	if err != nil {
		if errors.Is(err, search.ErrForbidden) {
			respondError(w, http.StatusForbidden, "No tiene permisos para consultar este estado.")
			return
		}
		respondError(w, http.StatusInternalServerError, "Error al resolver permisos.")
		return
	}

	params := search.Params{
		Page:  intParam(q.Get("page"), 1),
		Limit: intParam(q.Get("limit"), 10),

		Status:        status,
		AllowedTeams:  teams,
		CurrentUserID: caller.UserID,

		EntityID:           q.Get("entity_id"),
		ProcessIDs:         q["process_id"],
		RequiredDocumentID: q.Get("required_document_id"),
		ReferencedEntityID: q.Get("referenced_entity_id"),
		SchemaID:           q.Get("schema_id"),
		Search:             q.Get("search"),
		DateFrom:           q.Get("date_from"),
		DateTo:             q.Get("date_to"),
		OwnerID:            q.Get("owner_id"),
		Fuzziness:          intParam(q.Get("fuzziness"), 0),
	}

	if raw := q.Get("metadata_filters"); raw != "" {
		filters := map[string]any{}
		if err := json.Unmarshal([]byte(raw), &filters); err != nil {
			respondError(w, http.StatusBadRequest, "metadata_filters debe ser un objeto JSON válido.")
			return
		}
		params.MetadataFilters = filters
	}

	result, err := a.search.Search(ctx, params)
	if err != nil {
		a.logger.Error("document search failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Error al buscar documentos.")
		return
	}

	msg := "Búsqueda completada exitosamente."
	if len(result.Data) == 0 {
		msg = "No se encontraron documentos."
	}
	respondPage(w, msg, result)
}

func (a *API) handleGetDocument(w http.ResponseWriter, r *http.Request, _ *auth.Context) {
	doc, err := a.search.GetDocument(r.Context(), r.PathValue("doc_id"))
	if err != nil {
		a.logger.Error("document lookup failed", "doc_id", r.PathValue("doc_id"), "error", err)
		respondError(w, http.StatusInternalServerError, "Error al consultar el documento.")
		return
	}
	if doc == nil {
		respondError(w, http.StatusNotFound, "Documento no encontrado.")
		return
	}
	respondData(w, http.StatusOK, "Documento encontrado exitosamente.", doc)
}

func (a *API) handleCatalogEntities(w http.ResponseWriter, r *http.Request, _ *auth.Context) {
	entities, err := a.search.AvailableEntities(r.Context())
	if err != nil {
		a.logger.Error("entity catalog failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Error al consultar entidades.")
		return
	}
	msg := fmt.Sprintf("Se encontraron %d entidades con documentos.", len(entities))
	respondList(w, msg, entities, len(entities))
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
