package api

import (
	"net/http"

	"github.com/uleam-dti/dms/internal/auth"
	"github.com/uleam-dti/dms/pkg/search"
)

// handleMyEntities translates the caller's team codes into the full
// entity objects the frontend renders.
func (a *API) handleMyEntities(w http.ResponseWriter, r *http.Request, caller *auth.Context) {
	if len(caller.TeamIDs) == 0 {
		respondData(w, http.StatusOK, "Entidades recuperadas correctamente.", []search.TeamEntity{})
		return
	}

	entities, err := search.ResolveTeamEntities(r.Context(), a.store, caller.TeamIDs)
	if err != nil {
		a.logger.Error("team resolution failed", "user_id", caller.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "Error al resolver las entidades del usuario.")
		return
	}
	respondData(w, http.StatusOK, "Entidades recuperadas correctamente.", entities)
}
