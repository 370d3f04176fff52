package api

import (
	"context"
	"net/http"
	"time"

	"github.com/uleam-dti/dms/internal/auth"
)

const syncTimeout = 10 * time.Minute

// handleForceSync kicks off a master-data sync in the background and
// returns immediately. The sync itself lives in an external
// collaborator behind the SyncRunner interface.
func (a *API) handleForceSync(w http.ResponseWriter, _ *http.Request, caller *auth.Context) {
	a.logger.Info("master-data sync requested", "user_id", caller.UserID)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		if err := a.sync.Run(ctx); err != nil {
			a.logger.Error("master-data sync failed", "error", err)
		}
	}()

	respondData(w, http.StatusAccepted, "Sincronización iniciada.", nil)
}
