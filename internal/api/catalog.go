package api

import (
	"context"
	"net/http"

	"github.com/uleam-dti/dms/pkg/graph"
)

// catalogItem is the minimal shape the navigation selectors consume.
type catalogItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code any    `json:"code"`
}

type careerItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Code        any     `json:"code"`
	FacultyID   *string `json:"faculty_id"`
	FacultyName *string `json:"faculty_name"`
}

type processNode struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Code     any           `json:"code"`
	Type     string        `json:"type"`
	Children []processNode `json:"children,omitempty"`
}

// The catalog endpoints are public read-only browsing over the synced
// master data.

func (a *API) handleCatalogFaculties(w http.ResponseWriter, r *http.Request) {
	items, err := a.catalogQuery(r.Context(), `
		FOR doc IN `+graph.ColEntities+`
			FILTER doc.type == 'facultad'
			SORT doc.name ASC
			RETURN { id: doc._key, name: doc.name, code: doc.code }`, nil)
	if err != nil {
		a.logger.Error("faculty listing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Error al consultar facultades.")
		return
	}
	respondList(w, "Facultades recuperadas correctamente.", items, len(items))
}

func (a *API) handleCatalogCareers(w http.ResponseWriter, r *http.Request) {
	var (
		careers []careerItem
		err     error
	)
	if facultyID := r.URL.Query().Get("faculty_id"); facultyID != "" {
		err = a.store.Query(r.Context(), `
			FOR fac IN `+graph.ColEntities+`
				FILTER fac._key == @faculty_id AND fac.type == 'facultad'
				FOR car IN 1..1 INBOUND fac `+graph.EdgeBelongsTo+`
					FILTER car.type == 'carrera'
					SORT car.name ASC
					RETURN {
						id: car._key, name: car.name, code: car.code,
						faculty_id: fac._key, faculty_name: fac.name
					}`,
			map[string]any{"faculty_id": facultyID}, &careers)
	} else {
		err = a.store.Query(r.Context(), `
			FOR car IN `+graph.ColEntities+`
				FILTER car.type == 'carrera'
				LET fac = FIRST(
					FOR f IN 1..1 OUTBOUND car `+graph.EdgeBelongsTo+`
						FILTER f.type == 'facultad'
						RETURN f
				)
				SORT car.name ASC
				RETURN {
					id: car._key, name: car.name, code: car.code,
					faculty_id: fac._key, faculty_name: fac.name
				}`, nil, &careers)
	}
	if err != nil {
		a.logger.Error("career listing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Error al consultar carreras.")
		return
	}
	if careers == nil {
		careers = []careerItem{}
	}
	respondList(w, "Carreras recuperadas correctamente.", careers, len(careers))
}

// handleProcessTree returns subsystems -> categories -> processes for
// cascading selectors.
func (a *API) handleProcessTree(w http.ResponseWriter, r *http.Request) {
	var tree []processNode
	err := a.store.Query(r.Context(), `
		FOR sub IN `+graph.ColSubsystems+`
			SORT sub.name ASC
			LET categories = (
				FOR cat IN 1..1 INBOUND sub `+graph.EdgeCatalogBelongsTo+`
					SORT cat.name ASC
					LET processes = (
						FOR proc IN 1..1 INBOUND cat `+graph.EdgeCatalogBelongsTo+`
							SORT proc.name ASC
							RETURN { id: proc._key, name: proc.name, code: proc.code, type: "process" }
					)
					RETURN {
						id: cat._key, name: cat.name, code: cat.code,
						type: "category", children: processes
					}
			)
			RETURN {
				id: sub._key, name: sub.name, code: sub.code,
				type: "subsystem", children: categories
			}`, nil, &tree)
	if err != nil {
		a.logger.Error("process tree failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Error al consultar el árbol de procesos.")
		return
	}
	if tree == nil {
		tree = []processNode{}
	}
	respondList(w, "Árbol de procesos recuperado correctamente.", tree, len(tree))
}

func (a *API) handleRequiredDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := a.catalogQuery(r.Context(), `
		FOR proc IN `+graph.ColProcesses+`
			FILTER proc._key == @process_id
			FOR req IN 1..1 INBOUND proc `+graph.EdgeCatalogBelongsTo+`
				SORT req.name ASC
				RETURN { id: req._key, name: req.name, code: req.code }`,
		map[string]any{"process_id": r.PathValue("process_id")})
	if err != nil {
		a.logger.Error("required document listing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Error al consultar documentos requeridos.")
		return
	}
	respondList(w, "Documentos requeridos recuperados correctamente.", items, len(items))
}

func (a *API) catalogQuery(ctx context.Context, aql string, bind map[string]any) ([]catalogItem, error) {
	var items []catalogItem
	if err := a.store.Query(ctx, aql, bind, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []catalogItem{}
	}
	return items, nil
}
