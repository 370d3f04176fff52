package api

import (
	"encoding/json"
	"net/http"

	"github.com/uleam-dti/dms/pkg/search"
)

// envelope is the standard response wrapper every JSON endpoint uses.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// successData is the inner payload for protected reads.
type successData struct {
	Count      *int               `json:"count,omitempty"`
	Data       any                `json:"data"`
	Pagination *search.Pagination `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{
		Success: true,
		Message: message,
		Data:    successData{Data: data},
	})
}

func respondList(w http.ResponseWriter, message string, items any, count int) {
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: message,
		Data:    successData{Count: &count, Data: items},
	})
}

func respondPage(w http.ResponseWriter, message string, result *search.Result) {
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: message,
		Data:    successData{Data: result.Data, Pagination: &result.Pagination},
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{
		Success: false,
		Message: message,
		Data:    nil,
	})
}
