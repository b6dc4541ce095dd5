package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"wastedispatch/internal/store"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeStoreError maps store sentinels onto HTTP statuses. Conflicts
// on re-validated requests are 409; unavailable driver or vehicle is
// 422 since the body was well formed but cannot be satisfied.
func writeStoreError(w http.ResponseWriter, err error, instance string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), instance)
	case errors.Is(err, store.ErrRequestTaken):
		writeProblem(w, http.StatusConflict, "Request already taken", err.Error(), instance)
	case errors.Is(err, store.ErrDriverUnavailable), errors.Is(err, store.ErrVehicleUnavailable):
		writeProblem(w, http.StatusUnprocessableEntity, "Cannot satisfy commit", err.Error(), instance)
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), instance)
	}
}
