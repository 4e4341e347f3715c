package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/zipbob/edge"
)

// WriteFailure writes f as the JSON error body with f.Status.
func WriteFailure(w http.ResponseWriter, f edge.Failure) {
	if f.Status == 0 {
		f.Status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(f.Status)
	_ = json.NewEncoder(w).Encode(f)
}

// WriteError maps err with edge.Describe and writes it.
func WriteError(w http.ResponseWriter, err error) {
	WriteFailure(w, edge.Describe(err))
}
