package apitest

import (
	"encoding/json"
	"net/http"
)

// respondJSON writes v as a JSON body with status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondDetail writes a FastAPI-style {"detail": msg} error.
func respondDetail(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"detail": msg})
}

// respondValidation writes a FastAPI-style validation error list.
func respondValidation(w http.ResponseWriter, field, msg string) {
	respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"detail": []map[string]any{
			{"loc": []string{"body", field}, "msg": msg, "type": "value_error"},
		},
	})
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
