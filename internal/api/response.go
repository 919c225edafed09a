package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Write encodes v as the whole response body.
func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func JSONErrorMessage(w http.ResponseWriter, status int, message string) {
	Write(w, status, ErrorResponse{Error: message})
}

// JSONErrorDetail writes an error with an optional detail field.
func JSONErrorDetail(w http.ResponseWriter, status int, message, detail string) {
	Write(w, status, ErrorResponse{Error: message, Detail: detail})
}
