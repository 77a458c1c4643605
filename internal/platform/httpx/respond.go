// Package httpx provides HTTP response utilities for the JSON API.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/pharmalytics/pharmalytics/internal/shared"
)

// ErrorBody is the envelope of every failed API call.
type ErrorBody struct {
	Success   bool                `json:"success"`
	Error     string              `json:"error"`
	Message   string              `json:"message,omitempty"`
	Details   []shared.FieldError `json:"details,omitempty"`
	Retryable bool                `json:"retryable,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK sends a 200 JSON response.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Problem sends an error envelope with a generic message.
func Problem(w http.ResponseWriter, status int, title string) {
	JSON(w, status, ErrorBody{Error: title})
}
