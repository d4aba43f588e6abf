// Package httputil contains shared JSON response plumbing for the hub and
// app server HTTP handlers.
package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorResponse is the JSON body written for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON marshals resp and writes it with the given status code.
func WriteJSON(w http.ResponseWriter, status int, resp interface{}) {
	body, err := json.Marshal(resp)
	if err != nil {
		log.Printf("failed to marshal response: %v", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// WriteError logs the handler error and writes it as a JSON error body.
func WriteError(w http.ResponseWriter, r *http.Request, status int, err error) {
	log.Printf("%s - %s %s ERROR: %v", r.RemoteAddr, r.Method, r.URL.Path, err)
	WriteJSON(w, status, ErrorResponse{Error: err.Error()})
}
