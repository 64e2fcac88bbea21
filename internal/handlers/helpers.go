package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
)

// apiEnvelope is the JSON shape every portal endpoint answers with,
// mirroring the {status,data} envelope the upstream auth and document
// services speak.
type apiEnvelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// respondData writes a success envelope around data.
func respondData(w http.ResponseWriter, statusCode int, data interface{}) {
	writeEnvelope(w, statusCode, apiEnvelope{Status: "ok", Data: data})
}

// respondError writes an error envelope with a caller-safe message.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	writeEnvelope(w, statusCode, apiEnvelope{Status: "error", Error: message})
}

func writeEnvelope(w http.ResponseWriter, statusCode int, env apiEnvelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(env)
}

// allowMethod gates a handler to the given methods, answering 405 with an
// Allow header otherwise. HEAD rides along with GET.
func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m || (m == http.MethodGet && r.Method == http.MethodHead) {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}
