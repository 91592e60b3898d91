package ingest

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sgn-project/sgnd/logger"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to write json response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, extra map[string]interface{}) {
	body := map[string]interface{}{"error": code}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func readJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dst)
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return false
	}
	return true
}

// cidFromPath extracts the CID segment from a /ku/:cid path.
func cidFromPath(path string) string {
	return strings.TrimPrefix(path, "/ku/")
}
