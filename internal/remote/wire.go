package remote

import (
	"encoding/json"
	"net/http"

	"github.com/roach88/docsync/internal/doc"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type bulkDocsRequest struct {
	Docs     []doc.Document `json:"docs"`
	NewEdits bool           `json:"new_edits"`
}

type bulkDocsResponse struct {
	Applied []string `json:"applied"`
}

type revsDiffResponse struct {
	Missing []string `json:"missing"`
}

type allDocsResponse struct {
	Docs []doc.Document `json:"docs"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
