package httpapi

import (
	"net/http"

	"github.com/swaggo/swag"

	_ "artifyd/docs"
)

// handleOpenAPI serves the registered OpenAPI document.
func handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "api docs not available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}
