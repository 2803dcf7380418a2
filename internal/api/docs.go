package api

import (
	"net/http"
	"os"

	yaml "gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the OpenAPI document as YAML.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile(s.openAPIPath)
	if err != nil {
		writeProblem(w, r, http.StatusInternalServerError, "Internal", "OpenAPI not available", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// OpenAPIJSONHandler serves the same document converted to JSON.
func (s *Server) OpenAPIJSONHandler(w http.ResponseWriter, r *http.Request) {
	b, err := os.ReadFile(s.openAPIPath)
	if err != nil {
		writeProblem(w, r, http.StatusInternalServerError, "Internal", "OpenAPI not available", err.Error())
		return
	}
	var doc map[string]any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		writeProblem(w, r, http.StatusInternalServerError, "Internal", "OpenAPI parse failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DocsHandler serves a minimal ReDoc page referencing /openapi.yaml
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<!DOCTYPE html><html><head><title>Route ETA API</title>
<meta charset="utf-8"/>
<meta name="viewport" content="width=device-width, initial-scale=1">
<script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
</head><body>
<redoc spec-url="/openapi.yaml"></redoc>
</body></html>`))
}
