package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmynk/girandola/internal/middleware"
)

// handlePages serves the web client from the static directory. Locale
// prefixes map onto the same files, and extensionless paths resolve to
// "<path>.html" before falling back to index.html.
func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		WriteProblem(w, http.StatusNotFound, "Not found", "no such route")
		return
	}
	if s.deps.StaticDir == "" {
		WriteProblem(w, http.StatusNotFound, "Not found", "no such page")
		return
	}

	_, rest := middleware.SplitLocale(r.URL.Path)
	rest = filepath.Clean("/" + strings.TrimPrefix(rest, "/"))
	if rest == "/" {
		rest = "/index.html"
	}

	candidates := []string{rest}
	if filepath.Ext(rest) == "" {
		candidates = append(candidates, rest+".html")
	}
	candidates = append(candidates, "/index.html")

	for _, c := range candidates {
		path := filepath.Join(s.deps.StaticDir, c)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			http.ServeFile(w, r, path)
			return
		}
	}
	WriteProblem(w, http.StatusNotFound, "Not found", "no such page")
}
