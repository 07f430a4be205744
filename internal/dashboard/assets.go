package dashboard

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// assetHandler serves a file from the bundler output when present and falls
// back to the checked-in assets directory. Subdirectories are allowed but
// never escape either root.
type assetHandler struct {
	buildDir  string
	assetsDir string
}

func newAssetHandler(buildDir, assetsDir string) *assetHandler {
	return &assetHandler{
		buildDir:  buildDir,
		assetsDir: assetsDir,
	}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := filepath.FromSlash(strings.TrimPrefix(r.URL.Path, "/"))
	if rel == "" || !filepath.IsLocal(rel) {
		http.NotFound(w, r)
		return
	}

	for _, root := range []string{h.buildDir, h.assetsDir} {
		if root == "" {
			continue
		}
		path := filepath.Join(root, rel)
		if fileExists(path) {
			http.ServeFile(w, r, path)
			return
		}
	}
	http.NotFound(w, r)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
