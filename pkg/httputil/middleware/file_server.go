package middleware

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// Static serves files from fsys. With spaFallback, unknown paths serve index.html
// so client-side routes resolve.
//
// Example usage:
//
//	//go:embed web
//	var webFS embed.FS
//	sub, _ := fs.Sub(webFS, "web")
//	r.Handle("GET /", middleware.Static(sub, true))
func Static(fsys fs.FS, spaFallback bool) http.Handler {
	files := http.FileServerFS(fsys)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "."
		}
		if !fs.ValidPath(name) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		info, err := fs.Stat(fsys, name)
		switch {
		case err == nil && info.IsDir() && name != ".":
			if _, err := fs.Stat(fsys, path.Join(name, "index.html")); err != nil {
				http.Error(w, "Directory listing not allowed", http.StatusForbidden)
				return
			}
		case errors.Is(err, fs.ErrNotExist) && spaFallback:
			http.ServeFileFS(w, r, fsys, "index.html")
			return
		case err != nil:
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

// StaticDir serves a directory on the host.
func StaticDir(directory string, spaFallback bool) http.Handler {
	return Static(os.DirFS(directory), spaFallback)
}
