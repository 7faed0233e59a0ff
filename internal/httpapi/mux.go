package httpapi

import (
	"database/sql"
	"net/http"
)

// NewMux returns the base router with the health check and, when staticDir
// is set, the /static/ file server. Feature modules register their own routes
// on the returned mux.
func NewMux(db *sql.DB, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db)
	if staticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	return mux
}
