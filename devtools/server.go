/*
Package devtools exposes a read-only HTTP introspection surface over a
running client: Triple Store contents, Attribute Registry state, and Sync
Engine connection status. It is a debugging aid, never a write API -
mutating client state always goes through relaydb.Client.Transact.

PURPOSE:
  A small chi router + middleware stack + static frontend fallback,
  exposing a read-only inspector for the triple store alongside whatever
  application frontend a caller wants to serve.

ROUTER: chi, with logger/recoverer/request-id/cors middleware and a
static-file fallback.

ROUTE GROUPS:
  /devtools/entities/{namespace}   Dump entities of a namespace
  /devtools/attrs                  Dump the Attribute Registry
  /devtools/sync                   Sync Engine connection state
  /devtools/pending                Pending (not yet synced) transactions
  /*                               Static files (optional dashboard UI)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/example/main.go: server startup
*/
package devtools

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with every devtools route configured.
func NewRouter(h *Handler, staticDir string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/devtools", func(r chi.Router) {
		r.Get("/entities/{namespace}", h.ListEntities)
		r.Get("/attrs", h.ListAttrs)
		r.Get("/sync", h.SyncStatus)
		r.Get("/pending", h.PendingTransactions)
	})

	if staticDir != "" {
		serveStatic(r, staticDir)
	}

	return r
}

// serveStatic falls back to index.html for any unmatched route, a
// standard SPA-hosting pattern.
func serveStatic(r *chi.Mux, dir string) {
	fs := http.FileServer(http.Dir(dir))
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		path := filepath.Join(dir, filepath.Clean(req.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, req, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, req)
	})
}
