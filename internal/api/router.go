package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/noteweave/internal/graph"
	"github.com/starford/noteweave/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, asm *graph.Assembler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, asm)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes. The graph route is registered before {id} so it is not
	// captured as a note ID.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/graph", h.Graph)
	r.Route("/notes/{id}", func(r chi.Router) {
		r.Get("/", h.GetNote)
		r.Patch("/", h.UpdateNote)
		r.Delete("/", h.DeleteNote)
		r.Post("/reprocess", h.Reprocess)
		r.Get("/related", h.Related)
		r.Get("/links", h.Links)
	})

	// Explicit links.
	r.Post("/links", h.CreateLink)
	r.Delete("/links", h.DeleteLink)

	// Search.
	r.Get("/search", h.Search)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
