package api

import (
	"net/http"
	"strconv"
)

// Related handles GET /api/notes/{id}/related.
//
//	@Summary		Related notes by similarity plus explicit links
//	@Tags			graph
//	@Produce		json
//	@Param			id		path		string	true	"Note ID"
//	@Param			limit	query		int		false	"Max related notes (1-100, default 10)"
//	@Success		200		{object}	RelatedResponse
//	@Failure		404		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/related [get]
func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	id := noteID(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	related, err := h.graph.RelatedNotes(r.Context(), id, limit)
	if err != nil {
		writeError(w, "related notes", err)
		return
	}
	links, err := h.graph.NoteLinks(r.Context(), id)
	if err != nil {
		writeError(w, "note links", err)
		return
	}
	writeJSON(w, http.StatusOK, RelatedResponse{
		RelatedByTopics: related,
		LinkedTo:        links.LinkedTo,
		LinkedFrom:      links.LinkedFrom,
	})
}

// Links handles GET /api/notes/{id}/links.
//
//	@Summary		Explicit links of a note, split by direction
//	@Tags			graph
//	@Produce		json
//	@Param			id	path		string	true	"Note ID"
//	@Success		200	{object}	graph.Links
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/links [get]
func (h *Handler) Links(w http.ResponseWriter, r *http.Request) {
	links, err := h.graph.NoteLinks(r.Context(), noteID(r))
	if err != nil {
		writeError(w, "note links", err)
		return
	}
	writeJSON(w, http.StatusOK, links)
}

// Graph handles GET /api/notes/graph.
//
//	@Summary		Get the note graph with explicit and inferred edges
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	g, err := h.graph.FullGraph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// CreateLink handles POST /api/links.
//
//	@Summary		Add an explicit link between two notes
//	@Tags			graph
//	@Accept			json
//	@Produce		json
//	@Param			body	body		LinkRequest	true	"Link endpoints"
//	@Success		201		{object}	LinkResponse	"Link created"
//	@Success		200		{object}	LinkResponse	"Link already existed"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [post]
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := h.svc.Link(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, "create link", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, LinkResponse{From: req.From, To: req.To, Created: created})
}

// DeleteLink handles DELETE /api/links.
//
//	@Summary		Remove an explicit link
//	@Tags			graph
//	@Accept			json
//	@Param			body	body	LinkRequest	true	"Link endpoints"
//	@Success		204		"Link removed"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/links [delete]
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Unlink(r.Context(), req.From, req.To); err != nil {
		writeError(w, "delete link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
