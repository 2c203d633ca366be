package http

import (
	"context"
	"net/http"

	lspDomain "github.com/codenav-io/codenav/internal/domain/lsp"
)

// Navigator is the service surface the handlers call into.
type Navigator interface {
	Hover(ctx context.Context, uri string, line, character int) (lspDomain.HoverResult, error)
	Definition(ctx context.Context, uri string, line, character int) (lspDomain.DefinitionResult, error)
	References(ctx context.Context, uri string, line, character int, includeDeclaration bool) (lspDomain.ReferencesResult, error)
	Status() ([]lspDomain.ServerInfo, []string)
}

// Handlers bundles the API handlers and their dependencies.
type Handlers struct {
	nav Navigator
}

// NewHandlers creates the handler set.
func NewHandlers(nav Navigator) *Handlers {
	return &Handlers{nav: nav}
}

// positionRequest is the body of all position query endpoints. Lines are
// 1-indexed, characters 0-indexed.
type positionRequest struct {
	URI                string `json:"uri"`
	Line               int    `json:"line"`
	Character          int    `json:"character"`
	IncludeDeclaration bool   `json:"include_declaration,omitempty"`
}

func (h *Handlers) readPosition(w http.ResponseWriter, r *http.Request) (positionRequest, bool) {
	req, ok := readJSON[positionRequest](w, r)
	if !ok {
		return req, false
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return req, false
	}
	if req.Character < 0 {
		writeError(w, http.StatusBadRequest, "character must not be negative")
		return req, false
	}
	return req, true
}

// Hover handles POST /api/v1/lsp/hover.
func (h *Handlers) Hover(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readPosition(w, r)
	if !ok {
		return
	}
	res, err := h.nav.Hover(r.Context(), req.URI, req.Line, req.Character)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Definition handles POST /api/v1/lsp/definition.
func (h *Handlers) Definition(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readPosition(w, r)
	if !ok {
		return
	}
	res, err := h.nav.Definition(r.Context(), req.URI, req.Line, req.Character)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// References handles POST /api/v1/lsp/references.
func (h *Handlers) References(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readPosition(w, r)
	if !ok {
		return
	}
	res, err := h.nav.References(r.Context(), req.URI, req.Line, req.Character, req.IncludeDeclaration)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// statusResponse is the body of GET /api/v1/lsp/status.
type statusResponse struct {
	Servers   []lspDomain.ServerInfo `json:"servers"`
	Languages []string               `json:"languages"`
}

// Status handles GET /api/v1/lsp/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	servers, languages := h.nav.Status()
	if servers == nil {
		servers = []lspDomain.ServerInfo{}
	}
	writeJSON(w, http.StatusOK, statusResponse{Servers: servers, Languages: languages})
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
