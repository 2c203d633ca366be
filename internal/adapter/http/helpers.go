package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	lspAdapter "github.com/codenav-io/codenav/internal/adapter/lsp"
)

// bodyLimit bounds request bodies; navigation requests are tiny.
const bodyLimit = 1 << 20

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeQueryError maps protocol failures onto HTTP statuses.
func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lspAdapter.ErrUnsupportedLanguage):
		writeError(w, http.StatusUnprocessableEntity, "no language server for this file type")
	case errors.Is(err, lspAdapter.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, "language server did not answer in time")
	case errors.Is(err, lspAdapter.ErrServerUnavailable):
		writeError(w, http.StatusServiceUnavailable, "language server is not installed")
	case errors.Is(err, lspAdapter.ErrNotConnected),
		errors.Is(err, lspAdapter.ErrNotInitialized),
		errors.Is(err, lspAdapter.ErrShutdown):
		writeError(w, http.StatusServiceUnavailable, "language server session unavailable")
	default:
		slog.Error("navigation query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
