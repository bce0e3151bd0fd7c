package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/principal"
	"github.com/aegisframework/aegis/types"
)

// PrincipalHandler exposes request processing and session management.
type PrincipalHandler struct {
	pr     *principal.Principal
	logger *zap.Logger
}

// NewPrincipalHandler creates a principal handler.
func NewPrincipalHandler(pr *principal.Principal, logger *zap.Logger) *PrincipalHandler {
	return &PrincipalHandler{pr: pr, logger: logger}
}

// HandleProcess runs a request through the orchestration loop and returns
// the assembled response with per-task status.
// POST /v1/requests
func (h *PrincipalHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req principal.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	resp, err := h.pr.Process(r.Context(), &req)
	if err != nil {
		writeAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, resp)
}

// HandleGetSession returns a snapshot of the session's history and
// preferences. A session that does not exist yet is created empty.
// GET /v1/sessions/{id}
func (h *PrincipalHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return
	}
	WriteSuccess(w, h.pr.Session(r.Context(), id).Snapshot())
}

// HandleEndSession persists and drops the session from memory.
// DELETE /v1/sessions/{id}
func (h *PrincipalHandler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "session id is required"), h.logger)
		return
	}
	h.pr.EndSession(r.Context(), id)
	WriteSuccess(w, map[string]any{"id": id, "ended": true})
}
