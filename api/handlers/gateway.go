package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/gateway"
	"github.com/aegisframework/aegis/types"
)

// GatewayHandler exposes the gateway's registry and discovery operations.
type GatewayHandler struct {
	svc    *gateway.Service
	logger *zap.Logger
}

// NewGatewayHandler creates a gateway handler.
func NewGatewayHandler(svc *gateway.Service, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{svc: svc, logger: logger}
}

// RegisterRequest is the registration request body.
type RegisterRequest struct {
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name,omitempty"`
	Owner        string         `json:"owner,omitempty"`
	Capabilities []string       `json:"capabilities"`
	Endpoint     string         `json:"endpoint"`
	APISchema    types.Document `json:"api_schema,omitempty"`
	Manifest     types.Document `json:"manifest,omitempty"`
}

// QueryRequest is the capability discovery request body.
type QueryRequest struct {
	Requirements []string `json:"requirements"`
	Limit        int      `json:"limit,omitempty"`
}

// QueryResponse carries the ranked matches and any advisory qualifiers that
// were not enforced as hard constraints.
type QueryResponse struct {
	Candidates []types.CandidateSummary `json:"candidates"`
	Advisory   []string                 `json:"advisory,omitempty"`
}

// OutcomeRequest reports the result of a delegation back to the gateway.
type OutcomeRequest struct {
	Success   bool  `json:"success"`
	LatencyMS int64 `json:"latency_ms"`
}

// HandleRegister registers a resource or updates an existing one.
// POST /v1/resources
func (h *GatewayHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	rec := &types.ResourceRecord{
		ID:           req.ID,
		Name:         req.Name,
		Owner:        req.Owner,
		Capabilities: req.Capabilities,
		Endpoint:     req.Endpoint,
		APISchema:    req.APISchema,
		Manifest:     req.Manifest,
	}

	result, err := h.svc.RegisterResource(r.Context(), rec)
	if err != nil {
		writeAnyError(w, err, h.logger)
		return
	}

	status := http.StatusCreated
	if result.Updated {
		status = http.StatusOK
	}
	WriteJSON(w, status, Envelope{
		Success:   true,
		Data:      result,
		Timestamp: time.Now(),
	})
}

// HandleQuery runs capability discovery and returns ranked candidates.
// POST /v1/discovery/query
func (h *GatewayHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.svc.Discover(r.Context(), req.Requirements, req.Limit)
	if err != nil {
		writeAnyError(w, err, h.logger)
		return
	}

	resp := QueryResponse{
		Candidates: make([]types.CandidateSummary, 0, len(result.Candidates)),
		Advisory:   result.Advisory,
	}
	for _, c := range result.Candidates {
		resp.Candidates = append(resp.Candidates, c.Summary())
	}
	WriteSuccess(w, resp)
}

// HandleGetResource returns a single resource record by id.
// GET /v1/resources/{id}
func (h *GatewayHandler) HandleGetResource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "resource id is required"), h.logger)
		return
	}

	rec, err := h.svc.GetResource(r.Context(), id)
	if err != nil {
		writeAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, rec)
}

// HandleListResources lists all resource records, active and inactive.
// GET /v1/resources
func (h *GatewayHandler) HandleListResources(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.svc.ListResources(r.Context()))
}

// HandleActivate makes a resource visible to capability discovery.
// POST /v1/resources/{id}/activate
func (h *GatewayHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

// HandleDeactivate hides a resource from capability discovery. The record
// stays registered and queryable by id.
// POST /v1/resources/{id}/deactivate
func (h *GatewayHandler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *GatewayHandler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "resource id is required"), h.logger)
		return
	}

	var err error
	if active {
		err = h.svc.ActivateResource(r.Context(), id)
	} else {
		err = h.svc.DeactivateResource(r.Context(), id)
	}
	if err != nil {
		writeAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"id": id, "active": active})
}

// HandleRemove deletes a resource record.
// DELETE /v1/resources/{id}
func (h *GatewayHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "resource id is required"), h.logger)
		return
	}

	if err := h.svc.RemoveResource(r.Context(), id); err != nil {
		writeAnyError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]any{"id": id, "removed": true})
}

// HandleReportOutcome feeds a delegation outcome into the QoS tracker.
// Remote principals use this to report results for candidates they invoked
// directly.
// POST /v1/resources/{id}/outcome
func (h *GatewayHandler) HandleReportOutcome(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "resource id is required"), h.logger)
		return
	}

	var req OutcomeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.LatencyMS < 0 {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "latency_ms must be non-negative"), h.logger)
		return
	}

	h.svc.ReportOutcome(r.Context(), id, req.Success, time.Duration(req.LatencyMS)*time.Millisecond)
	WriteSuccess(w, map[string]any{"id": id, "recorded": true})
}

// HandleStats returns gateway aggregates.
// GET /v1/gateway/stats
func (h *GatewayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.svc.GetStats())
}
