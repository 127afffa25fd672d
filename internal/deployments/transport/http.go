// Package transport provides HTTP handlers for the deployments domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentbook/agentbook/internal/auth"
	"github.com/agentbook/agentbook/internal/deployments/domain"
	"github.com/agentbook/agentbook/internal/observability/metrics"
)

// Service defines the deployment service interface for HTTP transport.
type Service interface {
	Record(ctx context.Context, apiKeyID string, req domain.RecordRequest) (*domain.Deployment, error)
	Get(ctx context.Context, id string) (*domain.Deployment, error)
	GetByAddress(ctx context.Context, chainKey, address string) (*domain.Deployment, error)
	List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
	GetABI(ctx context.Context, id string) ([]byte, error)
	GetSource(ctx context.Context, id string) (string, error)
}

// Handler handles HTTP requests for deployments.
type Handler struct {
	svc Service
}

// NewHandler creates a new deployments HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers read-only deployment routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/abi", h.handleGetABI)
	r.Get("/{id}/source", h.handleGetSource)
	r.Get("/{chainKey}/{address}", h.handleGetByAddress)
}

// RegisterWriteRoutes registers authenticated deployment routes.
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/", h.handleRecord)
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request) {
	apiKeyID := auth.GetAPIKeyIDFromContext(r.Context())
	if apiKeyID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key required")
		return
	}

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	deployment, err := h.svc.Record(r.Context(), apiKeyID, req.ToDomain())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidContractName),
			errors.Is(err, domain.ErrInvalidAddress),
			errors.Is(err, domain.ErrInvalidChainKey),
			errors.Is(err, domain.ErrInvalidTxHash),
			errors.Is(err, domain.ErrMissingABI):
			metrics.DeploymentRecord(req.ChainKey, "invalid")
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, domain.ErrExists):
			metrics.DeploymentRecord(req.ChainKey, "conflict")
			writeError(w, http.StatusConflict, "CONFLICT", "Contract already recorded at this address on this chain")
		case errors.Is(err, domain.ErrAgentNotFound):
			metrics.DeploymentRecord(req.ChainKey, "unauthorized")
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is not bound to a registered agent")
		default:
			metrics.DeploymentRecord(req.ChainKey, "error")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record deployment")
		}
		return
	}

	metrics.DeploymentRecord(deployment.ChainKey, "created")
	writeJSON(w, http.StatusCreated, toDeploymentResponse(deployment))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	deployment, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get deployment")
		return
	}

	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handler) handleGetByAddress(w http.ResponseWriter, r *http.Request) {
	chainKey := chi.URLParam(r, "chainKey")
	address := chi.URLParam(r, "address")

	deployment, err := h.svc.GetByAddress(r.Context(), chainKey, address)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get deployment")
		return
	}

	writeJSON(w, http.StatusOK, toDeploymentResponse(deployment))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.svc.List(r.Context(), domain.ListFilter{
		Status:   q.Get("status"),
		ChainKey: q.Get("chain"),
		AgentID:  q.Get("agent"),
	}, domain.PaginationParams{
		Limit:  limit,
		Cursor: q.Get("cursor"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list deployments")
		return
	}

	data := make([]DeploymentResponse, len(result.Deployments))
	for i, d := range result.Deployments {
		data[i] = toDeploymentResponse(&d)
	}

	writeJSON(w, http.StatusOK, DeploymentListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
}

func (h *Handler) handleGetABI(w http.ResponseWriter, r *http.Request) {
	abi, err := h.svc.GetABI(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
		case errors.Is(err, domain.ErrNoABI):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment has no recorded ABI")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get ABI")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(abi)
}

func (h *Handler) handleGetSource(w http.ResponseWriter, r *http.Request) {
	source, err := h.svc.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment not found")
		case errors.Is(err, domain.ErrNoSource):
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Deployment has no recorded source")
		default:
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get source")
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(source))
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}
