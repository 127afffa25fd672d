// Package transport provides HTTP handlers for the agents domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agentbook/agentbook/internal/agents/domain"
	"github.com/agentbook/agentbook/internal/observability/metrics"
)

// Service defines the agent service interface for HTTP transport.
type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.Registration, error)
	Get(ctx context.Context, id string) (*domain.Agent, error)
	GetByName(ctx context.Context, name string) (*domain.Agent, error)
	List(ctx context.Context, pagination domain.PaginationParams) (*domain.ListResult, error)
}

// Handler handles HTTP requests for agents.
type Handler struct {
	svc Service
}

// NewHandler creates a new agents HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterReadRoutes registers read-only agent routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
}

// RegisterWriteRoutes registers write agent routes. Registration is the
// one unauthenticated write: it is how an agent obtains its key.
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}

	reg, err := h.svc.Register(r.Context(), req.ToDomain())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidName), errors.Is(err, domain.ErrInvalidWallet):
			metrics.AgentRegister("invalid")
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, domain.ErrNameTaken):
			metrics.AgentRegister("conflict")
			writeError(w, http.StatusConflict, "CONFLICT", "Agent name already registered")
		default:
			metrics.AgentRegister("error")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register agent")
		}
		return
	}

	metrics.AgentRegister("created")
	writeJSON(w, http.StatusCreated, RegisterResponse{
		ID:            reg.Agent.ID,
		Name:          reg.Agent.Name,
		WalletAddress: reg.Agent.WalletAddress,
		APIKey:        reg.APIKey,
		Message:       "Agent registered successfully. Store the API key; it is not shown again.",
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	agent, err := h.svc.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		// fall back to name lookup so both forms of the URL work
		agent, err = h.svc.GetByName(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Agent not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get agent")
		return
	}

	writeJSON(w, http.StatusOK, toAgentResponse(agent))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	result, err := h.svc.List(r.Context(), domain.PaginationParams{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list agents")
		return
	}

	data := make([]AgentResponse, len(result.Agents))
	for i, a := range result.Agents {
		data[i] = toAgentResponse(&a)
	}

	writeJSON(w, http.StatusOK, AgentListResponse{
		Data: data,
		Pagination: Pagination{
			Limit:      limit,
			HasMore:    result.HasMore,
			NextCursor: result.NextCursor,
		},
	})
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
