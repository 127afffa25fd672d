// Package transport provides HTTP request/response types for the agents domain.
package transport

import (
	"time"

	"github.com/agentbook/agentbook/internal/agents/domain"
)

// RegisterRequest is the HTTP request body for registering an agent.
type RegisterRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	WalletAddress string `json:"walletAddress"`
}

// ToDomain converts RegisterRequest to domain.RegisterRequest.
func (r RegisterRequest) ToDomain() domain.RegisterRequest {
	return domain.RegisterRequest{
		Name:          r.Name,
		Description:   r.Description,
		WalletAddress: r.WalletAddress,
	}
}

// RegisterResponse is the response for registering an agent.
type RegisterResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
	APIKey        string `json:"apiKey"`
	Message       string `json:"message"`
}

// AgentResponse is the response for getting an agent.
type AgentResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	WalletAddress string `json:"walletAddress"`
	CreatedAt     string `json:"createdAt"`
}

func toAgentResponse(a *domain.Agent) AgentResponse {
	createdAt := ""
	if !a.CreatedAt.IsZero() {
		createdAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return AgentResponse{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		WalletAddress: a.WalletAddress,
		CreatedAt:     createdAt,
	}
}

// AgentListResponse is the response for listing agents.
type AgentListResponse struct {
	Data       []AgentResponse `json:"data"`
	Pagination Pagination      `json:"pagination"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
