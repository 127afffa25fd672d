// Package transport provides HTTP request/response types for the deployments domain.
package transport

import (
	"time"

	"github.com/agentbook/agentbook/internal/deployments/domain"
)

// RecordRequest is the HTTP request body for recording a deployment.
type RecordRequest struct {
	ContractName    string `json:"contractName"`
	ContractAddress string `json:"contractAddress"`
	ChainKey        string `json:"chainKey"`
	TxHash          string `json:"txHash"`
	SourceCode      string `json:"sourceCode,omitempty"`
	ABI             string `json:"abi"`
}

// ToDomain converts RecordRequest to domain.RecordRequest.
func (r RecordRequest) ToDomain() domain.RecordRequest {
	return domain.RecordRequest{
		ContractName:    r.ContractName,
		ContractAddress: r.ContractAddress,
		ChainKey:        r.ChainKey,
		TxHash:          r.TxHash,
		SourceCode:      r.SourceCode,
		ABI:             r.ABI,
	}
}

// DeploymentResponse is the response for a single deployment record.
type DeploymentResponse struct {
	ID                 string `json:"id"`
	AgentID            string `json:"agentId"`
	ContractName       string `json:"contractName"`
	ContractAddress    string `json:"contractAddress"`
	ChainKey           string `json:"chainKey"`
	TxHash             string `json:"txHash"`
	HasSource          bool   `json:"hasSource"`
	HasABI             bool   `json:"hasAbi"`
	VerificationStatus string `json:"verificationStatus"`
	VerificationError  string `json:"verificationError,omitempty"`
	BytecodeHash       string `json:"bytecodeHash,omitempty"`
	ExplorerURL        string `json:"explorerUrl,omitempty"`
	VerifiedAt         string `json:"verifiedAt,omitempty"`
	CreatedAt          string `json:"createdAt"`
}

func toDeploymentResponse(d *domain.Deployment) DeploymentResponse {
	return DeploymentResponse{
		ID:                 d.ID,
		AgentID:            d.AgentID,
		ContractName:       d.ContractName,
		ContractAddress:    d.ContractAddress,
		ChainKey:           d.ChainKey,
		TxHash:             d.TxHash,
		HasSource:          d.HasSource,
		HasABI:             d.HasABI,
		VerificationStatus: string(d.VerificationStatus),
		VerificationError:  d.VerificationError,
		BytecodeHash:       d.BytecodeHash,
		ExplorerURL:        d.ExplorerURL,
		VerifiedAt:         formatTime(d.VerifiedAt),
		CreatedAt:          formatTime(d.CreatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data       []DeploymentResponse `json:"data"`
	Pagination Pagination           `json:"pagination"`
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
