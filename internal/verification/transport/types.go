// Package transport provides HTTP request/response types for verification checks.
package transport

import "github.com/agentbook/agentbook/internal/verification/domain"

// VerifyRequest is the HTTP request body for a verification check.
type VerifyRequest struct {
	DeploymentID    string `json:"deploymentId,omitempty"`
	ChainKey        string `json:"chainKey,omitempty"`
	ContractAddress string `json:"contractAddress,omitempty"`
	SourceCode      string `json:"sourceCode,omitempty"`
	ContractName    string `json:"contractName,omitempty"`
}

// ToDomain converts VerifyRequest to domain.VerifyRequest.
func (r VerifyRequest) ToDomain() domain.VerifyRequest {
	return domain.VerifyRequest{
		DeploymentID:    r.DeploymentID,
		ChainKey:        r.ChainKey,
		ContractAddress: r.ContractAddress,
		SourceCode:      r.SourceCode,
		ContractName:    r.ContractName,
	}
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
