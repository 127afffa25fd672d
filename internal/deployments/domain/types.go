// Package domain contains the business logic for deployment records.
package domain

import (
	"time"

	"github.com/agentbook/agentbook/internal/storage"
)

// Deployment represents a recorded contract deployment with its
// verification state.
type Deployment struct {
	ID                 string
	AgentID            string
	ContractName       string
	ContractAddress    string
	ChainKey           string
	TxHash             string
	HasSource          bool
	HasABI             bool
	VerificationStatus storage.VerificationStatus
	VerificationError  string
	BytecodeHash       string
	ExplorerURL        string
	VerifiedAt         time.Time
	CreatedAt          time.Time
}

// RecordRequest is the request to record a new deployment.
type RecordRequest struct {
	ContractName    string `json:"contractName"`
	ContractAddress string `json:"contractAddress"`
	ChainKey        string `json:"chainKey"`
	TxHash          string `json:"txHash"`
	SourceCode      string `json:"sourceCode,omitempty"`
	ABI             string `json:"abi"`
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	Status   string
	ChainKey string
	AgentID  string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Deployment
	HasMore     bool
	NextCursor  string
	PrevCursor  string
}
