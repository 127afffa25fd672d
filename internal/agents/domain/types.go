// Package domain contains the business logic for agent registration.
package domain

import "time"

// Agent represents a registered autonomous agent.
type Agent struct {
	ID            string
	Name          string
	Description   string
	WalletAddress string
	CreatedAt     time.Time
}

// RegisterRequest is the request to register a new agent.
type RegisterRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	WalletAddress string `json:"walletAddress"`
}

// Registration is the outcome of a successful registration. APIKey is the
// plaintext credential, returned exactly once.
type Registration struct {
	Agent  Agent
	APIKey string
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Agents     []Agent
	HasMore    bool
	NextCursor string
	PrevCursor string
}
