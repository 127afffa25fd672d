package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentbook/agentbook/internal/config"
)

// VerificationStatus is the lifecycle state of a deployment's verification.
// It only moves pending -> verified or pending -> failed; the safety audit
// is the one path that regresses verified -> failed.
type VerificationStatus string

const (
	StatusPending  VerificationStatus = "pending"
	StatusVerified VerificationStatus = "verified"
	StatusFailed   VerificationStatus = "failed"
)

// AgentStore handles agent operations
type AgentStore interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentByName(ctx context.Context, name string) (*Agent, error)
	GetAgentByAPIKeyID(ctx context.Context, apiKeyID string) (*Agent, error)
	ListAgents(ctx context.Context, pagination PaginationParams) (*PaginatedResult[Agent], error)
}

// DeploymentStore handles deployment operations
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, id string) (*Deployment, error)
	GetDeploymentByAddress(ctx context.Context, chainKey, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)

	// ListPendingVerifications returns up to limit deployments with
	// status pending and a recorded source URL, oldest first.
	ListPendingVerifications(ctx context.Context, limit int) ([]Deployment, error)

	// UpdateVerification applies a partial update to a deployment's
	// verification fields.
	UpdateVerification(ctx context.Context, id string, update VerificationUpdate) error
}

// APIKeyStore handles API key operations
type APIKeyStore interface {
	// CreateAPIKey mints a key and returns its record plus the plaintext,
	// which is shown once and never stored.
	CreateAPIKey(ctx context.Context, name string) (*APIKey, string, error)
	ValidateAPIKey(ctx context.Context, key string) (*APIKey, error)
	ListAPIKeys(ctx context.Context) ([]APIKey, error)
	RevokeAPIKey(ctx context.Context, id string) error
}

// Store combines all storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	AgentStore
	DeploymentStore
	APIKeyStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Agent represents a registered autonomous agent
type Agent struct {
	ID            string
	Name          string
	Description   string
	WalletAddress string
	APIKeyID      string
	CreatedAt     string
}

// Deployment represents a recorded contract deployment. The verification
// fields are owned by the verification worker and the safety audit.
type Deployment struct {
	ID                     string
	AgentID                string
	ContractName           string
	ContractAddress        string
	ChainKey               string
	TxHash                 string
	SourceURL              string
	ABIURL                 string
	VerificationStatus     VerificationStatus
	VerificationRetryCount int
	VerificationError      string
	ContractBytecodeHash   string
	VerifiedAt             string
	CreatedAt              string
}

// VerificationUpdate is a partial update of a deployment's verification
// fields. Nil pointers leave the column untouched.
type VerificationUpdate struct {
	Status     *VerificationStatus
	RetryCount *int

	// Error sets verification_error; the empty string clears it (NULL).
	Error *string

	BytecodeHash *string

	// StampVerifiedAt sets verified_at to now, only if it has never been
	// set. A later audit failure does not erase it.
	StampVerifiedAt bool
}

// APIKey represents an API key
type APIKey struct {
	ID         string
	Name       string
	KeyHash    string
	CreatedAt  string
	LastUsedAt string
	RevokedAt  string
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	Status   VerificationStatus
	ChainKey string
	AgentID  string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
	PrevCursor string
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
