// Package domain contains the business logic for deployment records.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentbook/agentbook/internal/chains"
	"github.com/agentbook/agentbook/internal/storage"
	"github.com/agentbook/agentbook/internal/validation"
)

// Common errors returned by the deployment service.
var (
	ErrNotFound            = errors.New("deployment not found")
	ErrExists              = errors.New("contract already recorded at this address on this chain")
	ErrAgentNotFound       = errors.New("no agent bound to this API key")
	ErrInvalidAddress      = errors.New("invalid contract address")
	ErrInvalidChainKey     = errors.New("unsupported chain")
	ErrInvalidContractName = errors.New("invalid contract name")
	ErrInvalidTxHash       = errors.New("invalid transaction hash")
	ErrMissingABI          = errors.New("abi is required")
	ErrNoABI               = errors.New("deployment has no recorded ABI")
	ErrNoSource            = errors.New("deployment has no recorded source")
)

// DeploymentStore defines the record operations needed by this domain.
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, d *storage.Deployment) error
	GetDeployment(ctx context.Context, id string) (*storage.Deployment, error)
	GetDeploymentByAddress(ctx context.Context, chainKey, address string) (*storage.Deployment, error)
	ListDeployments(ctx context.Context, filter storage.DeploymentFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deployment], error)
}

// AgentResolver maps an API key to the agent that owns it.
type AgentResolver interface {
	GetAgentByAPIKeyID(ctx context.Context, apiKeyID string) (*storage.Agent, error)
}

// Service defines the deployment service interface.
type Service interface {
	// Record records a new deployment for the agent behind apiKeyID and
	// stores its source and ABI blobs. The record enters the
	// verification queue as pending.
	Record(ctx context.Context, apiKeyID string, req RecordRequest) (*Deployment, error)

	// Get retrieves a deployment by ID.
	Get(ctx context.Context, id string) (*Deployment, error)

	// GetByAddress retrieves a deployment by chain and contract address.
	GetByAddress(ctx context.Context, chainKey, address string) (*Deployment, error)

	// List lists deployments with filtering and pagination.
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)

	// GetABI returns the recorded ABI blob for a deployment.
	GetABI(ctx context.Context, id string) ([]byte, error)

	// GetSource returns the recorded source code for a deployment.
	GetSource(ctx context.Context, id string) (string, error)
}

type service struct {
	store   DeploymentStore
	agents  AgentResolver
	sources storage.SourceStore
}

// NewService creates a new deployment service.
func NewService(store DeploymentStore, agents AgentResolver, sources storage.SourceStore) Service {
	return &service{store: store, agents: agents, sources: sources}
}

// Record records a new deployment.
func (s *service) Record(ctx context.Context, apiKeyID string, req RecordRequest) (*Deployment, error) {
	if err := validation.ValidateContractName(req.ContractName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidContractName, err)
	}
	if err := validation.ValidateAddress(req.ContractAddress); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if err := validation.ValidateChainKey(req.ChainKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChainKey, err)
	}
	if err := validation.ValidateTxHash(req.TxHash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTxHash, err)
	}
	if strings.TrimSpace(req.ABI) == "" {
		return nil, ErrMissingABI
	}

	address := strings.ToLower(req.ContractAddress)

	agent, err := s.agents.GetAgentByAPIKeyID(ctx, apiKeyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("resolving agent: %w", err)
	}

	if _, err := s.store.GetDeploymentByAddress(ctx, req.ChainKey, address); err == nil {
		return nil, ErrExists
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking duplicate: %w", err)
	}

	abiURL, err := s.sources.PutABI(ctx, req.ChainKey, address, []byte(req.ABI))
	if err != nil {
		return nil, fmt.Errorf("storing abi: %w", err)
	}

	var sourceURL string
	if req.SourceCode != "" {
		sourceURL, err = s.sources.PutSource(ctx, req.ChainKey, address, req.SourceCode)
		if err != nil {
			return nil, fmt.Errorf("storing source: %w", err)
		}
	}

	deployment := &storage.Deployment{
		AgentID:         agent.ID,
		ContractName:    req.ContractName,
		ContractAddress: address,
		ChainKey:        req.ChainKey,
		TxHash:          req.TxHash,
		SourceURL:       sourceURL,
		ABIURL:          abiURL,
	}
	if err := s.store.CreateDeployment(ctx, deployment); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, ErrExists
		}
		return nil, fmt.Errorf("recording deployment: %w", err)
	}

	return toDeployment(deployment), nil
}

// Get retrieves a deployment by ID.
func (s *service) Get(ctx context.Context, id string) (*Deployment, error) {
	deployment, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return toDeployment(deployment), nil
}

// GetByAddress retrieves a deployment by chain and contract address.
func (s *service) GetByAddress(ctx context.Context, chainKey, address string) (*Deployment, error) {
	deployment, err := s.store.GetDeploymentByAddress(ctx, chainKey, strings.ToLower(address))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	return toDeployment(deployment), nil
}

// List lists deployments with filtering and pagination.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := s.store.ListDeployments(ctx, storage.DeploymentFilter{
		Status:   storage.VerificationStatus(filter.Status),
		ChainKey: filter.ChainKey,
		AgentID:  filter.AgentID,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing deployments: %w", err)
	}

	deployments := make([]Deployment, len(result.Data))
	for i, d := range result.Data {
		deployments[i] = *toDeployment(&d)
	}

	return &ListResult{
		Deployments: deployments,
		HasMore:     result.HasMore,
		NextCursor:  result.NextCursor,
		PrevCursor:  result.PrevCursor,
	}, nil
}

// GetABI returns the recorded ABI blob for a deployment.
func (s *service) GetABI(ctx context.Context, id string) ([]byte, error) {
	deployment, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting deployment: %w", err)
	}
	if deployment.ABIURL == "" {
		return nil, ErrNoABI
	}

	abi, err := s.sources.GetABI(ctx, deployment.ChainKey, deployment.ContractAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoABI
		}
		return nil, fmt.Errorf("loading abi: %w", err)
	}
	return abi, nil
}

// GetSource returns the recorded source code for a deployment.
func (s *service) GetSource(ctx context.Context, id string) (string, error) {
	deployment, err := s.store.GetDeployment(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("getting deployment: %w", err)
	}
	if deployment.SourceURL == "" {
		return "", ErrNoSource
	}

	source, err := s.sources.GetSource(ctx, deployment.ChainKey, deployment.ContractAddress)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNoSource
		}
		return "", fmt.Errorf("loading source: %w", err)
	}
	return source, nil
}

func toDeployment(d *storage.Deployment) *Deployment {
	explorerURL, _ := chains.ExplorerAddressURL(d.ChainKey, d.ContractAddress)
	return &Deployment{
		ID:                 d.ID,
		AgentID:            d.AgentID,
		ContractName:       d.ContractName,
		ContractAddress:    d.ContractAddress,
		ChainKey:           d.ChainKey,
		TxHash:             d.TxHash,
		HasSource:          d.SourceURL != "",
		HasABI:             d.ABIURL != "",
		VerificationStatus: d.VerificationStatus,
		VerificationError:  d.VerificationError,
		BytecodeHash:       d.ContractBytecodeHash,
		ExplorerURL:        explorerURL,
		VerifiedAt:         parseDBTime(d.VerifiedAt),
		CreatedAt:          parseDBTime(d.CreatedAt),
	}
}

// parseDBTime handles both the SQLite datetime format and the text form
// Postgres produces for timestamptz columns.
func parseDBTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.999999-07", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
