// Package domain contains the business logic for agent registration.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentbook/agentbook/internal/storage"
	"github.com/agentbook/agentbook/internal/validation"
)

// Common errors returned by the agent service.
var (
	ErrNotFound      = errors.New("agent not found")
	ErrNameTaken     = errors.New("agent name already registered")
	ErrInvalidName   = errors.New("invalid agent name")
	ErrInvalidWallet = errors.New("invalid wallet address")
)

// AgentStore defines the storage operations needed by the agents domain.
type AgentStore interface {
	CreateAgent(ctx context.Context, agent *storage.Agent) error
	GetAgent(ctx context.Context, id string) (*storage.Agent, error)
	GetAgentByName(ctx context.Context, name string) (*storage.Agent, error)
	ListAgents(ctx context.Context, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Agent], error)
}

// KeyIssuer mints API keys for newly registered agents.
type KeyIssuer interface {
	CreateAPIKey(ctx context.Context, name string) (*storage.APIKey, string, error)
}

// Service defines the agent service interface.
type Service interface {
	// Register registers a new agent and issues its API key.
	Register(ctx context.Context, req RegisterRequest) (*Registration, error)

	// Get retrieves an agent by ID.
	Get(ctx context.Context, id string) (*Agent, error)

	// GetByName retrieves an agent by its unique name.
	GetByName(ctx context.Context, name string) (*Agent, error)

	// List lists agents with pagination.
	List(ctx context.Context, pagination PaginationParams) (*ListResult, error)
}

type service struct {
	store AgentStore
	keys  KeyIssuer
}

// NewService creates a new agent service.
func NewService(store AgentStore, keys KeyIssuer) Service {
	return &service{store: store, keys: keys}
}

// Register registers a new agent and issues its API key.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*Registration, error) {
	if err := validation.ValidateAgentName(req.Name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	if err := validation.ValidateAddress(req.WalletAddress); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	_, err := s.store.GetAgentByName(ctx, req.Name)
	if err == nil {
		return nil, ErrNameTaken
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("checking name: %w", err)
	}

	keyRecord, plaintext, err := s.keys.CreateAPIKey(ctx, "agent:"+req.Name)
	if err != nil {
		return nil, fmt.Errorf("issuing api key: %w", err)
	}

	agent := &storage.Agent{
		Name:          req.Name,
		Description:   req.Description,
		WalletAddress: req.WalletAddress,
		APIKeyID:      keyRecord.ID,
	}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	return &Registration{
		Agent:  *toAgent(agent),
		APIKey: plaintext,
	}, nil
}

// Get retrieves an agent by ID.
func (s *service) Get(ctx context.Context, id string) (*Agent, error) {
	agent, err := s.store.GetAgent(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting agent: %w", err)
	}
	return toAgent(agent), nil
}

// GetByName retrieves an agent by its unique name.
func (s *service) GetByName(ctx context.Context, name string) (*Agent, error) {
	agent, err := s.store.GetAgentByName(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting agent: %w", err)
	}
	return toAgent(agent), nil
}

// List lists agents with pagination.
func (s *service) List(ctx context.Context, pagination PaginationParams) (*ListResult, error) {
	result, err := s.store.ListAgents(ctx, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}

	agents := make([]Agent, len(result.Data))
	for i, a := range result.Data {
		agents[i] = *toAgent(&a)
	}

	return &ListResult{
		Agents:     agents,
		HasMore:    result.HasMore,
		NextCursor: result.NextCursor,
		PrevCursor: result.PrevCursor,
	}, nil
}

func toAgent(a *storage.Agent) *Agent {
	var createdAt time.Time
	if a.CreatedAt != "" {
		createdAt, _ = time.Parse("2006-01-02 15:04:05", a.CreatedAt)
	}
	return &Agent{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		WalletAddress: a.WalletAddress,
		CreatedAt:     createdAt,
	}
}
