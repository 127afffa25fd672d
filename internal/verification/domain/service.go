// Package domain contains the business logic for on-demand verification checks.
package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentbook/agentbook/internal/storage"
	"github.com/agentbook/agentbook/internal/validation"
	"github.com/agentbook/agentbook/internal/verification/engine"
)

// Common errors returned by the verification service.
var (
	ErrNotFound        = errors.New("deployment not found")
	ErrInvalidAddress  = errors.New("invalid contract address")
	ErrInvalidChainKey = errors.New("unsupported chain")
	ErrMissingTarget   = errors.New("deploymentId or chainKey and contractAddress required")
)

// DeploymentStore defines the record operations needed by this domain.
type DeploymentStore interface {
	GetDeployment(ctx context.Context, id string) (*storage.Deployment, error)
}

// Verifier runs the bytecode check against a chain.
type Verifier interface {
	Verify(ctx context.Context, req engine.Request) engine.Result
}

// Service defines the on-demand verification interface.
type Service interface {
	// Verify checks a contract without touching its recorded
	// verification state.
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

type service struct {
	store    DeploymentStore
	sources  storage.SourceStore
	verifier Verifier
}

// NewService creates a new on-demand verification service.
func NewService(store DeploymentStore, sources storage.SourceStore, verifier Verifier) Service {
	return &service{store: store, sources: sources, verifier: verifier}
}

// Verify runs a verification check for a recorded deployment or an ad hoc
// address and reports the evidence.
func (s *service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var engineReq engine.Request

	switch {
	case req.DeploymentID != "":
		deployment, err := s.store.GetDeployment(ctx, req.DeploymentID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("getting deployment: %w", err)
		}

		engineReq = engine.Request{
			ContractAddress: deployment.ContractAddress,
			ChainKey:        deployment.ChainKey,
			ContractName:    deployment.ContractName,
		}
		if deployment.SourceURL != "" {
			source, err := s.sources.GetSource(ctx, deployment.ChainKey, deployment.ContractAddress)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("loading source: %w", err)
			}
			engineReq.SourceCode = source
		}

	case req.ChainKey != "" && req.ContractAddress != "":
		if err := validation.ValidateAddress(req.ContractAddress); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		if err := validation.ValidateChainKey(req.ChainKey); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChainKey, err)
		}

		engineReq = engine.Request{
			ContractAddress: strings.ToLower(req.ContractAddress),
			ChainKey:        req.ChainKey,
			SourceCode:      req.SourceCode,
			ContractName:    req.ContractName,
		}

	default:
		return nil, ErrMissingTarget
	}

	result := s.verifier.Verify(ctx, engineReq)
	return toResult(engineReq, result), nil
}

func toResult(req engine.Request, r engine.Result) *VerifyResult {
	out := &VerifyResult{
		Success: r.Success,
		Level1:  r.Level1,
		Level3:  r.Level3,
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, f.String())
	}
	if r.Level1 {
		out.Details = &Details{
			OnChainHash:     r.Details.OnChainHash,
			CompiledHash:    r.Details.CompiledHash,
			OnChainLength:   hexByteLen(r.Details.OnChainBytecode),
			CompiledLength:  hexByteLen(r.Details.CompiledBytecode),
			ChainKey:        req.ChainKey,
			ContractAddress: req.ContractAddress,
		}
	}
	return out
}

func hexByteLen(bytecode string) int {
	return len(strings.TrimPrefix(bytecode, "0x")) / 2
}
