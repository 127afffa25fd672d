// Package worker runs the background verification pipeline: it picks up
// pending deployments, verifies them against their claimed source, submits
// verified sources to the block explorer, and runs the safety audit pass.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/agentbook/agentbook/internal/config"
	"github.com/agentbook/agentbook/internal/observability/metrics"
	"github.com/agentbook/agentbook/internal/storage"
	"github.com/agentbook/agentbook/internal/verification/audit"
	"github.com/agentbook/agentbook/internal/verification/engine"
	"github.com/agentbook/agentbook/internal/verification/explorer"
)

// ErrCycleInProgress is returned when a cycle is requested while the
// previous one is still running. Cycles never overlap; a slow batch means
// the next tick is skipped, not queued.
var ErrCycleInProgress = errors.New("verification cycle already in progress")

// Verifier runs one verification attempt.
type Verifier interface {
	Verify(ctx context.Context, req engine.Request) engine.Result
}

// ExplorerSubmitter submits a verified source to the public explorer.
type ExplorerSubmitter interface {
	Enabled() bool
	Verify(ctx context.Context, req explorer.Request) (*explorer.Result, error)
}

// SafetyAuditor audits freshly verified deployments.
type SafetyAuditor interface {
	Run(ctx context.Context, deploymentIDs []string) audit.Stats
}

// CycleStats summarizes one scheduler cycle.
type CycleStats struct {
	Processed int
	Verified  int
	Failed    int
	Retried   int
	Flagged   int
}

// Scheduler drives the verification pipeline on a fixed interval.
type Scheduler struct {
	deployments storage.DeploymentStore
	sources     storage.SourceStore
	verifier    Verifier
	explorer    ExplorerSubmitter
	auditor     SafetyAuditor
	logger      *slog.Logger

	interval       time.Duration
	batchSize      int
	maxRetries     int
	attemptTimeout time.Duration

	// explorer submission parameters, mirroring the compile settings
	compilerVersion string
	optimizerRuns   int

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

func NewScheduler(
	cfg config.WorkerConfig,
	deployments storage.DeploymentStore,
	sources storage.SourceStore,
	verifier Verifier,
	submitter ExplorerSubmitter,
	auditor SafetyAuditor,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		deployments:     deployments,
		sources:         sources,
		verifier:        verifier,
		explorer:        submitter,
		auditor:         auditor,
		logger:          logger,
		interval:        time.Duration(cfg.IntervalSeconds) * time.Second,
		batchSize:       cfg.BatchSize,
		maxRetries:      cfg.MaxRetries,
		attemptTimeout:  time.Duration(cfg.AttemptTimeout) * time.Second,
		compilerVersion: cfg.SolcVersion,
		optimizerRuns:   cfg.OptimizerRuns,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start launches the scheduler loop. The first cycle runs after one full
// interval, not immediately; deployments recorded during startup get their
// transaction a minute to settle before the first existence check.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("verification worker started", "interval", s.interval, "batch_size", s.batchSize)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
					s.logger.Error("verification cycle failed", "error", err)
				}
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// RunCycle processes one batch of pending deployments sequentially. Only
// one cycle runs at a time; concurrent calls get ErrCycleInProgress. The
// guard is released on every exit path, including panics.
func (s *Scheduler) RunCycle(ctx context.Context) (CycleStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		return CycleStats{}, ErrCycleInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	var stats CycleStats

	pending, err := s.deployments.ListPendingVerifications(ctx, s.batchSize)
	if err != nil {
		return stats, fmt.Errorf("listing pending verifications: %w", err)
	}
	if len(pending) == 0 {
		return stats, nil
	}

	var verifiedIDs []string
	for _, dep := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		outcome := s.processOne(ctx, dep.ID)
		stats.Processed++
		metrics.VerificationAttempt(dep.ChainKey, string(outcome))
		switch outcome {
		case outcomeVerified:
			stats.Verified++
			verifiedIDs = append(verifiedIDs, dep.ID)
		case outcomeFailed:
			stats.Failed++
		case outcomeRetried:
			stats.Retried++
		}
	}

	auditStats := s.auditor.Run(ctx, verifiedIDs)
	stats.Flagged = auditStats.Flagged

	metrics.WorkerCycle(time.Since(start), len(pending))
	s.logger.Info("verification cycle completed",
		"duration", time.Since(start),
		"processed", stats.Processed,
		"verified", stats.Verified,
		"failed", stats.Failed,
		"retried", stats.Retried,
		"flagged", stats.Flagged)
	return stats, nil
}

type outcome string

const (
	outcomeVerified outcome = "verified"
	outcomeFailed   outcome = "failed"
	outcomeRetried  outcome = "retried"
	outcomeSkipped  outcome = "skipped"
)

// processOne verifies a single deployment. A panic in any step is
// contained here so one poisoned deployment cannot take down the batch.
func (s *Scheduler) processOne(ctx context.Context, id string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during verification", "deployment_id", id, "panic", r)
			out = outcomeRetried
			s.recordTransient(ctx, id, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// re-read under the current state; the batch snapshot may be stale
	dep, err := s.deployments.GetDeployment(ctx, id)
	if err != nil {
		s.logger.Error("loading deployment", "deployment_id", id, "error", err)
		return outcomeSkipped
	}
	if dep.VerificationStatus == storage.StatusVerified {
		return outcomeSkipped
	}
	if dep.VerificationStatus == storage.StatusFailed && dep.VerificationRetryCount >= s.maxRetries {
		return outcomeSkipped
	}

	if dep.SourceURL == "" {
		s.markFailed(ctx, id, engine.Failure{Kind: engine.FailNoSource}.String())
		return outcomeFailed
	}

	source, err := s.sources.GetSource(ctx, dep.ChainKey, dep.ContractAddress)
	if errors.Is(err, storage.ErrNotFound) {
		s.markFailed(ctx, id, engine.Failure{Kind: engine.FailSourceNotFound}.String())
		return outcomeFailed
	}
	if err != nil {
		s.recordTransient(ctx, id, fmt.Sprintf("loading source: %v", err))
		return outcomeRetried
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	res := s.verifier.Verify(attemptCtx, engine.Request{
		ContractAddress: dep.ContractAddress,
		ChainKey:        dep.ChainKey,
		SourceCode:      source,
		ContractName:    dep.ContractName,
	})

	if res.Success {
		s.markVerified(ctx, dep, res)
		s.submitToExplorer(ctx, dep, source)
		return outcomeVerified
	}

	// RPC failures are transient: the node may be lagging or the
	// transaction not yet indexed. Everything else is deterministic and
	// retrying it would only produce the same answer.
	if res.HasFailure(engine.FailRPC) {
		s.recordTransient(ctx, id, res.FailureMessage())
		return outcomeRetried
	}

	s.markFailed(ctx, id, res.FailureMessage())
	return outcomeFailed
}

func (s *Scheduler) markVerified(ctx context.Context, dep *storage.Deployment, res engine.Result) {
	verified := storage.StatusVerified
	clearErr := ""
	hash := engine.HashBytecode(res.Details.OnChainBytecode)
	err := s.deployments.UpdateVerification(ctx, dep.ID, storage.VerificationUpdate{
		Status:          &verified,
		Error:           &clearErr,
		BytecodeHash:    &hash,
		StampVerifiedAt: true,
	})
	if err != nil {
		s.logger.Error("persisting verified status", "deployment_id", dep.ID, "error", err)
		return
	}
	s.logger.Info("deployment verified",
		"deployment_id", dep.ID,
		"contract", dep.ContractName,
		"chain", dep.ChainKey,
		"address", dep.ContractAddress)
}

// markFailed records a terminal failure. The retry count is untouched:
// deterministic failures would fail the same way every time, so they do
// not consume retries.
func (s *Scheduler) markFailed(ctx context.Context, id, message string) {
	failed := storage.StatusFailed
	if err := s.deployments.UpdateVerification(ctx, id, storage.VerificationUpdate{
		Status: &failed,
		Error:  &message,
	}); err != nil {
		s.logger.Error("persisting failed status", "deployment_id", id, "error", err)
		return
	}
	s.logger.Warn("verification failed", "deployment_id", id, "error", message)
}

// recordTransient increments the retry count and stores the error. Below
// the ceiling the deployment stays pending and is retried next cycle; at
// the ceiling it becomes a terminal failure.
func (s *Scheduler) recordTransient(ctx context.Context, id, message string) {
	dep, err := s.deployments.GetDeployment(ctx, id)
	if err != nil {
		s.logger.Error("loading deployment for retry bookkeeping", "deployment_id", id, "error", err)
		return
	}

	retries := dep.VerificationRetryCount + 1
	update := storage.VerificationUpdate{
		RetryCount: &retries,
		Error:      &message,
	}
	if retries >= s.maxRetries {
		failed := storage.StatusFailed
		update.Status = &failed
	}

	if err := s.deployments.UpdateVerification(ctx, id, update); err != nil {
		s.logger.Error("persisting retry state", "deployment_id", id, "error", err)
		return
	}
	s.logger.Warn("verification attempt failed, will retry",
		"deployment_id", id,
		"retry", retries,
		"max_retries", s.maxRetries,
		"error", message)
}

// submitToExplorer is best-effort: explorer verification is a public
// nicety, and its failure never affects the deployment's verified status.
func (s *Scheduler) submitToExplorer(ctx context.Context, dep *storage.Deployment, source string) {
	if s.explorer == nil || !s.explorer.Enabled() {
		return
	}

	res, err := s.explorer.Verify(ctx, explorer.Request{
		ContractAddress: dep.ContractAddress,
		ChainKey:        dep.ChainKey,
		SourceCode:      source,
		ContractName:    dep.ContractName,
		CompilerVersion: s.compilerVersion,
		OptimizerRuns:   s.optimizerRuns,
	})
	if err != nil {
		metrics.ExplorerSubmit(dep.ChainKey, "error")
		s.logger.Warn("explorer submission failed", "deployment_id", dep.ID, "error", err)
		return
	}
	if res.Success {
		metrics.ExplorerSubmit(dep.ChainKey, "verified")
		s.logger.Info("explorer verification succeeded", "deployment_id", dep.ID, "url", res.ExplorerURL)
	} else if res.TimedOut {
		metrics.ExplorerSubmit(dep.ChainKey, "timeout")
		s.logger.Warn("explorer verification timed out", "deployment_id", dep.ID, "url", res.ExplorerURL)
	} else {
		metrics.ExplorerSubmit(dep.ChainKey, "rejected")
		s.logger.Warn("explorer verification rejected", "deployment_id", dep.ID, "message", res.Message)
	}
}
