// Package metrics provides Prometheus instrumentation for agentbook.
package metrics

import "time"

// AgentRegister records an agent registration.
func AgentRegister(status string) {
	if !enabled {
		return
	}
	agentRegisterTotal.WithLabelValues(status).Inc()
}

// DeploymentRecord records a deployment record operation.
func DeploymentRecord(chain, status string) {
	if !enabled {
		return
	}
	deploymentRecordTotal.WithLabelValues(chain, status).Inc()
}

// VerificationAttempt records one verification attempt outcome, e.g.
// "verified", "failed", "retried".
func VerificationAttempt(chain, outcome string) {
	if !enabled {
		return
	}
	verificationAttemptTotal.WithLabelValues(chain, outcome).Inc()
}

// ExplorerSubmit records an explorer submission outcome.
func ExplorerSubmit(chain, outcome string) {
	if !enabled {
		return
	}
	explorerSubmitTotal.WithLabelValues(chain, outcome).Inc()
}

// AuditVerdict records a safety audit verdict ("safe" or "flagged").
func AuditVerdict(verdict string) {
	if !enabled {
		return
	}
	auditTotal.WithLabelValues(verdict).Inc()
}

// WorkerCycle records the duration and batch size of one worker cycle.
func WorkerCycle(duration time.Duration, batch int) {
	if !enabled {
		return
	}
	workerCycleDuration.Observe(duration.Seconds())
	workerBatchSize.Observe(float64(batch))
}
