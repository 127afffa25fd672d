package audit

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbook/agentbook/internal/config"
	"github.com/agentbook/agentbook/internal/storage"
)

type stubClassifier struct {
	verdict *Verdict
	err     error
	calls   int
}

func (s *stubClassifier) Classify(ctx context.Context, sourceCode string) (*Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

func newAuditFixture(t *testing.T) (*storage.SQLiteStore, *storage.FileSourceStore, *storage.Deployment) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	sources, err := storage.NewFileSourceStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	agent := &storage.Agent{Name: "auditee", WalletAddress: "0x1111111111111111111111111111111111111111"}
	require.NoError(t, store.CreateAgent(ctx, agent))

	addr := "0x2222222222222222222222222222222222222222"
	sourceURL, err := sources.PutSource(ctx, "bsc-testnet", addr, "contract Vault { function withdraw() public {} }")
	require.NoError(t, err)

	dep := &storage.Deployment{
		AgentID:         agent.ID,
		ContractName:    "Vault",
		ContractAddress: addr,
		ChainKey:        "bsc-testnet",
		TxHash:          "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000",
		SourceURL:       sourceURL,
	}
	require.NoError(t, store.CreateDeployment(ctx, dep))

	verified := storage.StatusVerified
	require.NoError(t, store.UpdateVerification(ctx, dep.ID, storage.VerificationUpdate{
		Status:          &verified,
		StampVerifiedAt: true,
	}))

	return store, sources, dep
}

func newAuditor(store storage.DeploymentStore, sources storage.SourceStore, classifier Classifier) *Auditor {
	a := NewAuditor(config.AuditConfig{APIKey: "test-key", Model: "test-model"}, store, sources, slog.New(slog.DiscardHandler))
	a.classifier = classifier
	return a
}

func TestRunFlagsUnsafeDeployment(t *testing.T) {
	store, sources, dep := newAuditFixture(t)
	ctx := context.Background()

	classifier := &stubClassifier{verdict: &Verdict{Safe: false, Reason: "hidden owner-only drain function"}}
	auditor := newAuditor(store, sources, classifier)

	stats := auditor.Run(ctx, []string{dep.ID})
	assert.Equal(t, Stats{Audited: 1, Flagged: 1}, stats)

	got, err := store.GetDeployment(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFailed, got.VerificationStatus)
	assert.Equal(t, "safety audit failed: hidden owner-only drain function", got.VerificationError)
	assert.NotEmpty(t, got.VerifiedAt, "flagging must not erase the verification timestamp")
}

func TestRunLeavesSafeDeploymentVerified(t *testing.T) {
	store, sources, dep := newAuditFixture(t)
	ctx := context.Background()

	classifier := &stubClassifier{verdict: &Verdict{Safe: true}}
	auditor := newAuditor(store, sources, classifier)

	stats := auditor.Run(ctx, []string{dep.ID})
	assert.Equal(t, Stats{Audited: 1, Flagged: 0}, stats)

	got, err := store.GetDeployment(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusVerified, got.VerificationStatus)
}

func TestRunClassifierErrorLeavesVerified(t *testing.T) {
	store, sources, dep := newAuditFixture(t)
	ctx := context.Background()

	classifier := &stubClassifier{err: errors.New("model overloaded")}
	auditor := newAuditor(store, sources, classifier)

	stats := auditor.Run(ctx, []string{dep.ID})
	assert.Equal(t, Stats{}, stats, "a failed audit call counts neither as audited nor flagged")

	got, err := store.GetDeployment(ctx, dep.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusVerified, got.VerificationStatus, "classifier failures must not undo verification")
}

func TestRunDisabledWithoutAPIKey(t *testing.T) {
	store, sources, dep := newAuditFixture(t)

	classifier := &stubClassifier{verdict: &Verdict{Safe: false, Reason: "anything"}}
	auditor := NewAuditor(config.AuditConfig{}, store, sources, slog.New(slog.DiscardHandler))
	auditor.classifier = classifier

	stats := auditor.Run(context.Background(), []string{dep.ID})
	assert.Equal(t, Stats{}, stats)
	assert.Zero(t, classifier.calls)
}

func TestRunSkipsNonVerifiedDeployments(t *testing.T) {
	store, sources, dep := newAuditFixture(t)
	ctx := context.Background()

	pending := storage.StatusPending
	require.NoError(t, store.UpdateVerification(ctx, dep.ID, storage.VerificationUpdate{Status: &pending}))

	classifier := &stubClassifier{verdict: &Verdict{Safe: false, Reason: "anything"}}
	auditor := newAuditor(store, sources, classifier)

	stats := auditor.Run(ctx, []string{dep.ID})
	assert.Equal(t, Stats{Audited: 1, Flagged: 0}, stats)
	assert.Zero(t, classifier.calls, "only currently verified deployments reach the classifier")
}

func TestParseVerdict(t *testing.T) {
	t.Run("bare json", func(t *testing.T) {
		v, err := parseVerdict(`{"safe": true}`)
		require.NoError(t, err)
		assert.True(t, v.Safe)
	})

	t.Run("code fenced", func(t *testing.T) {
		v, err := parseVerdict("```json\n{\"safe\": false, \"reason\": \"honeypot\"}\n```")
		require.NoError(t, err)
		assert.False(t, v.Safe)
		assert.Equal(t, "honeypot", v.Reason)
	})

	t.Run("fence without language tag", func(t *testing.T) {
		v, err := parseVerdict("```\n{\"safe\": true}\n```  ")
		require.NoError(t, err)
		assert.True(t, v.Safe)
	})

	t.Run("prose is rejected", func(t *testing.T) {
		_, err := parseVerdict("The contract looks fine to me.")
		assert.Error(t, err)
	})
}
