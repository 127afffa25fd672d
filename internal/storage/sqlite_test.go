package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"log/slog"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "agentbook-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	dbPath := filepath.Join(tmpDir, "test.db")
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := NewSQLiteStore(dbPath, logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func TestSQLiteAgents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		agent := &Agent{
			ID:            "agent-id-1",
			Name:          "deploy-bot",
			Description:   "deploys test contracts",
			WalletAddress: "0x1234567890abcdef1234567890abcdef12345678",
		}
		if err := store.CreateAgent(ctx, agent); err != nil {
			t.Fatalf("CreateAgent() error = %v", err)
		}

		got, err := store.GetAgent(ctx, "agent-id-1")
		if err != nil {
			t.Fatalf("GetAgent() error = %v", err)
		}
		if got.Name != agent.Name {
			t.Errorf("GetAgent().Name = %v, want %v", got.Name, agent.Name)
		}
		if got.WalletAddress != agent.WalletAddress {
			t.Errorf("GetAgent().WalletAddress = %v, want %v", got.WalletAddress, agent.WalletAddress)
		}

		byName, err := store.GetAgentByName(ctx, "deploy-bot")
		if err != nil {
			t.Fatalf("GetAgentByName() error = %v", err)
		}
		if byName.ID != agent.ID {
			t.Errorf("GetAgentByName().ID = %v, want %v", byName.ID, agent.ID)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		if _, err := store.GetAgent(ctx, "missing"); err != ErrNotFound {
			t.Errorf("GetAgent() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DuplicateName", func(t *testing.T) {
		dup := &Agent{ID: "agent-id-2", Name: "deploy-bot"}
		if err := store.CreateAgent(ctx, dup); err == nil {
			t.Error("CreateAgent() with duplicate name should fail")
		}
	})

	t.Run("List", func(t *testing.T) {
		for _, name := range []string{"alpha-bot", "beta-bot"} {
			if err := store.CreateAgent(ctx, &Agent{ID: "id-" + name, Name: name}); err != nil {
				t.Fatalf("CreateAgent(%s) error = %v", name, err)
			}
		}

		page, err := store.ListAgents(ctx, PaginationParams{Limit: 2})
		if err != nil {
			t.Fatalf("ListAgents() error = %v", err)
		}
		if len(page.Data) != 2 {
			t.Fatalf("ListAgents() returned %d agents, want 2", len(page.Data))
		}
		if !page.HasMore {
			t.Error("ListAgents().HasMore = false, want true")
		}

		next, err := store.ListAgents(ctx, PaginationParams{Limit: 2, Cursor: page.NextCursor})
		if err != nil {
			t.Fatalf("ListAgents(cursor) error = %v", err)
		}
		if len(next.Data) == 0 {
			t.Error("ListAgents(cursor) returned no agents")
		}
	})
}

func TestSQLiteDeployments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mkDeployment := func(id, addr, sourceURL string) *Deployment {
		return &Deployment{
			ID:              id,
			ContractName:    "Counter",
			ContractAddress: addr,
			ChainKey:        "bsc-testnet",
			SourceURL:       sourceURL,
		}
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		d := mkDeployment("dep-1", "0xaaaa567890abcdef1234567890abcdef12345678", "sources/bsc-testnet/0xaaaa.sol")
		if err := store.CreateDeployment(ctx, d); err != nil {
			t.Fatalf("CreateDeployment() error = %v", err)
		}

		got, err := store.GetDeployment(ctx, "dep-1")
		if err != nil {
			t.Fatalf("GetDeployment() error = %v", err)
		}
		if got.VerificationStatus != StatusPending {
			t.Errorf("VerificationStatus = %v, want pending", got.VerificationStatus)
		}
		if got.VerificationRetryCount != 0 {
			t.Errorf("VerificationRetryCount = %d, want 0", got.VerificationRetryCount)
		}

		byAddr, err := store.GetDeploymentByAddress(ctx, "bsc-testnet", "0xaaaa567890abcdef1234567890abcdef12345678")
		if err != nil {
			t.Fatalf("GetDeploymentByAddress() error = %v", err)
		}
		if byAddr.ID != "dep-1" {
			t.Errorf("GetDeploymentByAddress().ID = %v, want dep-1", byAddr.ID)
		}
	})

	t.Run("PendingSelectionFIFO", func(t *testing.T) {
		// One without a source: must never be selected.
		if err := store.CreateDeployment(ctx, mkDeployment("dep-nosource", "0xbbbb567890abcdef1234567890abcdef12345678", "")); err != nil {
			t.Fatal(err)
		}
		if err := store.CreateDeployment(ctx, mkDeployment("dep-2", "0xcccc567890abcdef1234567890abcdef12345678", "sources/x.sol")); err != nil {
			t.Fatal(err)
		}

		pending, err := store.ListPendingVerifications(ctx, 10)
		if err != nil {
			t.Fatalf("ListPendingVerifications() error = %v", err)
		}
		for _, d := range pending {
			if d.ID == "dep-nosource" {
				t.Error("deployment without source selected for verification")
			}
		}
		// Oldest first
		if len(pending) < 2 || pending[0].ID != "dep-1" {
			t.Errorf("pending[0].ID = %v, want dep-1 (oldest first)", pending[0].ID)
		}

		limited, err := store.ListPendingVerifications(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 1 {
			t.Errorf("ListPendingVerifications(1) returned %d, want 1", len(limited))
		}
	})

	t.Run("UpdateVerificationSuccess", func(t *testing.T) {
		status := StatusVerified
		hash := "0xdeadbeef"
		clear := ""
		err := store.UpdateVerification(ctx, "dep-1", VerificationUpdate{
			Status:          &status,
			Error:           &clear,
			BytecodeHash:    &hash,
			StampVerifiedAt: true,
		})
		if err != nil {
			t.Fatalf("UpdateVerification() error = %v", err)
		}

		got, err := store.GetDeployment(ctx, "dep-1")
		if err != nil {
			t.Fatal(err)
		}
		if got.VerificationStatus != StatusVerified {
			t.Errorf("VerificationStatus = %v, want verified", got.VerificationStatus)
		}
		if got.ContractBytecodeHash != hash {
			t.Errorf("ContractBytecodeHash = %v, want %v", got.ContractBytecodeHash, hash)
		}
		if got.VerificationError != "" {
			t.Errorf("VerificationError = %q, want cleared", got.VerificationError)
		}
		if got.VerifiedAt == "" {
			t.Error("VerifiedAt not set")
		}
	})

	t.Run("VerifiedAtSetOnce", func(t *testing.T) {
		before, err := store.GetDeployment(ctx, "dep-1")
		if err != nil {
			t.Fatal(err)
		}

		// An audit failure flips status but must not erase verified_at.
		time.Sleep(1100 * time.Millisecond)
		status := StatusFailed
		reason := "safety audit failed: honeypot pattern"
		err = store.UpdateVerification(ctx, "dep-1", VerificationUpdate{
			Status:          &status,
			Error:           &reason,
			StampVerifiedAt: true,
		})
		if err != nil {
			t.Fatal(err)
		}

		after, err := store.GetDeployment(ctx, "dep-1")
		if err != nil {
			t.Fatal(err)
		}
		if after.VerifiedAt != before.VerifiedAt {
			t.Errorf("VerifiedAt changed from %q to %q", before.VerifiedAt, after.VerifiedAt)
		}
		if after.VerificationStatus != StatusFailed {
			t.Errorf("VerificationStatus = %v, want failed", after.VerificationStatus)
		}
		if after.VerificationError != reason {
			t.Errorf("VerificationError = %q, want %q", after.VerificationError, reason)
		}
	})

	t.Run("UpdateRetryCountOnly", func(t *testing.T) {
		count := 2
		errMsg := "COMPILE_ERROR: expected ';'"
		err := store.UpdateVerification(ctx, "dep-2", VerificationUpdate{
			RetryCount: &count,
			Error:      &errMsg,
		})
		if err != nil {
			t.Fatal(err)
		}

		got, err := store.GetDeployment(ctx, "dep-2")
		if err != nil {
			t.Fatal(err)
		}
		if got.VerificationRetryCount != 2 {
			t.Errorf("VerificationRetryCount = %d, want 2", got.VerificationRetryCount)
		}
		// Status untouched by a partial update.
		if got.VerificationStatus != StatusPending {
			t.Errorf("VerificationStatus = %v, want pending", got.VerificationStatus)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		count := 1
		if err := store.UpdateVerification(ctx, "missing", VerificationUpdate{RetryCount: &count}); err != ErrNotFound {
			t.Errorf("UpdateVerification() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListByStatus", func(t *testing.T) {
		page, err := store.ListDeployments(ctx, DeploymentFilter{Status: StatusPending}, PaginationParams{Limit: 10})
		if err != nil {
			t.Fatalf("ListDeployments() error = %v", err)
		}
		for _, d := range page.Data {
			if d.VerificationStatus != StatusPending {
				t.Errorf("filtered list contains status %v", d.VerificationStatus)
			}
		}
	})
}

func TestSQLiteAPIKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, key, err := store.CreateAPIKey(ctx, "test-key")
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	if key == "" {
		t.Fatal("CreateAPIKey() returned empty key")
	}
	if rec.ID == "" {
		t.Fatal("CreateAPIKey() returned record without ID")
	}

	ak, err := store.ValidateAPIKey(ctx, key)
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if ak.Name != "test-key" {
		t.Errorf("ValidateAPIKey().Name = %v, want test-key", ak.Name)
	}
	if ak.ID != rec.ID {
		t.Errorf("ValidateAPIKey().ID = %v, want %v", ak.ID, rec.ID)
	}

	if _, err := store.ValidateAPIKey(ctx, "bogus"); err != ErrNotFound {
		t.Errorf("ValidateAPIKey(bogus) error = %v, want ErrNotFound", err)
	}

	if err := store.RevokeAPIKey(ctx, ak.ID); err != nil {
		t.Fatalf("RevokeAPIKey() error = %v", err)
	}
	if _, err := store.ValidateAPIKey(ctx, key); err != ErrNotFound {
		t.Errorf("ValidateAPIKey(revoked) error = %v, want ErrNotFound", err)
	}
}
