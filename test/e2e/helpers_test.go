//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentbook/agentbook/internal/config"
	"github.com/agentbook/agentbook/internal/server"
	"github.com/agentbook/agentbook/internal/storage"
	"github.com/agentbook/agentbook/internal/verification/engine"
	"github.com/agentbook/agentbook/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
	Sources           storage.SourceStore
	Verifier          *fakeVerifier
}

// fakeVerifier implements the verification engine interface without
// touching any chain. Addresses registered via setResult get that result;
// everything else fails the existence check.
type fakeVerifier struct {
	mu      sync.Mutex
	results map[string]engine.Result
}

func newFakeVerifier() *fakeVerifier {
	return &fakeVerifier{results: make(map[string]engine.Result)}
}

func (f *fakeVerifier) setResult(address string, result engine.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[address] = result
}

func (f *fakeVerifier) Verify(ctx context.Context, req engine.Request) engine.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	if result, ok := f.results[req.ContractAddress]; ok {
		return result
	}
	return engine.Result{
		Failures: []engine.Failure{{Kind: engine.FailContractNotFound}},
	}
}

// setupPostgresE starts a Postgres container and returns the connection string (error-returning variant for TestMain)
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("agentbook"),
		postgres.WithUsername("agentbook"),
		postgres.WithPassword("agentbook"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the agentbook server in-process (error-returning variant for TestMain)
func startServerE(connString string) (*httptest.Server, storage.Store, storage.SourceStore, *fakeVerifier, error) {
	sourcesDir, err := os.MkdirTemp("", "agentbook-sources-*")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create sources dir: %w", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: config.StorageConfig{
			Type: "postgres",
			Postgres: config.PostgresConfig{
				URL: connString,
			},
			Sources: config.SourcesConfig{BasePath: sourcesDir},
		},
		Auth:      config.AuthConfig{Type: "api-key"},
		Logging:   config.LoggingConfig{Level: "debug", Format: "text"},
		RateLimit: config.RateLimitConfig{Enabled: false},
		Security:  config.SecurityConfig{FilterEnabled: false, MaxBodySizeMB: 50},
		Proxy:     config.ProxyConfig{TrustProxy: false},
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	sources, err := storage.NewFileSourceStore(cfg.Storage.Sources.BasePath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to create source store: %w", err)
	}

	verifier := newFakeVerifier()
	srv := server.New(cfg, store, sources, verifier, logger)
	testServer := httptest.NewServer(srv.Handler())

	return testServer, store, sources, verifier, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// registerTestAgent registers an agent through the API and returns its ID and API key
func registerTestAgent(t *testing.T, name string) (string, string) {
	t.Helper()
	c := newClient(testCtx.TestServer, "")
	resp, err := c.RegisterAgent(context.Background(), client.RegisterAgentRequest{
		Name:          name,
		WalletAddress: "0x00000000000000000000000000000000000000a1",
	})
	require.NoError(t, err, "Failed to register agent")
	require.NotEmpty(t, resp.APIKey, "Registration should return an API key")
	return resp.ID, resp.APIKey
}

// sampleSource is a minimal contract used for deployment records
const sampleSource = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.20;

contract Token {
    string public name = "Token";
}
`

// sampleABI is the matching minimal ABI
const sampleABI = `[{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}]`

// recordTestDeployment records a deployment for the given agent key and returns it
func recordTestDeployment(t *testing.T, apiKey, name, address string) *client.Deployment {
	t.Helper()
	c := newClient(testCtx.TestServer, apiKey)
	dep, err := c.RecordDeployment(context.Background(), client.DeploymentRequest{
		ContractName:    name,
		ContractAddress: address,
		ChainKey:        "bsc-testnet",
		TxHash:          "0x1111111111111111111111111111111111111111111111111111111111111111",
		SourceCode:      sampleSource,
		ABI:             sampleABI,
	})
	require.NoError(t, err, "Failed to record deployment")
	return dep
}

// assertHTTPError asserts that an error is an APIError with the expected code
func assertHTTPError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	require.Error(t, err, "Expected an error")
	apiErr, ok := err.(*client.APIError)
	require.True(t, ok, "Error should be an APIError")
	require.Equal(t, expectedCode, apiErr.Code, "Error code mismatch")
}
