package domain

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbook/agentbook/internal/storage"
)

const (
	testAddress = "0x1234567890AbcDef1234567890abcdef12345678"
	testTxHash  = "0xabcd0000000000000000000000000000000000000000000000000000000000ef"
)

// mockStore implements DeploymentStore and AgentResolver for testing
type mockStore struct {
	deployments map[string]*storage.Deployment
	agents      map[string]*storage.Agent
	createErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		deployments: make(map[string]*storage.Deployment),
		agents:      make(map[string]*storage.Agent),
	}
}

func (m *mockStore) CreateDeployment(ctx context.Context, d *storage.Deployment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if d.ID == "" {
		d.ID = fmt.Sprintf("dep-%d", len(m.deployments)+1)
	}
	d.VerificationStatus = storage.StatusPending
	d.CreatedAt = "2026-08-30 12:00:00"
	m.deployments[d.ID] = d
	return nil
}

func (m *mockStore) GetDeployment(ctx context.Context, id string) (*storage.Deployment, error) {
	if d, ok := m.deployments[id]; ok {
		return d, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) GetDeploymentByAddress(ctx context.Context, chainKey, address string) (*storage.Deployment, error) {
	for _, d := range m.deployments {
		if d.ChainKey == chainKey && d.ContractAddress == address {
			return d, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *mockStore) ListDeployments(ctx context.Context, filter storage.DeploymentFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Deployment], error) {
	var out []storage.Deployment
	for _, d := range m.deployments {
		if filter.ChainKey != "" && d.ChainKey != filter.ChainKey {
			continue
		}
		if filter.Status != "" && d.VerificationStatus != filter.Status {
			continue
		}
		if filter.AgentID != "" && d.AgentID != filter.AgentID {
			continue
		}
		out = append(out, *d)
	}
	return &storage.PaginatedResult[storage.Deployment]{Data: out}, nil
}

func (m *mockStore) GetAgentByAPIKeyID(ctx context.Context, apiKeyID string) (*storage.Agent, error) {
	if a, ok := m.agents[apiKeyID]; ok {
		return a, nil
	}
	return nil, storage.ErrNotFound
}

// mockSourceStore keeps blobs in memory
type mockSourceStore struct {
	sources map[string]string
	abis    map[string][]byte
	putErr  error
}

func newMockSourceStore() *mockSourceStore {
	return &mockSourceStore{
		sources: make(map[string]string),
		abis:    make(map[string][]byte),
	}
}

func blobKey(chainKey, address string) string {
	return chainKey + "/" + address
}

func (m *mockSourceStore) PutSource(ctx context.Context, chainKey, address, source string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	key := blobKey(chainKey, address)
	m.sources[key] = source
	return "sources/" + key + ".sol", nil
}

func (m *mockSourceStore) GetSource(ctx context.Context, chainKey, address string) (string, error) {
	if s, ok := m.sources[blobKey(chainKey, address)]; ok {
		return s, nil
	}
	return "", storage.ErrNotFound
}

func (m *mockSourceStore) PutABI(ctx context.Context, chainKey, address string, abi []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	key := blobKey(chainKey, address)
	m.abis[key] = abi
	return "abis/" + key + ".json", nil
}

func (m *mockSourceStore) GetABI(ctx context.Context, chainKey, address string) ([]byte, error) {
	if a, ok := m.abis[blobKey(chainKey, address)]; ok {
		return a, nil
	}
	return nil, storage.ErrNotFound
}

func newTestService(t *testing.T) (Service, *mockStore, *mockSourceStore) {
	t.Helper()
	store := newMockStore()
	store.agents["key-1"] = &storage.Agent{ID: "agent-1", Name: "deploy-bot", APIKeyID: "key-1"}
	sources := newMockSourceStore()
	return NewService(store, store, sources), store, sources
}

func validRecordRequest() RecordRequest {
	return RecordRequest{
		ContractName:    "Vault",
		ContractAddress: testAddress,
		ChainKey:        "bsc-testnet",
		TxHash:          testTxHash,
		SourceCode:      "pragma solidity ^0.8.20; contract Vault {}",
		ABI:             `[{"type":"constructor","inputs":[]}]`,
	}
}

func TestRecord(t *testing.T) {
	svc, store, sources := newTestService(t)
	ctx := context.Background()

	dep, err := svc.Record(ctx, "key-1", validRecordRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, dep.ID)
	assert.Equal(t, "agent-1", dep.AgentID)
	assert.Equal(t, "Vault", dep.ContractName)
	// Addresses are stored lowercased.
	lower := "0x1234567890abcdef1234567890abcdef12345678"
	assert.Equal(t, lower, dep.ContractAddress)
	assert.Equal(t, storage.StatusPending, dep.VerificationStatus)
	assert.True(t, dep.HasSource)
	assert.True(t, dep.HasABI)
	assert.Equal(t, "https://testnet.bscscan.com/address/"+lower, dep.ExplorerURL)

	stored := store.deployments[dep.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "sources/bsc-testnet/"+lower+".sol", stored.SourceURL)
	assert.Equal(t, "abis/bsc-testnet/"+lower+".json", stored.ABIURL)

	src, err := sources.GetSource(ctx, "bsc-testnet", lower)
	require.NoError(t, err)
	assert.Contains(t, src, "contract Vault")
}

func TestRecordWithoutSource(t *testing.T) {
	svc, store, _ := newTestService(t)

	req := validRecordRequest()
	req.SourceCode = ""
	dep, err := svc.Record(context.Background(), "key-1", req)
	require.NoError(t, err)

	assert.False(t, dep.HasSource)
	assert.True(t, dep.HasABI)
	assert.Empty(t, store.deployments[dep.ID].SourceURL)
}

func TestRecordValidation(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*RecordRequest)
		wantErr error
	}{
		{"bad contract name", func(r *RecordRequest) { r.ContractName = "9Lives!" }, ErrInvalidContractName},
		{"bad address", func(r *RecordRequest) { r.ContractAddress = "0xnothex" }, ErrInvalidAddress},
		{"unknown chain", func(r *RecordRequest) { r.ChainKey = "dogechain" }, ErrInvalidChainKey},
		{"bad tx hash", func(r *RecordRequest) { r.TxHash = "0x1234" }, ErrInvalidTxHash},
		{"missing abi", func(r *RecordRequest) { r.ABI = "  " }, ErrMissingABI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRecordRequest()
			tt.mutate(&req)
			_, err := svc.Record(ctx, "key-1", req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, store.deployments)
}

func TestRecordUnknownAPIKey(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Record(context.Background(), "key-unknown", validRecordRequest())
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRecordDuplicateAddress(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, "key-1", validRecordRequest())
	require.NoError(t, err)

	// Same address in a different case still collides.
	req := validRecordRequest()
	req.ContractAddress = "0x1234567890ABCDEF1234567890ABCDEF12345678"
	_, err = svc.Record(ctx, "key-1", req)
	assert.ErrorIs(t, err, ErrExists)
}

func TestRecordStoreConflict(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.createErr = storage.ErrExists

	_, err := svc.Record(context.Background(), "key-1", validRecordRequest())
	assert.ErrorIs(t, err, ErrExists)
}

func TestGet(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Record(ctx, "key-1", validRecordRequest())
	require.NoError(t, err)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Vault", got.ContractName)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = svc.Get(ctx, "dep-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetByAddress(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Record(ctx, "key-1", validRecordRequest())
	require.NoError(t, err)

	// Lookup is case-insensitive on the address.
	got, err := svc.GetByAddress(ctx, "bsc-testnet", "0x1234567890ABCDEF1234567890ABCDEF12345678")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetByAddress(ctx, "bsc-mainnet", created.ContractAddress)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first := validRecordRequest()
	_, err := svc.Record(ctx, "key-1", first)
	require.NoError(t, err)

	second := validRecordRequest()
	second.ContractAddress = "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	second.ChainKey = "bsc-mainnet"
	second.ContractName = "Token"
	_, err = svc.Record(ctx, "key-1", second)
	require.NoError(t, err)

	all, err := svc.List(ctx, ListFilter{}, PaginationParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all.Deployments, 2)

	mainnet, err := svc.List(ctx, ListFilter{ChainKey: "bsc-mainnet"}, PaginationParams{Limit: 10})
	require.NoError(t, err)
	require.Len(t, mainnet.Deployments, 1)
	assert.Equal(t, "Token", mainnet.Deployments[0].ContractName)

	pending, err := svc.List(ctx, ListFilter{Status: "pending"}, PaginationParams{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, pending.Deployments, 2)
}

func TestGetABI(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Record(ctx, "key-1", validRecordRequest())
	require.NoError(t, err)

	abi, err := svc.GetABI(ctx, created.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"constructor","inputs":[]}]`, string(abi))

	_, err = svc.GetABI(ctx, "dep-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSource(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	req := validRecordRequest()
	req.SourceCode = ""
	created, err := svc.Record(ctx, "key-1", req)
	require.NoError(t, err)

	_, err = svc.GetSource(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNoSource)

	withSource, err := svc.Record(ctx, "key-1", func() RecordRequest {
		r := validRecordRequest()
		r.ContractAddress = "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
		return r
	}())
	require.NoError(t, err)

	src, err := svc.GetSource(ctx, withSource.ID)
	require.NoError(t, err)
	assert.Contains(t, src, "contract Vault")

	// A dangling source URL surfaces as missing source, not a crash.
	store.deployments[withSource.ID].SourceURL = "sources/bsc-testnet/gone.sol"
	store.deployments[withSource.ID].ContractAddress = "0x0000000000000000000000000000000000000001"
	_, err = svc.GetSource(ctx, withSource.ID)
	assert.ErrorIs(t, err, ErrNoSource)
}
