package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbook/agentbook/internal/verification/domain"
)

type mockService struct {
	got    domain.VerifyRequest
	result *domain.VerifyResult
	err    error
}

func (m *mockService) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	m.got = req
	return m.result, m.err
}

func newTestRouter(svc Service) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		h.RegisterRoutes(r)
	})
	return r
}

func TestHandleVerify(t *testing.T) {
	svc := &mockService{result: &domain.VerifyResult{
		Success: true,
		Level1:  true,
		Level3:  true,
		Details: &domain.Details{
			OnChainHash:  "0x1111",
			CompiledHash: "0x1111",
			ChainKey:     "bsc-testnet",
		},
	}}
	router := newTestRouter(svc)

	body, _ := json.Marshal(VerifyRequest{DeploymentID: "dep-1"})
	req := httptest.NewRequest("POST", "/api/v1/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dep-1", svc.got.DeploymentID)

	var resp domain.VerifyResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Details)
	assert.Equal(t, "0x1111", resp.Details.OnChainHash)
}

func TestHandleVerifyFailureResult(t *testing.T) {
	svc := &mockService{result: &domain.VerifyResult{
		Level1:   true,
		Failures: []string{"BYTECODE_MISMATCH: on-chain bytecode does not match compiled source"},
	}}
	router := newTestRouter(svc)

	body, _ := json.Marshal(VerifyRequest{
		ChainKey:        "bsc-testnet",
		ContractAddress: "0x1234567890abcdef1234567890abcdef12345678",
		SourceCode:      "contract Vault {}",
	})
	req := httptest.NewRequest("POST", "/api/v1/verify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// A failed check is still a successful request.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.VerifyResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.Len(t, resp.Failures, 1)
	assert.Contains(t, resp.Failures[0], "BYTECODE_MISMATCH")
}

func TestHandleVerifyErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"bad address", domain.ErrInvalidAddress, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad chain", domain.ErrInvalidChainKey, http.StatusBadRequest, "INVALID_REQUEST"},
		{"no target", domain.ErrMissingTarget, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockService{err: tt.err})

			req := httptest.NewRequest("POST", "/api/v1/verify", bytes.NewReader([]byte("{}")))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestHandleVerifyBadJSON(t *testing.T) {
	router := newTestRouter(&mockService{})

	req := httptest.NewRequest("POST", "/api/v1/verify", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
