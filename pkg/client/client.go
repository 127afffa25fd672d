// Package client provides a Go client for the Agentbook API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is an Agentbook API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new Agentbook client
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Agent represents a registered agent
type Agent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	WalletAddress string `json:"walletAddress"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// RegisterAgentRequest is the request for registering an agent
type RegisterAgentRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	WalletAddress string `json:"walletAddress"`
}

// RegisterAgentResponse is the response for registering an agent.
// APIKey is only returned at registration time.
type RegisterAgentResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	WalletAddress string `json:"walletAddress"`
	APIKey        string `json:"apiKey"`
	Message       string `json:"message,omitempty"`
}

// Deployment represents a recorded deployment
type Deployment struct {
	ID                 string `json:"id"`
	AgentID            string `json:"agentId"`
	ContractName       string `json:"contractName"`
	ContractAddress    string `json:"contractAddress"`
	ChainKey           string `json:"chainKey"`
	TxHash             string `json:"txHash"`
	HasSource          bool   `json:"hasSource"`
	HasABI             bool   `json:"hasAbi"`
	VerificationStatus string `json:"verificationStatus"`
	VerificationError  string `json:"verificationError,omitempty"`
	BytecodeHash       string `json:"bytecodeHash,omitempty"`
	ExplorerURL        string `json:"explorerUrl,omitempty"`
	VerifiedAt         string `json:"verifiedAt,omitempty"`
	CreatedAt          string `json:"createdAt"`
}

// DeploymentRequest is the request for recording a deployment
type DeploymentRequest struct {
	ContractName    string `json:"contractName"`
	ContractAddress string `json:"contractAddress"`
	ChainKey        string `json:"chainKey"`
	TxHash          string `json:"txHash"`
	SourceCode      string `json:"sourceCode,omitempty"`
	ABI             string `json:"abi"`
}

// VerifyRequest is the request for an on-demand verification check
type VerifyRequest struct {
	DeploymentID    string `json:"deploymentId,omitempty"`
	ChainKey        string `json:"chainKey,omitempty"`
	ContractAddress string `json:"contractAddress,omitempty"`
	SourceCode      string `json:"sourceCode,omitempty"`
	ContractName    string `json:"contractName,omitempty"`
}

// VerifyResult is the outcome of an on-demand verification check
type VerifyResult struct {
	Success  bool           `json:"success"`
	Level1   bool           `json:"level1"`
	Level3   bool           `json:"level3"`
	Failures []string       `json:"failures,omitempty"`
	Details  *VerifyDetails `json:"details,omitempty"`
}

// VerifyDetails carries the bytecode evidence behind a check
type VerifyDetails struct {
	OnChainHash     string `json:"onChainHash,omitempty"`
	CompiledHash    string `json:"compiledHash,omitempty"`
	OnChainLength   int    `json:"onChainLength"`
	CompiledLength  int    `json:"compiledLength"`
	ChainKey        string `json:"chainKey"`
	ContractAddress string `json:"contractAddress"`
}

// ListAgentsResponse is the response for listing agents
type ListAgentsResponse struct {
	Data       []Agent    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ListDeploymentsResponse is the response for listing deployments
type ListDeploymentsResponse struct {
	Data       []Deployment `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// ListDeploymentsOptions filters a deployment listing
type ListDeploymentsOptions struct {
	Status   string
	ChainKey string
	AgentID  string
	Limit    int
	Cursor   string
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// RegisterAgent registers a new agent and returns its API key
func (c *Client) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (*RegisterAgentResponse, error) {
	var resp RegisterAgentResponse
	if err := c.post(ctx, "/api/v1/agents/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAgent gets an agent by ID or name
func (c *Client) GetAgent(ctx context.Context, idOrName string) (*Agent, error) {
	var resp Agent
	if err := c.get(ctx, "/api/v1/agents/"+url.PathEscape(idOrName), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAgents lists registered agents
func (c *Client) ListAgents(ctx context.Context) (*ListAgentsResponse, error) {
	var resp ListAgentsResponse
	if err := c.get(ctx, "/api/v1/agents", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordDeployment records a deployment
func (c *Client) RecordDeployment(ctx context.Context, req DeploymentRequest) (*Deployment, error) {
	var resp Deployment
	if err := c.post(ctx, "/api/v1/deployments", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeployment gets a deployment by ID
func (c *Client) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	var resp Deployment
	if err := c.get(ctx, "/api/v1/deployments/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDeploymentByAddress gets a deployment by chain key and contract address
func (c *Client) GetDeploymentByAddress(ctx context.Context, chainKey, address string) (*Deployment, error) {
	var resp Deployment
	path := fmt.Sprintf("/api/v1/deployments/%s/%s", url.PathEscape(chainKey), url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListDeployments lists deployments with optional filters
func (c *Client) ListDeployments(ctx context.Context, opts ListDeploymentsOptions) (*ListDeploymentsResponse, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.ChainKey != "" {
		q.Set("chain", opts.ChainKey)
	}
	if opts.AgentID != "" {
		q.Set("agent", opts.AgentID)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}

	path := "/api/v1/deployments"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var resp ListDeploymentsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetABI gets the recorded ABI for a deployment
func (c *Client) GetABI(ctx context.Context, id string) (json.RawMessage, error) {
	return c.getRaw(ctx, "/api/v1/deployments/"+url.PathEscape(id)+"/abi")
}

// GetSource gets the recorded source code for a deployment
func (c *Client) GetSource(ctx context.Context, id string) ([]byte, error) {
	return c.getRaw(ctx, "/api/v1/deployments/"+url.PathEscape(id)+"/source")
}

// Verify runs an on-demand verification check
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	var resp VerifyResult
	if err := c.post(ctx, "/api/v1/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	return c.do(req, result)
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.parseError(resp)
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return &errResp.Error
}
