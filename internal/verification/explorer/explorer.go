// Package explorer submits verified sources to the Etherscan v2 API so the
// public block explorer shows a green checkmark next to the contract.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentbook/agentbook/internal/chains"
	"github.com/agentbook/agentbook/internal/config"
)

// Request describes one explorer submission.
type Request struct {
	ContractAddress string
	ChainKey        string
	SourceCode      string
	ContractName    string
	CompilerVersion string
	ConstructorArgs string
	OptimizerRuns   int
}

// Result is the final outcome of a submission. ExplorerURL is populated
// regardless of success so callers can always hand the user a link.
type Result struct {
	Success     bool
	TimedOut    bool
	Message     string
	ExplorerURL string
}

// apiResponse is the envelope every Etherscan v2 endpoint returns. Status
// "1" is success; the result field carries either the payload or an error
// sentence.
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

const (
	notIndexedSentinel = "Unable to locate ContractCode"
	pendingSentinel    = "Pending in queue"
)

// Client talks to the Etherscan v2 multichain API. A single rate limiter
// covers submissions and status checks; explorers throttle by API key, not
// by endpoint.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	registry       *chains.Registry
	limiter        *rate.Limiter
	submitAttempts int
	pollAttempts   int
	initialDelay   time.Duration
	maxDelay       time.Duration
	logger         *slog.Logger

	// sleep is swapped out in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewClient(cfg config.ExplorerConfig, registry *chains.Registry, logger *slog.Logger) *Client {
	return &Client{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		registry:       registry,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		submitAttempts: cfg.SubmitAttempts,
		pollAttempts:   cfg.PollAttempts,
		initialDelay:   time.Duration(cfg.InitialDelay) * time.Second,
		maxDelay:       time.Duration(cfg.MaxDelay) * time.Second,
		logger:         logger,
		sleep:          sleepCtx,
	}
}

// Enabled reports whether an API key is configured. Without one the whole
// explorer step is skipped; on-chain verification does not depend on it.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Verify submits the source and polls until the explorer accepts it,
// rejects it, or the poll budget runs out. The returned error covers only
// submission failures; poll outcomes land in the Result.
func (c *Client) Verify(ctx context.Context, req Request) (*Result, error) {
	chain, err := c.registry.Get(req.ChainKey)
	if err != nil {
		return nil, err
	}
	explorerURL := fmt.Sprintf("%s/address/%s#code", chain.ExplorerURL, req.ContractAddress)

	guid, err := c.Submit(ctx, req)
	if err != nil {
		return &Result{Success: false, Message: err.Error(), ExplorerURL: explorerURL}, err
	}

	res := c.Poll(ctx, guid, chain.ChainID)
	res.ExplorerURL = explorerURL
	return res, nil
}

// Submit posts the source to verifysourcecode and returns the receipt GUID.
// A fresh deployment is often not indexed yet; the explorer answers with
// "Unable to locate ContractCode", which is retried with doubling backoff.
// Any other rejection is final.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	chain, err := c.registry.Get(req.ChainKey)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"module":           {"contract"},
		"action":           {"verifysourcecode"},
		"contractaddress":  {req.ContractAddress},
		"sourceCode":       {req.SourceCode},
		"codeformat":       {"solidity-single-file"},
		"contractname":     {req.ContractName},
		"compilerversion":  {req.CompilerVersion},
		"optimizationUsed": {"1"},
		"runs":             {strconv.Itoa(req.OptimizerRuns)},
		"apikey":           {c.apiKey},
	}
	if req.ConstructorArgs != "" {
		// the misspelling is part of the API
		form.Set("constructorArguements", req.ConstructorArgs)
	}

	endpoint := fmt.Sprintf("%s?chainid=%d", c.baseURL, chain.ChainID)

	delay := c.initialDelay
	for attempt := 0; attempt <= c.submitAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return "", err
			}
			delay = min(delay*2, c.maxDelay)
		}

		resp, err := c.post(ctx, endpoint, form)
		if err != nil {
			return "", err
		}

		if resp.Status == "1" {
			return resp.Result, nil
		}

		if strings.Contains(resp.Result, notIndexedSentinel) && attempt < c.submitAttempts {
			c.logger.Debug("contract not yet indexed by explorer, retrying",
				"address", req.ContractAddress,
				"chain", req.ChainKey,
				"attempt", attempt+1)
			continue
		}

		return "", fmt.Errorf("verification submission failed: %s", resp.Result)
	}

	return "", fmt.Errorf("verification submission failed after maximum retries")
}

// Poll checks the GUID's status until it resolves or attempts run out.
// Verification takes a few seconds server-side, so each check is preceded
// by a sleep rather than followed by one. Exhausting the budget is a
// timeout, not a rejection; the contract may still verify later.
func (c *Client) Poll(ctx context.Context, guid string, chainID uint64) *Result {
	delay := c.initialDelay
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		if err := c.sleep(ctx, delay); err != nil {
			return &Result{Success: false, TimedOut: true, Message: err.Error()}
		}

		success, message, err := c.checkStatus(ctx, guid, chainID)
		if err != nil {
			return &Result{Success: false, Message: err.Error()}
		}
		if success || message != pendingSentinel {
			return &Result{Success: success, Message: message}
		}

		delay = min(delay*2, c.maxDelay)
	}

	return &Result{Success: false, TimedOut: true, Message: "verification timed out after maximum retries"}
}

func (c *Client) checkStatus(ctx context.Context, guid string, chainID uint64) (bool, string, error) {
	params := url.Values{
		"module": {"contract"},
		"action": {"checkverifystatus"},
		"guid":   {guid},
		"apikey": {c.apiKey},
	}
	endpoint := fmt.Sprintf("%s?chainid=%d&%s", c.baseURL, chainID, params.Encode())

	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return false, "", err
	}

	if resp.Result == pendingSentinel {
		return false, resp.Result, nil
	}
	return resp.Status == "1", resp.Result, nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, endpoint string) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading explorer response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding explorer response (status %d): %w", resp.StatusCode, err)
	}
	return &parsed, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
