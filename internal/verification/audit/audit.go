// Package audit runs verified contract sources through an LLM safety
// classifier. Bytecode verification proves the source is genuine; the
// audit pass judges whether that genuine source is malicious.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/agentbook/agentbook/internal/config"
	"github.com/agentbook/agentbook/internal/storage"
)

const systemPrompt = `You are a smart contract security auditor. Analyze the given Solidity source code and determine if it is malicious or violates any of the following rules:

RULES:
1. Must NOT contain hidden backdoors (e.g. owner-only drain functions disguised with misleading names)
2. Must NOT contain honeypot patterns (e.g. preventing sells, hidden transfer fees, blacklist manipulation)
3. Must NOT contain rug-pull mechanisms (e.g. unlimited minting by owner, removable liquidity locks, self-destruct)
4. Must NOT contain phishing patterns (e.g. approve-to-attacker, delegatecall to untrusted addresses)
5. Must NOT contain obfuscated or intentionally misleading code
6. Must NOT contain hardcoded addresses that receive fees/funds without clear documentation
7. Must NOT disable or bypass standard safety checks (e.g. overriding transfer to steal funds)
8. Must NOT be a token contract (ERC-20, BEP-20, or any fungible token with name/symbol/supply/mint/burn tokens are not allowed on this platform)

Respond with ONLY a JSON object (no markdown fences):
{"safe": true} if the contract passes all checks
{"safe": false, "reason": "<brief description of the violation>"} if the contract is malicious or violates rules`

// Verdict is the classifier's parsed answer.
type Verdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

// Classifier asks a model whether a Solidity source is safe to list.
type Classifier interface {
	Classify(ctx context.Context, sourceCode string) (*Verdict, error)
}

// OpenRouterClassifier implements Classifier against an OpenAI-compatible
// chat completions endpoint.
type OpenRouterClassifier struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewClassifier(cfg config.AuditConfig) *OpenRouterClassifier {
	return &OpenRouterClassifier{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *OpenRouterClassifier) Classify(ctx context.Context, sourceCode string) (*Verdict, error) {
	payload, err := json.Marshal(chatRequest{
		Model:     c.model,
		MaxTokens: 4096,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Analyze this Solidity contract:\n\n" + sourceCode},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audit request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading audit response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audit API error (%d): %.200s", resp.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding audit response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("audit API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("audit API returned no content")
	}

	return parseVerdict(parsed.Choices[0].Message.Content)
}

var (
	fenceOpenRe  = regexp.MustCompile("(?m)^```(?:json)?\n?")
	fenceCloseRe = regexp.MustCompile("\n?```\\s*$")
)

// parseVerdict tolerates models that wrap the JSON in a markdown code
// fence despite being told not to.
func parseVerdict(content string) (*Verdict, error) {
	cleaned := fenceOpenRe.ReplaceAllString(content, "")
	cleaned = fenceCloseRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	var v Verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("unparseable audit verdict %q: %w", content, err)
	}
	return &v, nil
}

// Auditor applies the classifier to freshly verified deployments and
// demotes flagged ones back to failed.
type Auditor struct {
	classifier  Classifier
	deployments storage.DeploymentStore
	sources     storage.SourceStore
	enabled     bool
	logger      *slog.Logger
}

func NewAuditor(cfg config.AuditConfig, deployments storage.DeploymentStore, sources storage.SourceStore, logger *slog.Logger) *Auditor {
	return &Auditor{
		classifier:  NewClassifier(cfg),
		deployments: deployments,
		sources:     sources,
		enabled:     cfg.APIKey != "",
		logger:      logger,
	}
}

// Stats summarizes one audit pass.
type Stats struct {
	Audited int
	Flagged int
}

// Run audits the given deployment IDs. Errors on individual deployments
// skip that deployment and continue; a broken classifier must never undo
// a completed verification. Without an API key the pass is a no-op.
func (a *Auditor) Run(ctx context.Context, deploymentIDs []string) Stats {
	if len(deploymentIDs) == 0 {
		return Stats{}
	}
	if !a.enabled {
		a.logger.Debug("safety audit disabled, skipping", "count", len(deploymentIDs))
		return Stats{}
	}

	var stats Stats
	for _, id := range deploymentIDs {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("audit pass interrupted", "error", err)
			return stats
		}
		flagged, err := a.auditOne(ctx, id)
		if err != nil {
			a.logger.Error("audit failed, leaving deployment verified", "deployment_id", id, "error", err)
			continue
		}
		stats.Audited++
		if flagged {
			stats.Flagged++
		}
	}
	return stats
}

func (a *Auditor) auditOne(ctx context.Context, id string) (bool, error) {
	deployment, err := a.deployments.GetDeployment(ctx, id)
	if err != nil {
		return false, err
	}
	// re-check under the current state; the batch may be stale
	if deployment.VerificationStatus != storage.StatusVerified || deployment.SourceURL == "" {
		return false, nil
	}

	source, err := a.sources.GetSource(ctx, deployment.ChainKey, deployment.ContractAddress)
	if err != nil {
		return false, err
	}

	verdict, err := a.classifier.Classify(ctx, source)
	if err != nil {
		return false, err
	}

	if verdict.Safe {
		a.logger.Info("safety audit passed", "deployment_id", id, "contract", deployment.ContractName)
		return false, nil
	}

	a.logger.Warn("safety audit flagged deployment",
		"deployment_id", id,
		"contract", deployment.ContractName,
		"reason", verdict.Reason)

	failed := storage.StatusFailed
	auditErr := "safety audit failed: " + verdict.Reason
	if err := a.deployments.UpdateVerification(ctx, id, storage.VerificationUpdate{
		Status: &failed,
		Error:  &auditErr,
	}); err != nil {
		return false, err
	}
	return true, nil
}
