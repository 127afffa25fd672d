// Package domain contains the business logic for on-demand verification checks.
package domain

// VerifyRequest is the request to check a contract. Either DeploymentID
// references a recorded deployment, or the remaining fields describe an
// ad hoc check against an arbitrary address.
type VerifyRequest struct {
	DeploymentID    string `json:"deploymentId,omitempty"`
	ChainKey        string `json:"chainKey,omitempty"`
	ContractAddress string `json:"contractAddress,omitempty"`
	SourceCode      string `json:"sourceCode,omitempty"`
	ContractName    string `json:"contractName,omitempty"`
}

// VerifyResult is the outcome of a verification check. It is purely
// diagnostic; recorded verification state is owned by the background
// worker and is never changed here.
type VerifyResult struct {
	Success  bool     `json:"success"`
	Level1   bool     `json:"level1"`
	Level3   bool     `json:"level3"`
	Failures []string `json:"failures,omitempty"`
	Details  *Details `json:"details,omitempty"`
}

// Details carries the bytecode evidence behind a check.
type Details struct {
	OnChainHash     string `json:"onChainHash,omitempty"`
	CompiledHash    string `json:"compiledHash,omitempty"`
	OnChainLength   int    `json:"onChainLength"`
	CompiledLength  int    `json:"compiledLength"`
	ChainKey        string `json:"chainKey"`
	ContractAddress string `json:"contractAddress"`
}
