// Package validation provides input validation for Agentbook.
package validation

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/agentbook/agentbook/internal/chains"
)

// Agent name validation
// Simple names: lowercase alphanumeric with hyphens, 2-64 chars
var agentNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,62}[a-z0-9]$`)

// Contract names follow Solidity identifier rules.
var contractNameRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Solc long version strings look like "v0.8.20+commit.a1b79de6".
var solcVersionRegex = regexp.MustCompile(`^v?(\d+\.\d+\.\d+)(\+commit\.[0-9a-f]+)?$`)

// ValidateAgentName validates an agent name
func ValidateAgentName(name string) error {
	if len(name) < 2 {
		return errors.New("agent name too short (min 2 chars)")
	}
	if len(name) > 64 {
		return errors.New("agent name too long (max 64 chars)")
	}
	if !agentNameRegex.MatchString(name) {
		return errors.New("invalid agent name: must be lowercase alphanumeric with hyphens, starting with a letter")
	}
	// Prevent path traversal and consecutive hyphens
	if strings.Contains(name, "..") || strings.Contains(name, "--") {
		return errors.New("invalid characters in agent name")
	}
	return nil
}

// ValidateContractName validates a Solidity contract name
func ValidateContractName(name string) error {
	if name == "" {
		return errors.New("contract name cannot be empty")
	}
	if len(name) > 128 {
		return errors.New("contract name too long (max 128 chars)")
	}
	if !contractNameRegex.MatchString(name) {
		return errors.New("invalid contract name: must be a valid Solidity identifier")
	}
	return nil
}

// ValidateCompilerVersion validates a solc version string such as
// "0.8.20" or "v0.8.20+commit.a1b79de6"
func ValidateCompilerVersion(v string) error {
	m := solcVersionRegex.FindStringSubmatch(v)
	if m == nil {
		return errors.New("invalid compiler version: expected X.Y.Z or vX.Y.Z+commit.<hash>")
	}
	// semver library expects version to start with 'v'
	if !semver.IsValid("v" + m[1]) {
		return errors.New("invalid compiler version: not a valid semantic version")
	}
	return nil
}

// NormalizeCompilerVersion strips the leading 'v' and any commit suffix,
// returning the bare X.Y.Z form.
func NormalizeCompilerVersion(v string) string {
	m := solcVersionRegex.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	return m[1]
}

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	// Check hex characters
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateChainKey validates a chain key against the supported catalog
func ValidateChainKey(key string) error {
	if key == "" {
		return errors.New("chain key cannot be empty")
	}
	if !chains.IsSupported(key) {
		return errors.New("unsupported chain: " + key)
	}
	return nil
}

// ValidateTxHash validates a transaction hash
func ValidateTxHash(hash string) error {
	if len(hash) != 66 {
		return errors.New("invalid tx hash length: must be 66 characters (0x + 64 hex)")
	}
	if !strings.HasPrefix(hash, "0x") {
		return errors.New("invalid tx hash: must start with 0x")
	}
	for _, c := range hash[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid tx hash: contains non-hex characters")
		}
	}
	return nil
}
