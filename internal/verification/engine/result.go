// Package engine implements bytecode verification: it proves that a claimed
// source file produced the bytecode deployed at an on-chain address.
package engine

import "fmt"

// FailureKind is a closed set of verification failure categories. Callers
// branch on the kind; the rendered string form is what gets persisted on
// the deployment record for human consumption.
type FailureKind int

const (
	// FailContractNotFound means no code exists at the address (level 1).
	FailContractNotFound FailureKind = iota
	// FailRPC means the level 1 bytecode fetch errored. Not retried within
	// a single verification attempt; the worker retries whole attempts.
	FailRPC
	// FailCompile means the claimed source did not compile.
	FailCompile
	// FailBytecodeMismatch means compiled bytecode differs from on-chain
	// bytecode after metadata stripping.
	FailBytecodeMismatch
	// FailNoSource means the deployment never recorded a source reference.
	FailNoSource
	// FailSourceNotFound means the source reference points at nothing.
	FailSourceNotFound
)

// Tag returns the stable machine-readable tag for the failure kind.
func (k FailureKind) Tag() string {
	switch k {
	case FailContractNotFound:
		return "CONTRACT_NOT_FOUND"
	case FailRPC:
		return "LEVEL1_ERROR"
	case FailCompile:
		return "COMPILE_ERROR"
	case FailBytecodeMismatch:
		return "BYTECODE_MISMATCH"
	case FailNoSource:
		return "NO_SOURCE_CODE"
	case FailSourceNotFound:
		return "SOURCE_CODE_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Failure is one verification failure: a kind plus optional detail.
type Failure struct {
	Kind   FailureKind
	Detail string
}

func (f Failure) String() string {
	if f.Detail == "" {
		return f.Kind.Tag()
	}
	return fmt.Sprintf("%s: %s", f.Kind.Tag(), f.Detail)
}

// Request describes one verification attempt.
type Request struct {
	ContractAddress string
	ChainKey        string
	SourceCode      string
	// ContractName selects the contract when the source declares several;
	// empty means derive it from the source.
	ContractName string
}

// Result is the outcome of one verification attempt. Level1 is the
// existence check; Level3 is the compile-and-compare check; Success
// requires both. Details are kept for diagnostics and never persisted.
type Result struct {
	Success  bool
	Level1   bool
	Level3   bool
	Failures []Failure
	Details  Details
}

// FailureMessage joins all failures into one human-readable string.
func (r *Result) FailureMessage() string {
	if len(r.Failures) == 0 {
		return ""
	}
	msg := ""
	for i, f := range r.Failures {
		if i > 0 {
			msg += "; "
		}
		msg += f.String()
	}
	return msg
}

// HasFailure reports whether the result contains a failure of the given kind.
func (r *Result) HasFailure(kind FailureKind) bool {
	for _, f := range r.Failures {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Details carries both sides of the comparison for auditability, even on
// failure, to support near-miss diagnostics such as constructor-argument
// or compiler-flag mismatches.
type Details struct {
	OnChainBytecode  string
	CompiledBytecode string
	OnChainHash      string
	CompiledHash     string
}
