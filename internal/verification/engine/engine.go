package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// SourceCompiler compiles a single-file Solidity source into bytecode.
type SourceCompiler interface {
	Compile(ctx context.Context, source, contractName string) (*CompileResult, error)
}

// Engine runs the two verification levels against a deployment: level 1
// confirms code exists at the address, level 3 recompiles the submitted
// source and compares runtime bytecode after metadata stripping.
type Engine struct {
	fetcher  CodeFetcher
	compiler SourceCompiler
	stripMax int
	logger   *slog.Logger
}

func New(fetcher CodeFetcher, compiler SourceCompiler, stripMax int, logger *slog.Logger) *Engine {
	if stripMax <= 0 {
		stripMax = DefaultMetadataStripMax
	}
	return &Engine{
		fetcher:  fetcher,
		compiler: compiler,
		stripMax: stripMax,
		logger:   logger,
	}
}

// Verify performs the full check. The returned Result is always populated;
// errors in individual levels are recorded as Failures rather than
// returned, so a caller can distinguish terminal from transient outcomes.
func (e *Engine) Verify(ctx context.Context, req Request) Result {
	var res Result

	code, err := e.fetcher.FetchCode(ctx, req.ChainKey, req.ContractAddress)
	if err != nil {
		res.Failures = append(res.Failures, Failure{Kind: FailRPC, Detail: err.Error()})
		return res
	}
	if code == "" || code == "0x" {
		res.Failures = append(res.Failures, Failure{
			Kind:   FailContractNotFound,
			Detail: fmt.Sprintf("no code at %s on %s", req.ContractAddress, req.ChainKey),
		})
		return res
	}
	res.Level1 = true
	res.Details.OnChainBytecode = code

	if req.SourceCode == "" {
		res.Failures = append(res.Failures, Failure{Kind: FailNoSource, Detail: "no source code available"})
		return res
	}

	compiled, err := e.compiler.Compile(ctx, req.SourceCode, req.ContractName)
	if err != nil {
		res.Failures = append(res.Failures, Failure{Kind: FailCompile, Detail: err.Error()})
		return res
	}
	res.Details.CompiledBytecode = compiled.RuntimeBytecode

	cmp := CompareRuntimeBytecode(code, compiled.RuntimeBytecode, e.stripMax)
	res.Details.OnChainHash = cmp.OnChainHash
	res.Details.CompiledHash = cmp.CompiledHash
	if !cmp.Matches {
		res.Failures = append(res.Failures, Failure{
			Kind: FailBytecodeMismatch,
			Detail: fmt.Sprintf("on-chain %d bytes vs compiled %d bytes after metadata strip",
				cmp.OnChainLength, cmp.CompiledLength),
		})
		e.logger.Debug("bytecode mismatch",
			"address", req.ContractAddress,
			"chain", req.ChainKey,
			"on_chain_hash", cmp.OnChainHash,
			"compiled_hash", cmp.CompiledHash)
		return res
	}

	res.Level3 = true
	res.Success = true
	return res
}
