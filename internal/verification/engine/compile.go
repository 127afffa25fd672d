package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Compiler invokes solc in standard JSON mode. Settings mirror what the
// deployment tooling uses, so a faithful source produces byte-identical
// runtime code up to the metadata trailer.
type Compiler struct {
	SolcPath      string
	Version       string // long form, e.g. "v0.8.20+commit.a1b79de6"
	OptimizerRuns int
	EVMVersion    string
}

// NewCompiler creates a compiler with the platform defaults.
func NewCompiler(solcPath, version string, optimizerRuns int) *Compiler {
	if solcPath == "" {
		solcPath = "solc"
	}
	if version == "" {
		version = "v0.8.20+commit.a1b79de6"
	}
	if optimizerRuns <= 0 {
		optimizerRuns = 200
	}
	return &Compiler{
		SolcPath:      solcPath,
		Version:       version,
		OptimizerRuns: optimizerRuns,
		EVMVersion:    "paris",
	}
}

// CompileResult holds the compiled artifacts as hex strings.
type CompileResult struct {
	Bytecode        string
	RuntimeBytecode string
	CompilerVersion string
}

var contractNameRe = regexp.MustCompile(`contract\s+(\w+)`)

// ExtractContractName finds the first contract declaration in source.
func ExtractContractName(source string) (string, error) {
	m := contractNameRe.FindStringSubmatch(source)
	if m == nil {
		return "", fmt.Errorf("could not find contract name in source file")
	}
	return m[1], nil
}

// solc standard JSON input/output shapes, narrowed to what we read.

type solcInput struct {
	Language string                `json:"language"`
	Sources  map[string]solcSource `json:"sources"`
	Settings solcSettings          `json:"settings"`
}

type solcSource struct {
	Content string `json:"content"`
}

type solcSettings struct {
	Optimizer       solcOptimizer       `json:"optimizer"`
	EVMVersion      string              `json:"evmVersion"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

type solcOptimizer struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

type solcOutput struct {
	Errors    []solcDiagnostic                    `json:"errors"`
	Contracts map[string]map[string]solcContract  `json:"contracts"`
}

type solcDiagnostic struct {
	Severity         string `json:"severity"`
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
}

type solcContract struct {
	EVM struct {
		Bytecode struct {
			Object string `json:"object"`
		} `json:"bytecode"`
		DeployedBytecode struct {
			Object string `json:"object"`
		} `json:"deployedBytecode"`
	} `json:"evm"`
}

// Compile compiles a single-file Solidity source and returns the creation
// and runtime bytecode of the named contract. An empty contractName is
// derived from the first contract declaration in the source.
func (c *Compiler) Compile(ctx context.Context, source, contractName string) (*CompileResult, error) {
	if contractName == "" {
		name, err := ExtractContractName(source)
		if err != nil {
			return nil, err
		}
		contractName = name
	}

	sourceUnit := contractName + ".sol"
	input := solcInput{
		Language: "Solidity",
		Sources: map[string]solcSource{
			sourceUnit: {Content: source},
		},
		Settings: solcSettings{
			Optimizer:  solcOptimizer{Enabled: true, Runs: c.OptimizerRuns},
			EVMVersion: c.EVMVersion,
			OutputSelection: map[string]map[string][]string{
				"*": {"*": {"evm.bytecode", "evm.deployedBytecode"}},
			},
		},
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encoding compiler input: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.SolcPath, "--standard-json")
	cmd.Stdin = bytes.NewReader(inputJSON)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("running solc: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	var output solcOutput
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		return nil, fmt.Errorf("decoding compiler output: %w", err)
	}

	var compileErrors []string
	for _, diag := range output.Errors {
		if diag.Severity == "error" {
			msg := diag.FormattedMessage
			if msg == "" {
				msg = diag.Message
			}
			compileErrors = append(compileErrors, strings.TrimSpace(msg))
		}
	}
	if len(compileErrors) > 0 {
		return nil, fmt.Errorf("compilation errors: %s", strings.Join(compileErrors, ", "))
	}

	artifact, err := findContract(output.Contracts, contractName)
	if err != nil {
		return nil, err
	}

	bytecode := artifact.EVM.Bytecode.Object
	runtime := artifact.EVM.DeployedBytecode.Object
	if bytecode == "" || runtime == "" {
		return nil, fmt.Errorf("compilation succeeded but no bytecode generated")
	}

	return &CompileResult{
		Bytecode:        normalizeHex(bytecode),
		RuntimeBytecode: normalizeHex(runtime),
		CompilerVersion: c.Version,
	}, nil
}

// findContract searches every source unit for the named contract; imports
// can scatter contracts across units. When exactly one contract exists in
// one unit it is used as a fallback regardless of name.
func findContract(contracts map[string]map[string]solcContract, name string) (*solcContract, error) {
	for _, unit := range contracts {
		if artifact, ok := unit[name]; ok {
			return &artifact, nil
		}
	}
	if len(contracts) == 1 {
		for _, unit := range contracts {
			if len(unit) == 1 {
				for _, artifact := range unit {
					return &artifact, nil
				}
			}
		}
	}
	var available []string
	for _, unit := range contracts {
		for contractName := range unit {
			available = append(available, contractName)
		}
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("contract %q not found in source", name)
	}
	return nil, fmt.Errorf("contract %q not found in source, available: %s", name, strings.Join(available, ", "))
}
