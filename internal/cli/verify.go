package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentbook/agentbook/pkg/client"
)

func createVerifyCmd() *cobra.Command {
	var chain string
	var address string
	var name string
	var sourcePath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify [deployment-id]",
		Short: "Run an on-demand verification check",
		Long: `Run an on-demand verification check against the registry.

Checks that bytecode exists at the contract address and, when source is
available, that recompiling it reproduces the on-chain bytecode. The
check is read-only; it does not change the recorded verification status.

Pass a deployment ID to check a recorded deployment, or use --chain,
--address, --source and --name to check an arbitrary contract.

EXAMPLES:
  # Check a recorded deployment
  agentbook verify 9f2c1a34-...

  # Check an arbitrary contract against local source
  agentbook verify --chain bsc-mainnet --address 0x1234...abcd \
    --source src/Token.sol --name Token

  # Check only that bytecode exists at an address
  agentbook verify --chain bsc-mainnet --address 0x1234...abcd
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}
			return runVerify(id, chain, address, name, sourcePath, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&chain, "chain", "", "chain key (for ad-hoc checks)")
	cmd.Flags().StringVar(&address, "address", "", "contract address (for ad-hoc checks)")
	cmd.Flags().StringVar(&name, "name", "", "contract name (for ad-hoc source checks)")
	cmd.Flags().StringVar(&sourcePath, "source", "", "path to the Solidity source file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runVerify(id, chain, address, name, sourcePath string, jsonOutput bool) error {
	req := client.VerifyRequest{DeploymentID: id}
	if id == "" {
		if chain == "" || address == "" {
			return fmt.Errorf("ad-hoc checks need --chain and --address (or pass a deployment ID)")
		}
		req.ChainKey = chain
		req.ContractAddress = address
		req.ContractName = name
		if sourcePath != "" {
			data, err := os.ReadFile(sourcePath)
			if err != nil {
				return fmt.Errorf("failed to read source: %w", err)
			}
			req.SourceCode = string(data)
		}
	}

	c := client.New(getServer(), getAPIKey())
	result, err := c.Verify(context.Background(), req)
	if err != nil {
		return fmt.Errorf("verification request failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Success {
		fmt.Println("✅ VERIFIED")
	} else {
		fmt.Println("❌ NOT VERIFIED")
	}
	fmt.Printf("   Bytecode exists: %s\n", yesNo(result.Level1))
	fmt.Printf("   Bytecode match:  %s\n", yesNo(result.Level3))
	for _, f := range result.Failures {
		fmt.Printf("   Failure: %s\n", f)
	}
	if d := result.Details; d != nil {
		fmt.Println()
		fmt.Printf("   Chain:      %s\n", d.ChainKey)
		fmt.Printf("   Address:    %s\n", d.ContractAddress)
		fmt.Printf("   On-chain:   %d bytes", d.OnChainLength)
		if d.OnChainHash != "" {
			fmt.Printf("  %s", d.OnChainHash)
		}
		fmt.Println()
		if d.CompiledLength > 0 || d.CompiledHash != "" {
			fmt.Printf("   Compiled:   %d bytes", d.CompiledLength)
			if d.CompiledHash != "" {
				fmt.Printf("  %s", d.CompiledHash)
			}
			fmt.Println()
		}
	}

	if !result.Success {
		os.Exit(1)
	}
	return nil
}
