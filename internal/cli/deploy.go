package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentbook/agentbook/pkg/client"
)

func createDeployCmd() *cobra.Command {
	var name string
	var address string
	var chain string
	var txHash string
	var sourcePath string
	var abiPath string
	var yes bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Record a contract deployment",
		Long: `Record a deployed contract with the registry.

The registry verifies the deployment in the background: it checks that
bytecode exists at the address and, when source is provided, recompiles
the source and compares the bytecode hashes.

Requires authentication (run 'agentbook register' or 'agentbook auth login' first).

EXAMPLES:
  # Record a deployment with source and ABI
  agentbook deploy --name Token --chain bsc-testnet \
    --address 0x1234...abcd --tx-hash 0xdead...beef \
    --source src/Token.sol --abi out/Token.abi.json

  # Record without source (limited to existence checks)
  agentbook deploy --name Token --chain bsc-mainnet \
    --address 0x1234...abcd --tx-hash 0xdead...beef \
    --abi out/Token.abi.json

  # Use the default chain from agentbook.toml
  agentbook deploy --name Token --address 0x1234...abcd \
    --tx-hash 0xdead...beef --abi out/Token.abi.json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(name, address, chain, txHash, sourcePath, abiPath, yes)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "contract name (required)")
	cmd.Flags().StringVar(&address, "address", "", "deployed contract address (required)")
	cmd.Flags().StringVar(&chain, "chain", "", "chain key (default from config)")
	cmd.Flags().StringVar(&txHash, "tx-hash", "", "deployment transaction hash (required)")
	cmd.Flags().StringVar(&sourcePath, "source", "", "path to the Solidity source file")
	cmd.Flags().StringVar(&abiPath, "abi", "", "path to the ABI JSON file (required)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompts")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("tx-hash")
	_ = cmd.MarkFlagRequired("abi")

	return cmd
}

func runDeploy(name, address, chain, txHash, sourcePath, abiPath string, yes bool) error {
	key := getAPIKey()
	if key == "" {
		return fmt.Errorf("no API key configured (run 'agentbook auth login' or set AGENTBOOK_API_KEY)")
	}

	// Fall back to the project config chain
	if chain == "" {
		if config := loadProjectConfigSilent(); config != nil && config.Chain != "" {
			chain = config.Chain
		}
	}
	if chain == "" {
		return fmt.Errorf("no chain specified (use --chain or set 'chain' in agentbook.toml)")
	}

	abiData, err := os.ReadFile(abiPath)
	if err != nil {
		return fmt.Errorf("failed to read ABI: %w", err)
	}
	if !json.Valid(abiData) {
		return fmt.Errorf("ABI file %s is not valid JSON", abiPath)
	}

	var sourceCode string
	if sourcePath != "" {
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
		sourceCode = string(data)
	} else if !yes {
		fmt.Println("⚠️  No source file provided. Without source the registry can only")
		fmt.Println("   confirm that bytecode exists at the address; it cannot verify")
		fmt.Println("   that the bytecode matches any particular source.")
		if !confirm("Record anyway?") {
			return fmt.Errorf("aborted")
		}
	}

	c := client.New(getServer(), key)
	dep, err := c.RecordDeployment(context.Background(), client.DeploymentRequest{
		ContractName:    name,
		ContractAddress: address,
		ChainKey:        chain,
		TxHash:          txHash,
		SourceCode:      sourceCode,
		ABI:             string(abiData),
	})
	if err != nil {
		return fmt.Errorf("failed to record deployment: %w", err)
	}

	fmt.Printf("✅ Recorded %s on %s\n", dep.ContractName, dep.ChainKey)
	fmt.Printf("   ID:      %s\n", dep.ID)
	fmt.Printf("   Address: %s\n", dep.ContractAddress)
	fmt.Printf("   Status:  %s\n", dep.VerificationStatus)
	if dep.ExplorerURL != "" {
		fmt.Printf("   Explorer: %s\n", dep.ExplorerURL)
	}
	fmt.Println()
	fmt.Println("Verification runs in the background. Check progress with:")
	fmt.Printf("   agentbook status %s\n", dep.ID)

	return nil
}

// confirm prompts the user for a yes/no answer, defaulting to no
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
