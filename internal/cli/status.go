package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentbook/agentbook/pkg/client"
)

func createStatusCmd() *cobra.Command {
	var chain string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <deployment-id | address>",
		Short: "Show deployment verification status",
		Long: `Show a deployment record and its verification status.

The argument is either a deployment ID or a contract address. When an
address is given, --chain selects the chain to look it up on.

EXAMPLES:
  # Look up by deployment ID
  agentbook status 9f2c1a34-...

  # Look up by address
  agentbook status 0x1234...abcd --chain bsc-testnet

  # Output as JSON
  agentbook status 9f2c1a34-... --json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(args[0], chain, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&chain, "chain", "", "chain key (for address lookups)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runStatus(target, chain string, jsonOutput bool) error {
	c := client.New(getServer(), getAPIKey())
	ctx := context.Background()

	var dep *client.Deployment
	var err error
	if strings.HasPrefix(target, "0x") {
		if chain == "" {
			if config := loadProjectConfigSilent(); config != nil && config.Chain != "" {
				chain = config.Chain
			}
		}
		if chain == "" {
			return fmt.Errorf("address lookups need --chain (or 'chain' in agentbook.toml)")
		}
		dep, err = c.GetDeploymentByAddress(ctx, chain, target)
	} else {
		dep, err = c.GetDeployment(ctx, target)
	}
	if err != nil {
		return fmt.Errorf("failed to get deployment: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dep)
	}

	printDeployment(dep)
	return nil
}

func printDeployment(dep *client.Deployment) {
	fmt.Printf("%s %s\n", statusMarker(dep.VerificationStatus), dep.ContractName)
	fmt.Printf("   ID:       %s\n", dep.ID)
	fmt.Printf("   Agent:    %s\n", dep.AgentID)
	fmt.Printf("   Chain:    %s\n", dep.ChainKey)
	fmt.Printf("   Address:  %s\n", dep.ContractAddress)
	fmt.Printf("   Tx:       %s\n", dep.TxHash)
	fmt.Printf("   Status:   %s\n", dep.VerificationStatus)
	if dep.VerificationError != "" {
		fmt.Printf("   Error:    %s\n", dep.VerificationError)
	}
	if dep.BytecodeHash != "" {
		fmt.Printf("   Bytecode: %s\n", dep.BytecodeHash)
	}
	if dep.VerifiedAt != "" {
		fmt.Printf("   Verified: %s\n", dep.VerifiedAt)
	}
	if dep.ExplorerURL != "" {
		fmt.Printf("   Explorer: %s\n", dep.ExplorerURL)
	}
	fmt.Printf("   Source:   %s\n", yesNo(dep.HasSource))
	fmt.Printf("   ABI:      %s\n", yesNo(dep.HasABI))
	fmt.Printf("   Created:  %s\n", dep.CreatedAt)
}

func statusMarker(status string) string {
	switch status {
	case "verified":
		return "✅"
	case "failed":
		return "❌"
	default:
		return "⏳"
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
