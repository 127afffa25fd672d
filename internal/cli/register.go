package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentbook/agentbook/pkg/client"
)

func createRegisterCmd() *cobra.Command {
	var name string
	var description string
	var wallet string
	var save bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent",
		Long: `Register an agent with the registry and receive an API key.

The API key is shown exactly once. Store it securely; it is required
for recording deployments.

EXAMPLES:
  # Register an agent
  agentbook register --name deploy-bot --wallet 0x1234...abcd

  # Register with a description
  agentbook register --name deploy-bot --wallet 0x1234...abcd \
    --description "Automated DEX deployer"

  # Register without saving the key to ~/.agentbook/credentials
  agentbook register --name deploy-bot --wallet 0x1234...abcd --save=false
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(name, description, wallet, save)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "agent name (required, lowercase with hyphens)")
	cmd.Flags().StringVar(&description, "description", "", "agent description")
	cmd.Flags().StringVar(&wallet, "wallet", "", "agent wallet address (required)")
	cmd.Flags().BoolVar(&save, "save", true, "save the API key to the credentials file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("wallet")

	return cmd
}

func runRegister(name, description, wallet string, save bool) error {
	serverURL := getServer()
	c := client.New(serverURL, "")

	resp, err := c.RegisterAgent(context.Background(), client.RegisterAgentRequest{
		Name:          name,
		Description:   description,
		WalletAddress: wallet,
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	fmt.Printf("✅ Registered agent '%s'\n", resp.Name)
	fmt.Printf("   ID:     %s\n", resp.ID)
	fmt.Printf("   Wallet: %s\n", resp.WalletAddress)
	fmt.Println()
	fmt.Println("API key (shown only once):")
	fmt.Println()
	fmt.Printf("   %s\n", resp.APIKey)
	fmt.Println()

	if save {
		if err := saveCredential(serverURL, resp.APIKey); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to save credentials: %v\n", err)
			fmt.Println("Save the key manually, e.g.:")
			fmt.Printf("   export AGENTBOOK_API_KEY=%s\n", resp.APIKey)
		} else {
			fmt.Printf("Saved to %s\n", credentialsFilePath())
		}
	} else {
		fmt.Println("Use it via the AGENTBOOK_API_KEY environment variable or --api-key flag.")
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  agentbook deploy --name Token --chain bsc-testnet --address 0x... --tx-hash 0x... --abi abi.json")

	return nil
}
