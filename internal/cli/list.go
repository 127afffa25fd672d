package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentbook/agentbook/pkg/client"
)

func createListCmd() *cobra.Command {
	var status string
	var chain string
	var agent string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		Long: `List deployments recorded in the registry.

EXAMPLES:
  # List recent deployments
  agentbook list

  # List only verified deployments
  agentbook list --status verified

  # List deployments on a chain
  agentbook list --chain bsc-mainnet

  # List a specific agent's deployments
  agentbook list --agent deploy-bot

  # Output as JSON
  agentbook list --json
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(status, chain, agent, limit, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by verification status (pending, verified, failed)")
	cmd.Flags().StringVar(&chain, "chain", "", "filter by chain key")
	cmd.Flags().StringVar(&agent, "agent", "", "filter by agent ID or name")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of deployments to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func runList(status, chain, agent string, limit int, jsonOutput bool) error {
	c := client.New(getServer(), getAPIKey())

	resp, err := c.ListDeployments(context.Background(), client.ListDeploymentsOptions{
		Status:   status,
		ChainKey: chain,
		AgentID:  agent,
		Limit:    limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list deployments: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"deployments": resp.Data,
			"count":       len(resp.Data),
			"hasMore":     resp.Pagination.HasMore,
			"nextCursor":  resp.Pagination.NextCursor,
		})
	}

	if len(resp.Data) == 0 {
		fmt.Println("No deployments found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCONTRACT\tCHAIN\tADDRESS\tSTATUS\tCREATED")
	for _, d := range resp.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.ContractName, d.ChainKey, truncateAddress(d.ContractAddress), d.VerificationStatus, d.CreatedAt)
	}
	w.Flush()

	if resp.Pagination.HasMore {
		fmt.Printf("\n(showing %d deployments, more available; next cursor %s)\n", len(resp.Data), resp.Pagination.NextCursor)
	}

	return nil
}

// truncateAddress shortens a 0x address to its first and last hex digits
func truncateAddress(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:10] + "..." + addr[len(addr)-4:]
}
