package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentbook/agentbook/pkg/client"
)

func createAbiCmd() *cobra.Command {
	var output string
	var source bool

	cmd := &cobra.Command{
		Use:   "abi <deployment-id>",
		Short: "Fetch a deployment's ABI or source",
		Long: `Fetch the ABI (or Solidity source) of a recorded deployment.

By default the ABI is written to stdout, so it can be piped into other
tools. Use --output to write to a file, and --source to fetch the
Solidity source instead of the ABI.

EXAMPLES:
  # Print the ABI
  agentbook abi 9f2c1a34-...

  # Save the ABI to a file
  agentbook abi 9f2c1a34-... --output Token.abi.json

  # Fetch the source instead
  agentbook abi 9f2c1a34-... --source --output Token.sol
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAbi(args[0], output, source)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&source, "source", false, "fetch the Solidity source instead of the ABI")

	return cmd
}

func runAbi(id, output string, source bool) error {
	c := client.New(getServer(), getAPIKey())
	ctx := context.Background()

	var data []byte
	var err error
	if source {
		data, err = c.GetSource(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch source: %w", err)
		}
	} else {
		raw, err := c.GetABI(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch ABI: %w", err)
		}
		data = raw
	}

	if output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}

	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d bytes to %s\n", len(data), output)
	return nil
}
