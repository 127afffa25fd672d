package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"agentbook.toml", "ab.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Server    string `toml:"server"`
	Agent     string `toml:"agent,omitempty"`
	Chain     string `toml:"chain,omitempty"`
	SourceDir string `toml:"source_dir,omitempty"`
}

// ServerConfig is the global server configuration (stored in ~/.agentbook/config.yaml)
type ServerConfig struct {
	Server string `yaml:"server"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var agent string
	var chain string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create an agentbook.toml configuration file in the current directory.

This file stores project-specific settings like the server URL, the
agent name, and the default chain for deployments.

EXAMPLES:
  # Create config with default server
  agentbook config init

  # Create config for a specific server and chain
  agentbook config init --server https://agentbook.example.com --chain bsc-mainnet

  # Overwrite existing config
  agentbook config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(serverURL, agent, chain, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&agent, "agent", "", "agent name (defaults to directory name)")
	cmd.Flags().StringVar(&chain, "chain", "bsc-testnet", "default chain key")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows both the local project config (agentbook.toml) and the global config from ~/.agentbook/config.yaml.

EXAMPLES:
  agentbook config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigInit(serverURL, agent, chain string, force bool) error {
	configPath := "agentbook.toml"

	// Check if any config file already exists
	for _, cfgFile := range projectConfigFiles {
		if _, err := os.Stat(cfgFile); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", cfgFile)
		}
	}

	// Default agent name to current directory
	if agent == "" {
		cwd, err := os.Getwd()
		if err == nil {
			agent = filepath.Base(cwd)
		}
	}

	// Generate TOML config
	content := fmt.Sprintf(`# Agentbook project configuration

server = "%s"
agent = "%s"
chain = "%s"

# Directory holding contract sources (used by 'agentbook deploy --source')
# source_dir = "src"
`, serverURL, agent, chain)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Server: %s\n", serverURL)
	fmt.Printf("  Agent:  %s\n", agent)
	fmt.Printf("  Chain:  %s\n", chain)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s to customize settings\n", configPath)
	fmt.Println("  2. Run 'agentbook register --name", agent, "--wallet 0x...' to register the agent")
	fmt.Println("  3. Run 'agentbook deploy' after each contract deployment")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	// 1. Command line flags
	fmt.Println("1. Command line flags")
	fmt.Println("   --server, --api-key, --config")
	fmt.Println()

	// 2. Environment variables
	fmt.Println("2. Environment variables")
	serverEnv := os.Getenv("AGENTBOOK_SERVER")
	keyEnv := os.Getenv("AGENTBOOK_API_KEY")
	if serverEnv != "" {
		fmt.Printf("   AGENTBOOK_SERVER=%s\n", serverEnv)
	} else {
		fmt.Println("   AGENTBOOK_SERVER=(not set)")
	}
	if keyEnv != "" {
		fmt.Printf("   AGENTBOOK_API_KEY=%s\n", maskAPIKey(keyEnv))
	} else {
		fmt.Println("   AGENTBOOK_API_KEY=(not set)")
	}
	fmt.Println()

	// 3. Local project config
	fmt.Println("3. Local project config (agentbook.toml or ab.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		fmt.Printf("   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Printf("   server: %s\n", projectConfig.Server)
		}
		if projectConfig.Agent != "" {
			fmt.Printf("   agent: %s\n", projectConfig.Agent)
		}
		if projectConfig.Chain != "" {
			fmt.Printf("   chain: %s\n", projectConfig.Chain)
		}
		if projectConfig.SourceDir != "" {
			fmt.Printf("   source_dir: %s\n", projectConfig.SourceDir)
		}
	}
	fmt.Println()

	// 4. Global config
	fmt.Println("4. Global config (~/.agentbook/config.yaml)")
	globalPath := filepath.Join(credentialsDir(), "config.yaml")
	globalData, err := os.ReadFile(globalPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		var globalConfig ServerConfig
		if err := yaml.Unmarshal(globalData, &globalConfig); err == nil {
			if globalConfig.Server != "" {
				fmt.Printf("   server: %s\n", globalConfig.Server)
			}
		}
	}
	fmt.Println()

	// 5. Credentials
	fmt.Println("5. Credentials (~/.agentbook/credentials)")
	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		if len(creds.Servers) == 0 {
			fmt.Println("   (no credentials stored)")
		} else {
			for server, cred := range creds.Servers {
				fmt.Printf("   %s: %s\n", server, maskAPIKey(cred.APIKey))
			}
		}
	}
	fmt.Println()

	// Effective config
	fmt.Println("Effective configuration:")
	fmt.Printf("   Server:  %s\n", getServer())
	if key := getAPIKey(); key != "" {
		fmt.Printf("   API Key: %s\n", maskAPIKey(key))
	} else {
		fmt.Println("   API Key: (not set)")
	}

	return nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	// If --config flag was provided, use that directly
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	// Search for config files in order
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but returns errors for parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Show actionable errors (parse failures)
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}
