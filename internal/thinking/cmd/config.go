package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rand/thinkingserver/internal/thinking/config"
)

func init() {
	configShowCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	configShowCmd.Flags().BoolP("yaml", "y", false, "Output as YAML")

	configCmd.AddCommand(configSchemaCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for inspecting the thinking server's effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	Long:  "Display the runtime limits the server loaded from the environment",
	Example: `
# Show config in human-readable format
thinkingserver config show

# Show config as JSON
thinkingserver config show --json

# Show config as YAML
thinkingserver config show --yaml
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		asYAML, _ := cmd.Flags().GetBool("yaml")

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		if asJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(cfg)
		}

		if asYAML {
			encoder := yaml.NewEncoder(os.Stdout)
			encoder.SetIndent(2)
			return encoder.Encode(cfg)
		}

		fmt.Println("Effective Configuration")
		fmt.Println("=======================")
		fmt.Println()
		fmt.Printf("  Max Thought Length:      %d\n", cfg.MaxThoughtLength)
		fmt.Printf("  Max History Size:        %d\n", cfg.MaxHistorySize)
		fmt.Printf("  Max Thoughts/Min:        %d\n", cfg.MaxThoughtsPerMin)
		fmt.Printf("  Max Thoughts/Branch:     %d\n", cfg.MaxThoughtsPerBranch)
		fmt.Printf("  Cleanup Interval:        %s\n", cfg.CleanupInterval)
		fmt.Printf("  Max Nodes/Tree:          %d\n", cfg.MaxNodesPerTree)
		fmt.Printf("  Max Tree Age:            %s\n", cfg.MaxTreeAge)
		fmt.Printf("  Exploration Constant:    %v\n", cfg.ExplorationConstant)
		fmt.Printf("  Auto Tree Disabled:      %v\n", cfg.DisableAutoTree)
		fmt.Printf("  Thought Logging Disabled: %v\n", cfg.DisableThoughtLogging)
		fmt.Printf("  Max Concurrent Trees:    %d\n", cfg.MaxConcurrentTrees)
		fmt.Println()
		fmt.Println("Blocked Patterns:")
		for _, p := range cfg.BlockedPatterns {
			fmt.Printf("  - %s\n", p)
		}
		return nil
	},
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for the configuration struct",
	Long:  "Reflect config.Config into a JSON Schema document, for editor tooling and documentation",
	Example: `
# Print the config JSON Schema
thinkingserver config schema
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reflector := &jsonschema.Reflector{DoNotReference: true}
		schema := reflector.Reflect(&config.Config{})

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(schema)
	},
}
