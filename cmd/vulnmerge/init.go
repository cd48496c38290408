package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/vulnmerge/internal/config"
)

//go:embed templates/vulnmerge.yaml
var configTemplate embed.FS

// configTemplatePath is the path of the template inside configTemplate.
const configTemplatePath = "templates/vulnmerge.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new vulnmerge configuration file",
		Long: `Initialize creates a new .vulnmerge configuration file in the current directory.

The generated file documents every setting with commented examples:
- The decoding ladder for csv and html inputs
- Extra header synonyms per scanner family
- Extra risk labels and plugin reference text
- The dangerous port list

Examples:
  # Create .vulnmerge in current directory
  vulnmerge init

  # Create config file at a specific path
  vulnmerge init -o myconfig.yaml

  # Force overwrite existing file
  vulnmerge init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(configTemplatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(outputPath, content, 0o600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to adapt vulnmerge to your scanners, for example:")
	fmt.Fprintln(out, "  - Header names your exports use")
	fmt.Fprintln(out, "  - Risk labels in your language")
	fmt.Fprintln(out, "  - Ports that must never be exposed")
	return nil
}
