package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for vulnmerge.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vulnmerge",
		Short: "Normalize and merge vulnerability scanner exports",
		Long: `vulnmerge reads the exports of several vulnerability scanners, maps their
columns onto one record shape, merges duplicate findings and writes an xlsx
workbook with every merged record and the records at or above a risk level.

Inputs are grouped by scanner family: host assessment, web application,
vulnerability management and port scan. Every run is kept in a local history
database so that two runs can be compared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewMergeCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
