package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "siivo",
		Short: "Stale block-storage sweeper",
		Long: `Siivo - Stale Block-Storage Sweeper

Siivo finds volumes and snapshots that are older than your retention
thresholds and not protected by naming or tagging conventions, then
deletes them. Dry-run is the default: nothing is deleted until you
explicitly ask for it.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`Siivo {{.Version}} - Stale Block-Storage Sweeper
`)
}
