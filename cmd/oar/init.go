package main

import (
	"fmt"
	"os"

	"github.com/openaccesstools/oar/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an oar workspace in the current directory",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	root, exitCode := getWorkRoot()
	if exitCode != 0 {
		os.Exit(exitCode)
	}

	if config.IsWorkspace(root) {
		exitWithError(ExitConfigError, "workspace already initialized at %s", config.OarPath(root))
	}

	if err := os.MkdirAll(config.OarPath(root), 0755); err != nil {
		exitWithError(ExitError, "creating workspace directory: %v", err)
	}
	if err := config.Default().Save(root); err != nil {
		exitWithError(ExitError, "writing default config: %v", err)
	}

	if humanOutput {
		fmt.Printf("Initialized oar workspace in %s\n", config.OarPath(root))
	} else {
		outputJSON(StatusResponse{Status: "initialized", Path: config.OarPath(root)})
	}
	return nil
}
