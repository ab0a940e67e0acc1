package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/openaccesstools/oar/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get or set workspace configuration",
}

var configGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the workspace configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Keys:
  registry.mode  sqlite or http
  registry.path  sqlite database path
  registry.url   http API base URL
  similarity     jaro-winkler, jaro, sorensen-dice or levenshtein
  force          true or false
  log_level      debug, info, warn or error`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

// UpdateResponse is the response for config set.
type UpdateResponse struct {
	Status string `json:"status"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

func loadWorkspaceConfig() (string, *config.Config) {
	root, exitCode := getWorkRoot()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
	wsRoot, err := config.FindWorkspace(root)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	cfg, err := config.Load(wsRoot)
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	return wsRoot, cfg
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	_, cfg := loadWorkspaceConfig()
	if humanOutput {
		fmt.Printf("registry.mode: %s\n", cfg.Registry.Mode)
		if cfg.Registry.Path != "" {
			fmt.Printf("registry.path: %s\n", cfg.Registry.Path)
		}
		if cfg.Registry.URL != "" {
			fmt.Printf("registry.url:  %s\n", cfg.Registry.URL)
		}
		fmt.Printf("similarity:    %s\n", cfg.Similarity)
		fmt.Printf("force:         %t\n", cfg.Force)
		fmt.Printf("log_level:     %s\n", cfg.LogLevel)
	} else {
		outputJSON(cfg)
	}
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	wsRoot, cfg := loadWorkspaceConfig()
	key, value := args[0], args[1]

	switch key {
	case "registry.mode":
		cfg.Registry.Mode = value
	case "registry.path":
		cfg.Registry.Path = value
	case "registry.url":
		cfg.Registry.URL = value
	case "similarity":
		cfg.Similarity = value
	case "force":
		b, err := strconv.ParseBool(value)
		if err != nil {
			exitWithError(ExitError, "invalid boolean %q", value)
		}
		cfg.Force = b
	case "log_level":
		cfg.LogLevel = value
	default:
		exitWithError(ExitError, "unknown config key: %s", key)
	}

	if err := cfg.Validate(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	if err := cfg.Save(wsRoot); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		fmt.Printf("%s = %s\n", key, value)
	} else {
		outputJSON(UpdateResponse{Status: "updated", Key: key, Value: value})
	}
	return nil
}
