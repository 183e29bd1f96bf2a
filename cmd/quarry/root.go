package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	flagDB    string
	flagScope string
)

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Code intelligence retrieval backend with hybrid search and learned ranking",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (built %s, sqlite %s/%s)", version, buildTime, storage.BuildMode, storage.DriverName)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database directory (default ~/.quarry/index)")
	rootCmd.PersistentFlags().StringVar(&flagScope, "scope", "", "project scope (default: base name of the target path)")
}

// resolveDBPath expands the database directory, creating it when needed
func resolveDBPath() (string, error) {
	dbPath := flagDB
	if dbPath == "" {
		dbPath = os.Getenv("QUARRY_DB_PATH")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".quarry", "index")
	}
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return dbPath, nil
}

// resolveScope falls back to the base name of path when --scope is unset
func resolveScope(path string) string {
	if flagScope != "" {
		return flagScope
	}
	return filepath.Base(path)
}
