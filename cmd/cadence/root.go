package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cadence-reader/cadence/version"
)

var (
	cfgFile string
	homeDir string
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "EPUB ingestion and reading-density enrichment pipeline",
	Long: `Cadence ingests EPUB books and annotates their word streams with a
reading-density signal used to modulate playback speed in a speed-reading UI.

The pipeline includes:
  - EPUB container parsing with spine-ordered text extraction
  - Sentence-level density scoring through a local inference backend
  - Chunk summaries and junk classification
  - Cursor-driven prioritization so the text being read is enriched first`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.cadence/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "cadence home directory (default: ~/.cadence)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

// resolveHome returns the cadence home directory, creating it if needed.
func resolveHome() (string, error) {
	dir := homeDir
	if dir == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(userHome, ".cadence")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create home directory: %w", err)
	}
	return dir, nil
}

// storePath resolves the configured store path against the home directory.
func storePath(configured string) (string, error) {
	if filepath.IsAbs(configured) {
		return configured, nil
	}
	home, err := resolveHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configured), nil
}
