// Package main is the dlctl command line front end over the engine
// package: add one or more URLs to a Scheduler, watch them live in a
// bubbletea view, and browse the terminal-state history ledger.
//
// Grounded on cmd/root.go's rootCmd/Execute shape and lock-then-run
// structure; simplified from its multi-process daemon+HTTP-server design
// since this module's Scheduler is in-process only (see DESIGN.md).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "dlctl",
	Short:   "A multi-threaded HTTP file downloader",
	Long:    "dlctl splits an HTTP download across concurrent segment workers and shows live progress.",
	Version: version,
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(historyCmd)
}

// dlctlDir returns (creating if needed) the per-user state directory that
// holds the lockfile and the history database, the same role the
// teacher's config.GetSurgeDir plays for ~/.surge.
func dlctlDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".dlctl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
