package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/arjwright/dlctl/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List or remove terminal downloads from the ledger",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().String("status", "", "filter by status: completed, failed, cancelled")
	historyCmd.Flags().String("rm", "", "remove one entry by ID")
}

func runHistory(cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	rmID, _ := cmd.Flags().GetString("rm")

	dir, err := dlctlDir()
	if err != nil {
		return err
	}
	store, err := history.Open(filepath.Join(dir, "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	if rmID != "" {
		if err := store.Remove(rmID); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", shortID(rmID))
		return nil
	}

	var entries []history.Entry
	if status != "" {
		entries, err = store.ListByStatus(status)
	} else {
		entries, err = store.List()
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no history yet")
		return nil
	}

	for _, e := range entries {
		when := time.Unix(e.CompletedAt, 0).Format(time.RFC3339)
		fmt.Printf("%-8s  %-9s  %-28s  %s\n", shortID(e.ID), e.Status, when, e.URL)
		if e.Error != "" {
			fmt.Printf("          error: %s\n", e.Error)
		}
	}
	return nil
}
