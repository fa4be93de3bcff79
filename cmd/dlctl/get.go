package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arjwright/dlctl/engine/httpstrategy"
	"github.com/arjwright/dlctl/engine/logging"
	"github.com/arjwright/dlctl/engine/scheduler"
	"github.com/arjwright/dlctl/engine/speed"
	"github.com/arjwright/dlctl/engine/task"
	"github.com/arjwright/dlctl/engine/types"
	"github.com/arjwright/dlctl/internal/clipboard"
	"github.com/arjwright/dlctl/internal/history"
	"github.com/arjwright/dlctl/internal/lockfile"
)

var getCmd = &cobra.Command{
	Use:   "get [url]...",
	Short: "Download one or more URLs, splitting each across concurrent segments",
	Long: `Downloads each URL with a bounded pool of segment workers per file and a
bounded number of files running at once.

Use --batch to read URLs from a file (one per line, '#' comments allowed)
instead of, or in addition to, positional arguments. Use --clipboard (or
omit a URL entirely) to read a single URL off the system clipboard.`,
	Args: cobra.ArbitraryArgs,
	RunE: runGet,
}

func init() {
	getCmd.Flags().StringP("output", "o", "", "output file path, or a directory to save into")
	getCmd.Flags().IntP("segments", "s", 4, "maximum segments per file (1-255)")
	getCmd.Flags().IntP("parallel", "p", 3, "maximum files downloading at once")
	getCmd.Flags().StringP("batch", "b", "", "file of URLs to download, one per line")
	getCmd.Flags().Bool("no-watch", false, "print progress to stderr instead of the live view")
	getCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	getCmd.Flags().Bool("clipboard", false, "read the URL from the system clipboard")
}

func readURLsFromFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening batch file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	return urls, scanner.Err()
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		key := strings.TrimRight(u, "/")
		if !seen[key] {
			seen[key] = true
			out = append(out, u)
		}
	}
	return out
}

func runGet(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")
	segments, _ := cmd.Flags().GetInt("segments")
	parallel, _ := cmd.Flags().GetInt("parallel")
	batchFile, _ := cmd.Flags().GetString("batch")
	noWatch, _ := cmd.Flags().GetBool("no-watch")
	verbose, _ := cmd.Flags().GetBool("verbose")
	fromClipboard, _ := cmd.Flags().GetBool("clipboard")

	urls := append([]string{}, args...)
	if batchFile != "" {
		fromFile, err := readURLsFromFile(batchFile)
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if fromClipboard || (len(urls) == 0 && batchFile == "") {
		if u := clipboard.ReadURL(); u != "" {
			urls = append(urls, u)
		} else if fromClipboard {
			return fmt.Errorf("--clipboard given but the clipboard holds no usable URL")
		}
	}
	urls = dedupe(urls)
	if len(urls) == 0 {
		return fmt.Errorf("requires at least one URL argument, --batch file, or --clipboard")
	}

	dir, err := dlctlDir()
	if err != nil {
		return err
	}
	lock, locked, err := lockfile.Acquire(dir)
	if err != nil {
		return fmt.Errorf("checking lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another dlctl get is already running; only one instance may download at a time")
	}
	defer lock.Release()

	var log logging.Logger
	if verbose {
		log = logging.NewStandard(os.Stderr)
	}

	runtime := &types.RuntimeConfig{}
	strat := httpstrategy.New(runtime)

	sched := scheduler.New(strat, runtime, log, scheduler.Options{MaxParallelTasks: parallel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()

	ids := make([]string, 0, len(urls))
	for _, u := range urls {
		h, err := sched.Add(types.DownloadContext{URL: u, TargetPath: targetPathFor(outPath), MaxSegments: segments})
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", u, err)
			continue
		}
		ids = append(ids, h.ID)
	}
	if len(ids) == 0 {
		return fmt.Errorf("no URL could be queued")
	}

	if noWatch {
		runHeadless(ctx, sched, ids)
	} else {
		runWatch(sched, ids)
	}

	return recordHistory(dir, sched, ids)
}

// targetPathFor returns the user's requested output location, or the
// current directory when unset -- the Task resolves a suggested filename
// against whichever one it is.
func targetPathFor(outPath string) string {
	if outPath != "" {
		return outPath
	}
	return "."
}

// runHeadless polls task snapshots and prints progress to stderr, in the
// shape of the teacher's get.go runHeadless loop.
func runHeadless(ctx context.Context, sched *scheduler.Scheduler, ids []string) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	printed := make(map[string]int) // last 10%-bucket printed per task

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		all := sched.GetTasks()
		byID := make(map[string]task.Snapshot, len(all))
		for _, s := range all {
			byID[s.ID] = s
		}

		done := true
		for _, id := range ids {
			snap, ok := byID[id]
			if !ok {
				continue
			}
			if !snap.State.Terminal() {
				done = false
			}
			bucket := snap.Progress / 10
			if bucket > printed[id] {
				printed[id] = bucket
				fmt.Fprintf(os.Stderr, "[%s] %3d%% (%s) - %s\n", shortID(id), snap.Progress, humanBytes(snap.CompletedBytes), snap.Speed.Formatted)
			}
			if snap.State.Terminal() && printed[id] < 11 {
				printed[id] = 11
				reportTerminal(id, snap)
			}
		}
		if done {
			return
		}
	}
}

func reportTerminal(id string, snap task.Snapshot) {
	switch snap.State {
	case task.StateCompleted:
		fmt.Fprintf(os.Stderr, "[%s] complete: %s -> %s\n", shortID(id), humanBytes(snap.TotalBytes), snap.DestPath)
	case task.StateFailed:
		fmt.Fprintf(os.Stderr, "[%s] failed: %v\n", shortID(id), snap.Err)
	case task.StateCancelled:
		fmt.Fprintf(os.Stderr, "[%s] cancelled\n", shortID(id))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func humanBytes(n int64) string {
	s, err := speed.FormatRate(float64(n))
	if err != nil {
		return fmt.Sprintf("%d B", n)
	}
	return strings.TrimSuffix(s, "/s")
}

// recordHistory writes one terminal ledger entry per task that reached a
// terminal state, matching the teacher's practice of persisting finished
// downloads to a master list on completion.
func recordHistory(dir string, sched *scheduler.Scheduler, ids []string) error {
	store, err := history.Open(historyPath(dir))
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()

	byID := make(map[string]task.Snapshot)
	for _, s := range sched.GetTasks() {
		byID[s.ID] = s
	}

	var failed int
	for _, id := range ids {
		snap, ok := byID[id]
		if !ok || !snap.State.Terminal() {
			continue
		}
		entry := history.Entry{
			ID:          id,
			URL:         snap.URL,
			DestPath:    snap.DestPath,
			Filename:    snap.DestPath,
			Status:      strings.ToLower(snap.State.String()),
			TotalSize:   snap.TotalBytes,
			CompletedAt: time.Now().Unix(),
		}
		if snap.Err != nil {
			entry.Error = snap.Err.Error()
		}
		if snap.State == task.StateFailed {
			failed++
		}
		if err := store.Record(entry); err != nil {
			fmt.Fprintf(os.Stderr, "recording history for %s: %v\n", shortID(id), err)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(ids))
	}
	return nil
}

func historyPath(dir string) string {
	return filepath.Join(dir, "history.db")
}
