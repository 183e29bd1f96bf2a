package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/quarry-mcp/internal/reindexer"
)

var (
	flagKeepStale bool
	flagWatch     bool
)

var reindexCmd = &cobra.Command{
	Use:   "reindex <path>",
	Short: "Incrementally reindex a directory tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		scope := resolveScope(root)

		b, err := openBackend()
		if err != nil {
			return err
		}
		defer b.Close()

		run, err := b.reindexer.Reindex(cmd.Context(), scope, root, !flagKeepStale)
		if err != nil {
			return err
		}

		fmt.Printf("Reindexed %s (scope %s) in %s\n", root, scope, run.Duration.Round(time.Millisecond))
		fmt.Printf("  Added:   %d\n", run.FilesAdded)
		fmt.Printf("  Updated: %d\n", run.FilesUpdated)
		fmt.Printf("  Removed: %d\n", run.FilesRemoved)
		if len(run.Errors) > 0 {
			fmt.Printf("  Errors:  %d\n", len(run.Errors))
			for _, msg := range run.Errors {
				fmt.Printf("    %s\n", msg)
			}
		}

		if !flagWatch {
			return nil
		}

		watcher, err := reindexer.NewWatcher(root, scope, b.reindexer)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer func() { _ = watcher.Stop() }()

		log.Printf("Watching %s for changes (Ctrl-C to stop)...", root)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		return nil
	},
}

func init() {
	reindexCmd.Flags().BoolVar(&flagKeepStale, "keep-stale", false, "keep index entries whose files no longer exist")
	reindexCmd.Flags().BoolVar(&flagWatch, "watch", false, "keep running and reindex on filesystem changes")
	rootCmd.AddCommand(reindexCmd)
}
