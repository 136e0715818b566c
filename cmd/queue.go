package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/ledger"
	"github.com/kozaktomas/attendance-kiosk/internal/queue"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect or drain the offline delivery queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List undelivered attendance events",
	RunE:  runQueueList,
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Deliver queued attendance events to the ledger now",
	RunE:  runQueueDrain,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDrainCmd)

	queueDrainCmd.Flags().Bool("include-failed", false, "Retry permanently failed items as well")
}

func queueStoragePath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, queueFile)
}

func runQueueList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	items, err := queue.NewFileStorage(queueStoragePath(cfg)).Load()
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	fmt.Printf("%d undelivered events:\n", len(items))
	for _, item := range items {
		state := "pending"
		if item.Failed {
			state = "FAILED"
		}
		fmt.Printf("  [%s] %s %s at %s, enqueued %s, %d attempts",
			state,
			item.EmployeeID,
			item.Request.ActionType,
			item.Request.LocationID,
			item.EnqueuedAt.Format(time.RFC3339),
			item.AttemptCount,
		)
		if item.LastError != "" {
			fmt.Printf(" (last error: %s)", item.LastError)
		}
		fmt.Println()
	}
	return nil
}

func runQueueDrain(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.Ledger.URL == "" {
		return errors.New("LEDGER_URL environment variable is required")
	}
	client, err := ledger.New(cfg.Ledger.URL, cfg.Ledger.Token, cfg.Ledger.Timeout)
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}

	q, err := queue.New(
		queue.NewFileStorage(queueStoragePath(cfg)),
		queue.NewLedgerSender(client),
		queue.Options{MaxAttempts: cfg.Queue.MaxAttempts},
	)
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}

	if mustGetBool(cmd, "include-failed") {
		if n := q.RetryFailed(); n > 0 {
			fmt.Printf("Requeued %d failed events\n", n)
		}
	}

	depth := q.Depth()
	if depth == 0 && len(q.FailedItems()) == 0 {
		fmt.Println("Queue is empty")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	delivered := q.Drain(ctx)
	fmt.Printf("Delivered %d of %d events\n", delivered, depth)

	if remaining := q.Depth(); remaining > 0 {
		fmt.Printf("%d events still queued\n", remaining)
	}
	if failed := q.FailedItems(); len(failed) > 0 {
		fmt.Printf("%d events permanently failed, see 'attendance-kiosk queue list'\n", len(failed))
	}
	return nil
}
