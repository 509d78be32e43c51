package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/pipesync/internal/control"
	"github.com/vietddude/pipesync/internal/core/domain"
	"github.com/vietddude/pipesync/internal/sync/engine"
)

var (
	syncUserID string
	syncFull   bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization for a user and exit",
	Run:   runSync,
}

func init() {
	syncCmd.Flags().StringVar(&syncUserID, "user", "", "user id to sync (required)")
	syncCmd.Flags().BoolVar(&syncFull, "full", false, "force a full sync regardless of the last sync timestamp")
	_ = syncCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	app, err := control.NewService(cfg)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	ctx := context.Background()
	defer func() {
		_ = app.Stop(ctx)
	}()

	var opts engine.Options
	if syncFull {
		opts.SyncType = domain.SyncTypeFull
	}

	result, err := app.Engine().Run(ctx, syncUserID, opts)
	if err != nil {
		slog.Error("Sync failed", "user_id", syncUserID, "error", err)
		if result == nil {
			os.Exit(1)
		}
	}

	fmt.Printf("sync %s (%s): processed=%d created=%d updated=%d failed=%d in %v\n",
		result.SyncID, result.SyncType,
		result.Processed, result.Created, result.Updated, result.Failed,
		result.Duration)
	if err != nil {
		os.Exit(1)
	}
}
