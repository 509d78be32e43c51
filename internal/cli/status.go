package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/pipesync/internal/infra/storage/postgres"
)

var statusUserID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's sync status and recent runs",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusUserID, "user", "", "user id (required)")
	_ = statusCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	user, err := postgres.NewUserRepo(db).GetByID(ctx, statusUserID)
	if err != nil {
		slog.Error("Failed to load user", "user_id", statusUserID, "error", err)
		os.Exit(1)
	}

	fmt.Printf("user: %s (%s)\n", user.ID, user.Email)
	fmt.Printf("sync status: %s\n", user.SyncStatus)
	if user.LastSyncTimestamp != nil {
		fmt.Printf("last sync: %s\n", user.LastSyncTimestamp.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("last sync: never")
	}

	rows, err := postgres.NewSyncHistoryRepo(db).ListByUser(ctx, statusUserID, 10)
	if err != nil {
		slog.Error("Failed to list sync history", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STARTED\tTYPE\tSTATUS\tTOTAL\tCREATED\tUPDATED\tFAILED")
	for _, h := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			h.StartedAt.Format("2006-01-02 15:04:05"),
			h.SyncType, h.Status,
			h.TotalContacts, h.CreatedContacts, h.UpdatedContacts, h.FailedContacts)
	}
	_ = w.Flush()
}
