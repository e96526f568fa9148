package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mangasync/cmd/cli/command/client"
	"mangasync/internal/microservices/http-api/dto"
	"mangasync/internal/models"
	"mangasync/internal/syncworker"
)

// syncCmd represents the sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Background sync commands",
	Long:  `Start a full resync of the mirror or a MyAnimeList progress push, and follow them live.`,
}

// syncResyncCmd represents the sync resync command
var syncResyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Rebuild the mirror from the full remote list",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, err := newClient()
		if err != nil {
			return err
		}

		resp, err := httpClient.Resync()
		if err != nil {
			return fmt.Errorf("failed to start resync: %w", err)
		}
		printStarted(resp)

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			return watchSync(httpClient, models.SyncKindResync)
		}
		return nil
	},
}

// syncExternalCmd represents the sync external command
var syncExternalCmd = &cobra.Command{
	Use:   "external",
	Short: "Push reading progress of every mirrored bookmark to MyAnimeList",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, err := newClient()
		if err != nil {
			return err
		}

		resp, err := httpClient.ExternalSync()
		if err != nil {
			return fmt.Errorf("failed to start external sync: %w", err)
		}
		printStarted(resp)

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			return watchSync(httpClient, models.SyncKindExternal)
		}
		return nil
	},
}

// syncStatusCmd represents the sync status command
var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show running syncs and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, err := newClient()
		if err != nil {
			return err
		}

		resp, err := httpClient.SyncStatus()
		if err != nil {
			return fmt.Errorf("failed to get sync status: %w", err)
		}

		fmt.Println("Running:")
		if len(resp.Active) == 0 {
			fmt.Println("  none")
		}
		for _, s := range resp.Active {
			fmt.Printf("  %-8s %s  items=%d failed=%d  since %s\n",
				s.Kind, s.ID, s.Items, s.Failed, s.StartedAt.Local().Format("2006-01-02 15:04:05"))
		}

		fmt.Println("\nRecent runs:")
		if len(resp.History) == 0 {
			fmt.Println("  none")
		}
		for _, run := range resp.History {
			line := fmt.Sprintf("  %-8s %-10s items=%d failed=%d  %s",
				run.Kind, run.Status, run.ItemCount, run.FailedCount, run.StartedAt.Local().Format("2006-01-02 15:04:05"))
			switch run.Status {
			case models.SyncStatusCompleted:
				color.Green("%s", line)
			case models.SyncStatusFailed, models.SyncStatusCancelled:
				color.Red("%s", line)
			default:
				fmt.Println(line)
			}
			if run.ErrorMessage != "" {
				fmt.Printf("           %s\n", run.ErrorMessage)
			}
		}
		return nil
	},
}

// syncWatchCmd represents the sync watch command
var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the events of the current or latest sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")

		httpClient, err := newClient()
		if err != nil {
			return err
		}
		return watchSync(httpClient, kind)
	},
}

func printStarted(resp *dto.SyncStartedResponse) {
	if resp.Message == "sync started" {
		color.Green("✓ %s sync started (%s)", resp.Kind, resp.ID)
		return
	}
	color.Yellow("%s: %s (%s)", resp.Kind, resp.Message, resp.ID)
}

func watchSync(httpClient *client.HTTPClient, kind string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := httpClient.WatchSync(ctx, kind, printEvent)
	if ctx.Err() != nil {
		fmt.Println("\nStopped watching, the sync keeps running on the server.")
		return nil
	}
	return err
}

func printEvent(ev client.StreamEvent) {
	switch ev.Name {
	case "item":
		var item syncworker.ItemEvent
		if json.Unmarshal(ev.Data, &item) == nil {
			fmt.Printf("  + %s (%s)\n", item.Record.Name, item.Record.CurrentChapterID())
		}
	case "push":
		var push syncworker.PushEvent
		if json.Unmarshal(ev.Data, &push) != nil {
			return
		}
		switch {
		case push.Skipped:
			color.HiBlack("  - %s skipped: %s", push.StoryID, push.Error)
		case push.Success:
			color.Green("  ✓ %s -> MAL %s chapter %s", push.StoryID, push.MalID, push.Chapter)
		default:
			color.Red("  ✗ %s: %s", push.StoryID, push.Error)
		}
	case "error":
		var e syncworker.ErrorEvent
		json.Unmarshal(ev.Data, &e)
		color.Red("✗ sync failed: %s", e.Reason)
	case "finished":
		var f syncworker.FinishedEvent
		json.Unmarshal(ev.Data, &f)
		color.Green("✓ finished: %d items, %d failed", f.Items, f.Failed)
	}
}

func init() {
	syncCmd.AddCommand(syncResyncCmd)
	syncCmd.AddCommand(syncExternalCmd)
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncWatchCmd)

	syncResyncCmd.Flags().BoolP("watch", "w", false, "Follow the sync until it ends")
	syncExternalCmd.Flags().BoolP("watch", "w", false, "Follow the sync until it ends")
	syncWatchCmd.Flags().StringP("kind", "k", models.SyncKindResync, "Sync kind: resync or external")
}
