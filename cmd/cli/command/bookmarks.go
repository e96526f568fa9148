package command

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var bookmarksCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "Bookmark commands",
	Long:  `List remote bookmarks, export the local mirror and look up enrichment.`,
}

var listBookmarksCmd = &cobra.Command{
	Use:   "list",
	Short: "List one page of remote bookmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		httpClient, err := newClient()
		if err != nil {
			return err
		}

		resp, err := httpClient.Bookmarks(page)
		if err != nil {
			return fmt.Errorf("failed to get bookmarks: %w", err)
		}

		fmt.Printf("Page %d of %d\n\n", resp.Page, resp.TotalPages)
		for _, b := range resp.Bookmarks {
			marker := " "
			if b.UpToDate != nil && *b.UpToDate {
				marker = color.GreenString("✓")
			}
			fmt.Printf("%s %s\n", marker, b.Name)
			fmt.Printf("    read: %s  latest: %s\n", b.CurrentChapterID(), b.LatestChapterID())
		}

		if r := resp.Reconcile; r != nil {
			fmt.Println(strings.Repeat("-", 50))
			switch {
			case r.Hit:
				color.Green("Mirror up to date (offset %d, width %d)", r.Offset, r.Width)
			case r.Joined:
				color.Yellow("Mirror stale, joined running resync %s", r.SyncID)
			case r.SyncID != "":
				color.Yellow("Mirror stale, resync %s started", r.SyncID)
			default:
				color.Yellow("Mirror stale")
			}
		}
		return nil
	},
}

var cacheBookmarksCmd = &cobra.Command{
	Use:   "cache",
	Short: "Export every mirrored bookmark",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, err := newClient()
		if err != nil {
			return err
		}

		resp, err := httpClient.Cache()
		if err != nil {
			return fmt.Errorf("failed to export cache: %w", err)
		}

		if resp.Total == 0 {
			fmt.Println("The mirror is empty.")
			return nil
		}

		fmt.Printf("%d mirrored bookmarks:\n\n", resp.Total)
		for _, item := range resp.Items {
			fmt.Printf("%s (%s)\n", item.Name, item.Identifier())
			fmt.Printf("    last read: %s  last chapter: %s\n", item.LastRead, item.LastChapter)
			if e := item.Enrichment; e != nil {
				if e.Score != nil {
					fmt.Printf("    score: %.2f\n", *e.Score)
				}
				if e.MalURL != "" {
					fmt.Printf("    mal: %s\n", e.MalURL)
				}
			}
		}
		return nil
	},
}

var enrichCmd = &cobra.Command{
	Use:   "enrich <identifier>",
	Short: "Look up score and cross-service links for one story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		httpClient, err := newClient()
		if err != nil {
			return err
		}

		entry, err := httpClient.Enrichment(args[0], overwrite)
		if err != nil {
			return fmt.Errorf("enrichment lookup failed: %w", err)
		}

		for _, t := range entry.Titles {
			fmt.Printf("%s: %s\n", t.Type, t.Title)
		}
		if entry.Score != nil {
			fmt.Printf("Score: %.2f\n", *entry.Score)
		}
		if entry.ImageURL != "" {
			fmt.Printf("Image: %s\n", entry.ImageURL)
		}
		if entry.MalURL != "" {
			fmt.Printf("MyAnimeList: %s\n", entry.MalURL)
		}
		if entry.AniURL != "" {
			fmt.Printf("AniList: %s\n", entry.AniURL)
		}
		return nil
	},
}

func init() {
	bookmarksCmd.AddCommand(listBookmarksCmd)
	bookmarksCmd.AddCommand(cacheBookmarksCmd)
	bookmarksCmd.AddCommand(enrichCmd)

	listBookmarksCmd.Flags().IntP("page", "p", 1, "Page number")
	enrichCmd.Flags().Bool("overwrite", false, "Fetch even when enrichment is disabled in settings")
}
