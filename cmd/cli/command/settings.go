package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change per-user settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		httpClient, err := newClient()
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("fetch-mal-image") {
			enabled, _ := cmd.Flags().GetBool("fetch-mal-image")
			settings, err := httpClient.UpdateSettings(enabled)
			if err != nil {
				return fmt.Errorf("failed to update settings: %w", err)
			}
			fmt.Printf("✓ fetch_mal_image = %t\n", settings.FetchMalImage)
			return nil
		}

		settings, err := httpClient.Settings()
		if err != nil {
			return fmt.Errorf("failed to get settings: %w", err)
		}
		fmt.Printf("fetch_mal_image = %t\n", settings.FetchMalImage)
		return nil
	},
}

func init() {
	settingsCmd.Flags().Bool("fetch-mal-image", true, "Enable MyAnimeList image and score enrichment")
}
