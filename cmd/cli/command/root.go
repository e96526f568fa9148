package command

// root.go defines the root command for the mangasync CLI.
// set up the global flags here.

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mangasync/cmd/cli/authentication"
	"mangasync/cmd/cli/command/client"
)

var apiURL string // Global flag for API server URL

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mangasync",
	Short: "mangasync - bookmark mirror command line interface",
	Long: `mangasync talks to the mangasync API server. Use it to:
- List remote bookmarks (page 1 reconciles the local mirror)
- Export the mirrored bookmarks with their enrichment
- Start a full resync or a MyAnimeList progress push and follow it live
- Toggle MyAnimeList image enrichment

Use "mangasync command --help" to see all available commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	defaultAPI := os.Getenv("MANGASYNC_API")
	if defaultAPI == "" {
		defaultAPI = "http://localhost:8080/api"
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPI, "API server URL")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(bookmarksCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(settingsCmd)
}

// newClient builds an HTTP client from the stored credentials.
func newClient() (*client.HTTPClient, error) {
	creds, err := authentication.GetTokens()
	if err != nil {
		return nil, err
	}

	httpClient := client.NewHTTPClient(apiURL)
	httpClient.SetToken(creds.AccessToken)
	httpClient.SetUserData(creds.UserData)
	return httpClient, nil
}
