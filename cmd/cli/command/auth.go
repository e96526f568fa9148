package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"mangasync/cmd/cli/authentication"
)

// auth.go stores the credentials used by every other command.
// Tokens are issued elsewhere; the CLI only keeps them in the OS keyring.

// authCmd represents the auth command for credential related subcommands
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Credential commands",
	Long:  `Store or clear the API token and the remote bookmark token used by the CLI.`,
}

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the API token and remote bookmark token",
	RunE: func(cmd *cobra.Command, args []string) error {
		var creds authentication.StoredCredentials
		creds.AccessToken, _ = cmd.Flags().GetString("token")
		creds.UserData, _ = cmd.Flags().GetString("user-data")

		if err := authentication.StoreTokens(&creds); err != nil {
			return fmt.Errorf("failed to store credentials: %w", err)
		}

		fmt.Println("✓ Credentials stored in the system keyring.")
		if creds.UserData == "" {
			fmt.Println("  No --user-data given, 'bookmarks list' and 'sync resync' will be rejected.")
		}
		return nil
	},
}

// logoutCmd represents the logout command
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authentication.DeleteTokens(); err != nil {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Println("✓ Successfully logged out.")
		return nil
	},
}

// init function to add auth commands to root command
func init() {
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)

	loginCmd.Flags().StringP("token", "t", "", "API bearer token (JWT)")
	loginCmd.Flags().StringP("user-data", "u", "", "Remote bookmark source token")
	loginCmd.MarkFlagRequired("token")
}
