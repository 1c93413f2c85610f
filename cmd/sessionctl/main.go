// Command sessionctl exercises the session core against a live or stubbed
// identity provider: resolve the current user, force a refresh, probe the
// token, log out, or run the stub provider locally.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sessionctl",
		Short: "Session and authorization core CLI",
		Long: `sessionctl drives the sessioncore library from the command line.

It resolves the current user the same way a guarded view would (state,
persisted cache, network, token refresh), and can run a stub identity
provider for local development.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to sessioncore.json")

	rootCmd.AddCommand(
		whoamiCmd(),
		refreshCmd(),
		verifyCmd(),
		logoutCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sessionctl %s (%s)\n", version, commit)
		},
	}
}
