package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "walletauth",
	Short: "walletauth signs users in with their Ethereum wallet",
	Long: `walletauth verifies EIP-4361 (Sign-In with Ethereum) messages and manages
the sessions they open. Configuration is read from the environment and an
optional .env file.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
