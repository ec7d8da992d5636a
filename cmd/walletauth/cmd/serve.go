package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tech-arch1tect/walletauth/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication server",
	Long: `Start the HTTP server. Startup is refused if JWT_SECRET_KEY is missing or
too weak; run "walletauth secret generate" to create one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp().WithAutoConfig().Build()
		if err != nil {
			return err
		}
		return a.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
