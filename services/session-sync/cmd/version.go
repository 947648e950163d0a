package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"PaykiPlatform/services/session-sync/internal/app"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Показать версию",
	// Версии не нужны конфигурация и подключения
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "PAYKI CLI %s\n", app.Version)
	},
}
