package cmd

import (
	"github.com/spf13/cobra"
)

// activityCmd баланс и последние движения пассажира
var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Баланс и последние поездки",
	Long:  `Показывает баланс пассажира и последние 15 поездок и пополнений.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleActivity(cmd), cmd)
	},
}

func handleActivity(cmd *cobra.Command) error {
	a, sync, err := requireRole(cmd, "passenger")
	if err != nil {
		return err
	}
	defer sync.Close()

	summary, err := a.ActivityService().PassengerSummary(commandContext(cmd), sync.State().UserID)
	if err != nil {
		return err
	}
	return printer.Print(summaryView{PassengerSummary: *summary})
}
