package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// fnCmd вызов произвольной серверной функции
var fnCmd = &cobra.Command{
	Use:   "fn [name]",
	Short: "Вызвать серверную функцию",
	Long: `Вызывает серверную функцию с JSON телом и токеном текущей сессии.
Ошибки функции выводятся так, как их вернул сервер.`,
	Example: `  payki fn ride_pay --data '{"shift":"s-1","fare":"troncal","passenger_id":"..."}'`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleFn(cmd, args[0]), cmd)
	},
}

func init() {
	fnCmd.Flags().StringP("data", "d", "{}", "JSON тело запроса")
}

func handleFn(cmd *cobra.Command, name string) error {
	data, _ := cmd.Flags().GetString("data")

	var body interface{}
	if err := json.Unmarshal([]byte(data), &body); err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}

	a, err := getApp(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	token, err := a.Identity.AccessToken(ctx)
	if err != nil {
		return err
	}

	var out interface{}
	if err := a.Functions.Call(ctx, name, body, token, &out); err != nil {
		return err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return printer.Print(out)
}
