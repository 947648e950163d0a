package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/service"
)

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Проверка роли",
}

// roleCheckCmd проверяет, может ли текущий пользователь открыть раздел роли
var roleCheckCmd = &cobra.Command{
	Use:       "check [passenger|driver|admin]",
	Short:     "Проверить доступ к разделу роли",
	Long:      `Разрешает профиль и выводит решение доступа. Код выхода ненулевой, если доступ запрещен.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: domain.Roles(),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleRoleCheck(cmd, args[0]), cmd)
	},
}

func init() {
	roleCmd.AddCommand(roleCheckCmd)
}

func handleRoleCheck(cmd *cobra.Command, value string) error {
	role := domainRole(value)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q, expected one of: %s", value, strings.Join(domain.Roles(), ", "))
	}

	_, sync, err := resolvedSynchronizer(cmd)
	if err != nil {
		return err
	}
	defer sync.Close()

	decision := service.Guard(sync.State(), role)
	if err := printer.Print(decision); err != nil {
		return err
	}
	if !decision.Allowed() {
		return errors.New(decision.Message)
	}
	return nil
}
