package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"PaykiPlatform/pkg/validation"
	"PaykiPlatform/services/session-sync/internal/client"
	"PaykiPlatform/services/session-sync/internal/domain"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Администрирование",
}

// adminCreateUserCmd создает пользователя с ролью
var adminCreateUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Создать пользователя",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleAdminCreateUser(cmd), cmd)
	},
}

func init() {
	adminCreateUserCmd.Flags().StringP("email", "e", "", "email")
	adminCreateUserCmd.Flags().StringP("password", "p", "", "пароль")
	adminCreateUserCmd.Flags().StringP("name", "n", "", "полное имя")
	adminCreateUserCmd.Flags().StringP("role", "r", string(domain.RolePassenger), "роль (passenger, driver, admin)")
	adminCmd.AddCommand(adminCreateUserCmd)
}

func handleAdminCreateUser(cmd *cobra.Command) error {
	user := client.NewUser{}
	user.Email, _ = cmd.Flags().GetString("email")
	user.Password, _ = cmd.Flags().GetString("password")
	user.FullName, _ = cmd.Flags().GetString("name")
	role, _ := cmd.Flags().GetString("role")
	user.Role = domainRole(role)

	v := validation.NewValidator()
	if err := v.ValidateRequired(map[string]string{"email": user.Email, "password": user.Password}); err != nil {
		return err
	}
	if err := v.ValidateEmail(user.Email); err != nil {
		return err
	}
	if err := v.ValidateStringLength(user.Password, "password", 6, 72); err != nil {
		return err
	}
	if err := v.ValidateEnum(string(user.Role), domain.Roles(), "role"); err != nil {
		return err
	}

	a, sync, err := requireRole(cmd, "admin")
	if err != nil {
		return err
	}
	defer sync.Close()

	ctx := commandContext(cmd)
	token, err := a.Identity.AccessToken(ctx)
	if err != nil {
		return err
	}
	if err := a.Functions.AdminCreateUser(ctx, token, user); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Usuario creado: %s (%s)\n", user.Email, user.Role)
	return nil
}
