package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// loginCmd вход по email и паролю
var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Войти в систему",
	Long: `Выполняет вход по email и паролю и сохраняет сессию.
Пароль берется из флага --password, переменной PAYKI_PASSWORD или stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleLogin(cmd, args), cmd)
	},
}

// logoutCmd глобальный выход
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Выйти из системы",
	Long: `Удаляет push-подписки, отзывает сессию на всех устройствах,
помечает снимок профиля устаревшим и очищает офлайн-кэш.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleLogout(cmd), cmd)
	},
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "email")
	loginCmd.Flags().StringP("password", "p", "", "пароль")
	_ = viper.BindPFlag("password", loginCmd.Flags().Lookup("password"))
}

func handleLogin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	if len(args) > 0 {
		email = args[0]
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	password := viper.GetString("password")
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Contraseña: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("password is required")
		}
		password = strings.TrimRight(line, "\r\n")
	}

	a, err := getApp(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	if _, err := a.Identity.SignInWithPassword(ctx, email, password); err != nil {
		return err
	}

	sync := a.Synchronizer(cliNavigator(cmd))
	defer sync.Close()
	sync.Bootstrap(ctx)
	sync.Wait()

	return printer.Print(newStateView(sync.State()))
}

func handleLogout(cmd *cobra.Command) error {
	a, err := getApp(cmd)
	if err != nil {
		return err
	}

	sync := a.Synchronizer(cliNavigator(cmd))
	defer sync.Close()

	// Пользователь нужен синхронизатору, чтобы удалить подписки и снимок
	sync.Bootstrap(commandContext(cmd))
	sync.Wait()
	sync.SignOut(commandContext(cmd))

	if viper.GetBool("verbose") {
		fmt.Fprintln(cmd.ErrOrStderr(), "Session file:", a.Config.Identity.SessionFile)
	}
	return nil
}
