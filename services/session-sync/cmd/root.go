package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pkgconfig "PaykiPlatform/pkg/config"
	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/app"
	"PaykiPlatform/services/session-sync/internal/client"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/output"
	"PaykiPlatform/services/session-sync/internal/service"
)

var (
	rootCtx   = context.Background()
	cfg       *pkgconfig.Config
	appLogger logger.Logger
	printer   *output.Printer
	current   *app.App
)

// Execute запускает корневую команду
func Execute(ctx context.Context) error {
	rootCtx = ctx
	defer closeApp()
	return rootCmd.ExecuteContext(ctx)
}

// rootCmd корневая команда payki
var rootCmd = &cobra.Command{
	Use:   "payki",
	Short: "PAYKI CLI - сессия, профиль и платежи",
	Long: `PAYKI CLI - клиент платформы оплаты проезда.

Поддерживает вход и выход, просмотр и синхронизацию профиля,
проверку роли, историю поездок, оплату по QR, смены водителя,
администрирование пользователей и push-уведомления.`,
	Version:       app.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "файл конфигурации (YAML или JSON)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "формат вывода (table, json, yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "подробный вывод")
	rootCmd.PersistentFlags().Bool("debug", false, "режим отладки")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	viper.SetEnvPrefix("payki")
	viper.AutomaticEnv()

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(roleCmd)
	rootCmd.AddCommand(activityCmd)
	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(shiftCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(fnCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup загружает конфигурацию и настраивает логгер и формат вывода
func setup(cmd *cobra.Command) error {
	loaded, err := pkgconfig.LoadConfig(viper.GetString("config"))
	if err != nil {
		return err
	}
	cfg = loaded

	level := cfg.Logger.Level
	if viper.GetBool("debug") {
		level = "debug"
	} else if !viper.GetBool("verbose") {
		level = "warn"
	}
	appLogger, err = logger.NewLogger(cfg.Environment, level, "payki-cli")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	format, err := output.ParseFormat(viper.GetString("output"))
	if err != nil {
		return err
	}
	printer = output.NewPrinter(format, cmd.OutOrStdout())
	return nil
}

// getApp подключает зависимости один раз на запуск
func getApp(cmd *cobra.Command) (*app.App, error) {
	if current != nil {
		return current, nil
	}
	a, err := app.New(commandContext(cmd), cfg, appLogger)
	if err != nil {
		return nil, err
	}
	current = a
	return a, nil
}

func closeApp() {
	if current != nil {
		current.Close()
		current = nil
	}
	if appLogger != nil {
		_ = appLogger.Sync()
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return rootCtx
}

// resolvedSynchronizer создает синхронизатор и дожидается разрешения профиля
func resolvedSynchronizer(cmd *cobra.Command) (*app.App, *service.Synchronizer, error) {
	a, err := getApp(cmd)
	if err != nil {
		return nil, nil, err
	}
	sync := a.Synchronizer(cliNavigator(cmd))
	sync.Bootstrap(commandContext(cmd))
	sync.Wait()
	return a, sync, nil
}

// requireRole разрешает профиль и проверяет роль
func requireRole(cmd *cobra.Command, role string) (*app.App, *service.Synchronizer, error) {
	a, sync, err := resolvedSynchronizer(cmd)
	if err != nil {
		return nil, nil, err
	}
	decision := service.Guard(sync.State(), domainRole(role))
	if !decision.Allowed() {
		sync.Close()
		return nil, nil, errors.New(decision.Message)
	}
	return a, sync, nil
}

func cliNavigator(cmd *cobra.Command) service.Navigator {
	return service.NavigatorFunc(func(path string) {
		if path == cfg.Session.LoginPath {
			fmt.Fprintln(cmd.ErrOrStderr(), "Sesión cerrada. Para continuar: payki login")
			return
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "→", path)
	})
}

// handleError приводит ошибку к пользовательскому сообщению
func handleError(err error, cmd *cobra.Command) error {
	if err == nil {
		return nil
	}

	if appLogger != nil {
		appLogger.Debug("Command failed",
			logger.String("command", cmd.CommandPath()),
			logger.Error(err))
	}

	// Ошибки функций показываются так, как их вернул backend
	var fnErr *client.FunctionError
	if errors.As(err, &fnErr) {
		return fmt.Errorf("%s: %s", cmd.Name(), fnErr.Message)
	}

	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) {
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}

	msg := appErr.GetUserMessage()
	switch appErr.Code {
	case pkgerrors.ErrValidation, pkgerrors.ErrForbidden, pkgerrors.ErrNotFound:
		msg = appErr.Message
	}
	return fmt.Errorf("%s: %s", cmd.Name(), msg)
}

func domainRole(value string) domain.Role {
	return domain.Role(strings.ToLower(strings.TrimSpace(value)))
}
