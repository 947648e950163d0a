package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/domain"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Сессия и профиль",
	Long:  `Команды просмотра и синхронизации текущей сессии и профиля.`,
}

// sessionStatusCmd разовое разрешение профиля
var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Показать сессию и профиль",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleSessionStatus(cmd), cmd)
	},
}

// sessionRefreshCmd принудительная фоновая синхронизация
var sessionRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Обновить профиль",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleSessionRefresh(cmd), cmd)
	},
}

// sessionWatchCmd держит синхронизатор запущенным и печатает каждое изменение
var sessionWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Следить за сессией",
	Long: `Запускает синхронизатор с heartbeat и проверкой связи и печатает
каждое изменение состояния до прерывания (Ctrl+C).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleSessionWatch(cmd), cmd)
	},
}

func init() {
	sessionCmd.AddCommand(sessionStatusCmd)
	sessionCmd.AddCommand(sessionRefreshCmd)
	sessionCmd.AddCommand(sessionWatchCmd)
}

func handleSessionStatus(cmd *cobra.Command) error {
	_, sync, err := resolvedSynchronizer(cmd)
	if err != nil {
		return err
	}
	defer sync.Close()

	return printer.Print(newStateView(sync.State()))
}

func handleSessionRefresh(cmd *cobra.Command) error {
	_, sync, err := resolvedSynchronizer(cmd)
	if err != nil {
		return err
	}
	defer sync.Close()

	if sync.State().UserID == "" {
		return pkgerrors.New(pkgerrors.ErrUnauthorized, "Inicia sesión.")
	}

	start := time.Now()
	sync.RefreshProfile(commandContext(cmd))
	sync.Wait()
	appLogger.Debug("Profile refreshed", logger.Duration("elapsed", time.Since(start)))

	return printer.Print(newStateView(sync.State()))
}

func handleSessionWatch(cmd *cobra.Command) error {
	a, err := getApp(cmd)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	sync := a.Synchronizer(cliNavigator(cmd))
	defer sync.Close()

	updates := make(chan domain.State, 16)
	unsubscribe := sync.Subscribe(func(state domain.State) {
		select {
		case updates <- state:
		default:
			// Медленный вывод не должен блокировать синхронизатор
		}
	})
	defer unsubscribe()

	heartbeat, err := a.Heartbeat(sync)
	if err != nil {
		return err
	}
	heartbeat.Start()
	defer heartbeat.Stop()

	sync.Start(ctx)

	foreground := make(chan os.Signal, 1)
	if len(foregroundSignals) > 0 {
		signal.Notify(foreground, foregroundSignals...)
		defer signal.Stop(foreground)
	}

	var last *domain.State
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-foreground:
			onForeground(ctx, sync)
		case state := <-updates:
			if last != nil && sameView(*last, state) {
				continue
			}
			if err := printer.Print(newStateView(state)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			copied := state
			last = &copied
		}
	}
}

// foregroundHook то, что нужно синхронизатору при возврате на передний план
type foregroundHook interface {
	Visible(ctx context.Context)
}

func onForeground(ctx context.Context, hook foregroundHook) {
	if appLogger != nil {
		appLogger.Debug("Returned to foreground")
	}
	hook.Visible(ctx)
}

// sameView сравнивает видимые поля состояния
func sameView(a, b domain.State) bool {
	if a.UserID != b.UserID || a.Loading != b.Loading || a.Syncing != b.Syncing ||
		a.Error != b.Error || a.Online != b.Online {
		return false
	}
	if (a.Profile == nil) != (b.Profile == nil) {
		return false
	}
	if a.Profile == nil {
		return true
	}
	return a.Profile.Role == b.Profile.Role && a.Profile.FullName == b.Profile.FullName &&
		floatPtrEqual(a.Profile.Balance, b.Profile.Balance)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
