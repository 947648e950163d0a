package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"PaykiPlatform/services/session-sync/internal/domain"
)

// payCmd оплата поездки по QR водителя
var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Оплатить поездку",
	Long: `Оплачивает поездку по содержимому QR кода водителя.
QR передается целиком (--qr '{"shift":"...","fare":"..."}') или по частям (--shift, --fare).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handlePay(cmd), cmd)
	},
}

var shiftCmd = &cobra.Command{
	Use:   "shift",
	Short: "Смены водителя",
}

// shiftStartCmd открывает смену и печатает QR для пассажиров
var shiftStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Начать смену",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleShiftStart(cmd), cmd)
	},
}

func init() {
	payCmd.Flags().String("qr", "", "содержимое QR кода")
	payCmd.Flags().String("shift", "", "идентификатор смены")
	payCmd.Flags().String("fare", "", "код тарифа")

	shiftStartCmd.Flags().String("fare", "", "код тарифа для QR (например troncal)")
	shiftCmd.AddCommand(shiftStartCmd)
}

func fareQRFromFlags(cmd *cobra.Command) (domain.FareQR, error) {
	if raw, _ := cmd.Flags().GetString("qr"); raw != "" {
		return domain.ParseFareQR(raw)
	}
	shift, _ := cmd.Flags().GetString("shift")
	fare, _ := cmd.Flags().GetString("fare")
	qr := domain.FareQR{Shift: strings.TrimSpace(shift), Fare: strings.TrimSpace(fare)}
	if qr.Shift == "" || qr.Fare == "" {
		return domain.FareQR{}, domain.ErrInvalidQR
	}
	return qr, nil
}

func handlePay(cmd *cobra.Command) error {
	qr, err := fareQRFromFlags(cmd)
	if err != nil {
		return err
	}

	a, sync, err := requireRole(cmd, "passenger")
	if err != nil {
		return err
	}
	defer sync.Close()

	ctx := commandContext(cmd)
	token, err := a.Identity.AccessToken(ctx)
	if err != nil {
		return err
	}

	payment, err := a.Functions.RidePay(ctx, token, qr, sync.State().UserID)
	if err != nil {
		return err
	}

	// Баланс изменился, снимок профиля обновляется сразу
	sync.RefreshProfile(ctx)
	sync.Wait()

	return printer.Print(payment)
}

func handleShiftStart(cmd *cobra.Command) error {
	a, sync, err := requireRole(cmd, "driver")
	if err != nil {
		return err
	}
	defer sync.Close()

	ctx := commandContext(cmd)
	token, err := a.Identity.AccessToken(ctx)
	if err != nil {
		return err
	}

	shift, err := a.Functions.StartShift(ctx, token, sync.State().UserID)
	if err != nil {
		return err
	}

	if err := printer.Print(shift); err != nil {
		return err
	}
	if fare, _ := cmd.Flags().GetString("fare"); fare != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "QR:", domain.FareQR{Shift: shift.ID, Fare: fare}.Encode())
	}
	return nil
}
