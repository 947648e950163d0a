package cmd

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"PaykiPlatform/services/session-sync/internal/client"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/service"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push-уведомления",
	Long:  `Управление подписками на push-уведомления и рассылка уведомлений.`,
}

var pushSubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Сохранить подписку устройства",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handlePushSubscribe(cmd), cmd)
	},
}

var pushUnsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe [endpoint]",
	Short: "Удалить подписку по endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handlePushUnsubscribe(cmd, args[0]), cmd)
	},
}

// pushEmitCmd кладет уведомление в очередь офлайн-прокси
var pushEmitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Отправить уведомление в очередь доставки",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handlePushEmit(cmd), cmd)
	},
}

var pushBroadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Разослать уведомление всем (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handlePushBroadcast(cmd, false), cmd)
	},
}

var pushSegmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Разослать уведомление по роли или оператору (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handlePushBroadcast(cmd, true), cmd)
	},
}

var pushVAPIDCheckCmd = &cobra.Command{
	Use:   "vapid-check [key]",
	Short: "Проверить публичный VAPID ключ",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return handleError(handleVAPIDCheck(cmd, args), cmd)
	},
}

func init() {
	pushSubscribeCmd.Flags().String("endpoint", "", "endpoint подписки (https)")
	pushSubscribeCmd.Flags().String("p256dh", "", "ключ p256dh")
	pushSubscribeCmd.Flags().String("auth", "", "секрет auth")
	pushSubscribeCmd.Flags().String("user-agent", "payki-cli", "user agent устройства")

	for _, c := range []*cobra.Command{pushEmitCmd, pushBroadcastCmd, pushSegmentCmd} {
		c.Flags().StringP("title", "t", "", "заголовок")
		c.Flags().StringP("body", "b", "", "текст")
		c.Flags().StringP("url", "u", "/", "адрес при нажатии")
	}
	pushSegmentCmd.Flags().String("role", "", "роль получателей")
	pushSegmentCmd.Flags().String("operator", "", "оператор получателей")

	pushCmd.AddCommand(pushSubscribeCmd)
	pushCmd.AddCommand(pushUnsubscribeCmd)
	pushCmd.AddCommand(pushEmitCmd)
	pushCmd.AddCommand(pushBroadcastCmd)
	pushCmd.AddCommand(pushSegmentCmd)
	pushCmd.AddCommand(pushVAPIDCheckCmd)
}

func handlePushSubscribe(cmd *cobra.Command) error {
	a, sync, err := resolvedSynchronizer(cmd)
	if err != nil {
		return err
	}
	defer sync.Close()

	sub := &domain.PushSubscription{UserID: sync.State().UserID}
	sub.Endpoint, _ = cmd.Flags().GetString("endpoint")
	sub.P256dh, _ = cmd.Flags().GetString("p256dh")
	sub.Auth, _ = cmd.Flags().GetString("auth")
	sub.UserAgent, _ = cmd.Flags().GetString("user-agent")

	if err := a.PushService().Subscribe(commandContext(cmd), sub); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Notificaciones activadas")
	return nil
}

func handlePushUnsubscribe(cmd *cobra.Command, endpoint string) error {
	a, err := getApp(cmd)
	if err != nil {
		return err
	}
	return a.PushService().Unsubscribe(commandContext(cmd), endpoint)
}

func notificationFromFlags(cmd *cobra.Command) client.Notification {
	var n client.Notification
	n.Title, _ = cmd.Flags().GetString("title")
	n.Body, _ = cmd.Flags().GetString("body")
	n.URL, _ = cmd.Flags().GetString("url")
	return n
}

func handlePushEmit(cmd *cobra.Command) error {
	a, err := getApp(cmd)
	if err != nil {
		return err
	}

	n := notificationFromFlags(cmd)
	return a.PushService().Emit(commandContext(cmd), service.PushMessage{
		Title: n.Title,
		Body:  n.Body,
		URL:   n.URL,
	})
}

func handlePushBroadcast(cmd *cobra.Command, segmented bool) error {
	n := notificationFromFlags(cmd)
	if n.Title == "" || n.Body == "" {
		return fmt.Errorf("title and body are required")
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

	if !segmented {
		err = a.Functions.SendBroadcast(ctx, token, n)
	} else {
		role, _ := cmd.Flags().GetString("role")
		operator, _ := cmd.Flags().GetString("operator")
		if role == "" && operator == "" {
			return fmt.Errorf("role or operator is required")
		}
		err = a.Functions.SendSegment(ctx, token, n, client.Segment{Role: domainRole(role), OperatorID: operator})
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Notificación enviada")
	return nil
}

func handleVAPIDCheck(cmd *cobra.Command, args []string) error {
	key := cfg.Push.VAPIDPublic
	if len(args) > 0 {
		key = args[0]
	}
	if key == "" {
		key = os.Getenv("VAPID_PUBLIC_KEY")
	}

	raw, err := service.DecodeVAPIDKey(key)
	if err != nil {
		return err
	}
	// Несжатая точка P-256: 65 байт, начинается с 0x04
	if len(raw) != 65 || raw[0] != 0x04 {
		return fmt.Errorf("VAPID key must be an uncompressed P-256 point, got %d bytes", len(raw))
	}

	fmt.Fprintln(cmd.OutOrStdout(), base64.RawURLEncoding.EncodeToString(raw))
	return nil
}
