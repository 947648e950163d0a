package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/domain"
)

// FunctionsBaseURL возвращает адрес serverless функций проекта
func FunctionsBaseURL(identityURL string) string {
	return strings.TrimRight(identityURL, "/") + "/functions/v1"
}

// FunctionError ошибка удаленной функции. Error() возвращает текст сервера без изменений.
type FunctionError struct {
	Function string
	Status   int
	Message  string
}

func (e *FunctionError) Error() string {
	return e.Message
}

// FunctionsClient вызывает serverless функции POST запросом с bearer токеном
type FunctionsClient struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     logger.Logger
}

// NewFunctionsClient создает клиента
func NewFunctionsClient(baseURL, anonKey string, timeout time.Duration, log logger.Logger) *FunctionsClient {
	return &FunctionsClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

// Call вызывает функцию name с JSON телом body и декодирует ответ в out (если не nil).
// При статусе не 2xx возвращает *FunctionError с полем error из JSON,
// иначе с текстом ответа, иначе со статусом.
func (c *FunctionsClient) Call(ctx context.Context, name string, body interface{}, token string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "failed to encode function payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+name, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to build function request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return pkgerrors.Wrap(ctx.Err(), pkgerrors.ErrTimeout, "function call cancelled")
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "function endpoint unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrUnavailable, "failed to read function response")
	}

	c.logger.Debug("Function called",
		logger.String("function", name),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &FunctionError{Function: name, Status: resp.StatusCode, Message: functionMessage(resp, data)}
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to decode function response").
				WithDetails("function: " + name)
		}
	}
	return nil
}

func functionMessage(resp *http.Response, data []byte) string {
	var envelope struct {
		Error interface{} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		switch v := envelope.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			if raw, err := json.Marshal(v); err == nil {
				return string(raw)
			}
		}
	}
	if text := string(data); text != "" {
		return text
	}
	if resp.Status != "" {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}

// StartShift открывает смену водителя
func (c *FunctionsClient) StartShift(ctx context.Context, token, driverID string) (*domain.Shift, error) {
	var out struct {
		Shift *domain.Shift `json:"shift"`
	}
	if err := c.Call(ctx, "start_shift", map[string]string{"driver_id": driverID}, token, &out); err != nil {
		return nil, err
	}
	if out.Shift == nil {
		return nil, pkgerrors.New(pkgerrors.ErrInternal, "start_shift returned no shift")
	}
	return out.Shift, nil
}

// RidePay оплачивает поездку по содержимому QR кода
func (c *FunctionsClient) RidePay(ctx context.Context, token string, qr domain.FareQR, passengerID string) (*domain.Payment, error) {
	var out struct {
		OK bool            `json:"ok"`
		Tx *domain.Payment `json:"tx"`
	}
	body := map[string]string{"shift": qr.Shift, "fare": qr.Fare, "passenger_id": passengerID}
	if err := c.Call(ctx, "ride_pay", body, token, &out); err != nil {
		return nil, err
	}
	if out.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.ErrInternal, "ride_pay returned no transaction")
	}
	return out.Tx, nil
}

// NewUser данные пользователя для admin_create_user
type NewUser struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	FullName string      `json:"full_name"`
	Role     domain.Role `json:"role"`
}

// AdminCreateUser создает пользователя с ролью
func (c *FunctionsClient) AdminCreateUser(ctx context.Context, token string, user NewUser) error {
	return c.Call(ctx, "admin_create_user", user, token, nil)
}

// Notification уведомление для рассылки
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// Segment фильтр получателей send_segment
type Segment struct {
	Role       domain.Role `json:"role,omitempty"`
	OperatorID string      `json:"operator_id,omitempty"`
}

// SendBroadcast рассылает уведомление всем подписчикам
func (c *FunctionsClient) SendBroadcast(ctx context.Context, token string, n Notification) error {
	return c.Call(ctx, "send_broadcast", n, token, nil)
}

// SendSegment рассылает уведомление по роли или оператору
func (c *FunctionsClient) SendSegment(ctx context.Context, token string, n Notification, segment Segment) error {
	body := struct {
		Notification
		Segment
	}{n, segment}
	return c.Call(ctx, "send_segment", body, token, nil)
}
