package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew проверяет создание новой ошибки
func TestNew(t *testing.T) {
	e := New(ErrNotFound, "profile not found")
	require.NotNil(t, e)
	assert.Equal(t, ErrNotFound, e.Code)
	assert.Equal(t, "profile not found", e.Error())
	assert.Nil(t, e.Unwrap())
}

// TestWrap проверяет оборачивание ошибки
func TestWrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	e := Wrap(cause, ErrUnavailable, "identity unreachable")
	require.NotNil(t, e)
	assert.Equal(t, "identity unreachable: dial tcp: connection refused", e.Error())
	assert.Equal(t, cause, e.Unwrap())
	assert.True(t, stderrors.Is(e, cause))

	assert.Nil(t, Wrap(nil, ErrInternal, "nothing"))
}

// TestWithDetails проверяет, что исходная ошибка не меняется
func TestWithDetails(t *testing.T) {
	e := New(ErrValidation, "bad input")
	withDetails := e.WithDetails("field: role")

	assert.Equal(t, "field: role", withDetails.Details)
	assert.Empty(t, e.Details)

	var nilErr *Error
	assert.Nil(t, nilErr.WithDetails("x"))
}

type ctxKey struct{}

// TestWithContext проверяет добавление контекста
func TestWithContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "123")
	e := New(ErrUnauthorized, "access denied")
	withCtx := e.WithContext(ctx)

	require.NotNil(t, withCtx.Context)
	assert.Equal(t, "123", withCtx.Context.Value(ctxKey{}))
	assert.Nil(t, e.Context)
}

// TestErrorIs проверяет сравнение по коду
func TestErrorIs(t *testing.T) {
	e := New(ErrTimeout, "slow")
	assert.True(t, stderrors.Is(e, New(ErrTimeout, "other")))
	assert.False(t, stderrors.Is(e, New(ErrInternal, "other")))
}

// TestCodeOf проверяет извлечение кода из цепочки
func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(ErrTimeout, "slow"))
	code, ok := CodeOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrTimeout, code)

	_, ok = CodeOf(stderrors.New("plain"))
	assert.False(t, ok)

	_, ok = CodeOf(nil)
	assert.False(t, ok)
}

// TestHTTPStatus проверяет соответствие HTTP статусов
func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrValidation, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrConflict, http.StatusConflict},
		{ErrTimeout, http.StatusGatewayTimeout},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{ErrTooManyRequests, http.StatusTooManyRequests},
		{ErrInternal, http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.expected, New(tc.code, "test").HTTPStatus())
		})
	}
}

// TestGetUserMessage проверяет пользовательские сообщения
func TestGetUserMessage(t *testing.T) {
	assert.Equal(t, "Sin conexión. Intenta nuevamente.", New(ErrUnavailable, "x").GetUserMessage())
	assert.Equal(t, "Inicia sesión.", New(ErrUnauthorized, "x").GetUserMessage())
	assert.Equal(t, "Ocurrió un error", New(ErrorCode("OTHER"), "x").GetUserMessage())

	var nilErr *Error
	assert.Empty(t, nilErr.GetUserMessage())
}

// TestWriteJSON проверяет формат ответа с ошибкой
func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, New(ErrTimeout, "origin timeout"))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"TIMEOUT"`)
}
