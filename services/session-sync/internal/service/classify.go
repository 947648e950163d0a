package service

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/services/session-sync/internal/domain"
)

const (
	messageOffline = "Sin conexión. Intenta nuevamente."
	messageTimeout = "La sesión tardó demasiado. Reintenta."
	messageAuth    = "Error de autenticación"
)

// сигнатуры сетевых сбоев в тексте ошибки
var networkSignatures = []string{
	"connection refused",
	"no such host",
	"network is unreachable",
	"connection reset",
	"failed to fetch",
	"network error",
}

// Classify относит ошибку к одному из трех классов.
// Сетевой сбой проверяется первым: при офлайне любая ошибка считается сетевой.
func Classify(err error, online bool) domain.ErrorClass {
	if err == nil {
		return domain.ErrorClassNone
	}
	if !online || isNetworkError(err) {
		return domain.ErrorClassConnectivity
	}
	if code, ok := pkgerrors.CodeOf(err); ok {
		switch code {
		case pkgerrors.ErrUnavailable:
			return domain.ErrorClassConnectivity
		case pkgerrors.ErrTimeout:
			return domain.ErrorClassTimeout
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorClassTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorClassTimeout
	}
	return domain.ErrorClassResolution
}

// Message возвращает текст ошибки для пользователя
func Message(class domain.ErrorClass, err error) string {
	switch class {
	case domain.ErrorClassConnectivity:
		return messageOffline
	case domain.ErrorClassTimeout:
		return messageTimeout
	case domain.ErrorClassNone:
		return ""
	}
	if err == nil || err.Error() == "" {
		return messageAuth
	}
	return err.Error()
}

// Recoverable сообщает, можно ли молча откатиться на снимок
func Recoverable(class domain.ErrorClass) bool {
	return class == domain.ErrorClassConnectivity || class == domain.ErrorClassTimeout
}

func isNetworkError(err error) bool {
	if code, ok := pkgerrors.CodeOf(err); ok && code == pkgerrors.ErrTimeout {
		return false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && !urlErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	text := strings.ToLower(err.Error())
	for _, sig := range networkSignatures {
		if strings.Contains(text, sig) {
			return true
		}
	}
	return false
}
