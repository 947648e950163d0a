package middleware

import (
	"net/http"
	"runtime/debug"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
)

// RecoveryMiddleware обрабатывает паники в обработчиках HTTP
func RecoveryMiddleware(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Прокси прерывает ответ этой паникой, ее нужно пробросить
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.Error("Panic recovered in HTTP handler",
					logger.Any("panic", rec),
					logger.String("stack_trace", string(debug.Stack())),
					logger.String("method", r.Method),
					logger.String("path", r.URL.Path),
					logger.String("remote_addr", r.RemoteAddr),
					logger.CtxField(r.Context()),
				)

				pkgerrors.WriteJSON(w, pkgerrors.New(pkgerrors.ErrInternal, "Internal server error"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
