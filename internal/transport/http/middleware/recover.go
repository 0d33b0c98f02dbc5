package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	logctx "github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
	"github.com/jal-shakti/jal-shakti-api/internal/transport/http/apierrors"
)

var errPanic = errors.New("panic")

// Recover перехватывает panic и отвечает 500/1000; детали паники наружу не уходят.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}

					logctx.From(r.Context()).LogAttrs(r.Context(), slog.LevelError, "panic",
						slog.String("path", r.URL.Path),
						slog.Any("reason", rec),
					)
					apierrors.WriteError(w, r, errPanic)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
