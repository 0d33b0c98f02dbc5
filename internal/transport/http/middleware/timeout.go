package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
	"github.com/jal-shakti/jal-shakti-api/internal/transport/http/apierrors"
)

// Timeout ограничивает запрос сроком d; более ранний deadline клиента
// сохраняется. Если обработчик упёрся в срок и ничего не ответил,
// клиент получает 504 в общем конверте ошибки. d <= 0 отключает мидлвар.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))

			if sw.status != 0 || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}

			logctx.From(ctx).Warn("request_timeout",
				slog.String("path", r.URL.Path),
				slog.Duration("limit", d),
			)
			apierrors.WriteError(w, r, ctx.Err())
		})
	}
}
