package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
	logctx "github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
	"github.com/jal-shakti/jal-shakti-api/internal/transport/http/apierrors"
)

// Authenticator проверяет значение заголовка Authorization.
type Authenticator interface {
	Authenticate(ctx context.Context, authHeader string) (*models.TokenPayload, error)
}

type payloadKey struct{}

// AuthBearer пропускает запрос дальше только с действительным access-токеном;
// проверенный payload кладётся в контекст. Иначе — 401 с кодом токена.
func AuthBearer(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				logctx.From(r.Context()).Debug("auth_rejected",
					slog.String("path", r.URL.Path),
					slog.String("err", err.Error()),
				)
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), payloadKey{}, p)
			ctx = logctx.With(ctx, slog.String("user_id", p.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PayloadFrom возвращает payload, положенный AuthBearer.
func PayloadFrom(ctx context.Context) (*models.TokenPayload, bool) {
	p, ok := ctx.Value(payloadKey{}).(*models.TokenPayload)
	return p, ok && p != nil
}
