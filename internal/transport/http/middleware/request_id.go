package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID — заголовок корреляции запроса.
const HeaderRequestID = "X-Request-Id"

type requestIDKey struct{}

// RequestID обеспечивает наличие X-Request-Id:
//  1. берёт значение из заголовка запроса, если оно есть;
//  2. иначе генерирует UUIDv4;
//  3. кладёт id в заголовки запроса и ответа и в контекст.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if id == "" {
				id = uuid.NewString()
				// apierrors.WriteError читает id из заголовка запроса.
				r.Header.Set(HeaderRequestID, id)
			}
			w.Header().Set(HeaderRequestID, id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFrom возвращает id запроса из контекста.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
