package token

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jal-shakti/jal-shakti-api/internal/cache"
	"github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
)

func refreshKey(userID string) string { return refreshKeyPrefix + userID }

func blacklistKey(jti string) string { return blacklistKeyPrefix + jti }

// StoreRefreshToken делает token каноническим refresh-токеном пользователя
// (TTL = время жизни refresh-токена). Предыдущее значение перезаписывается:
// выигрывает последняя запись.
func (s *Service) StoreRefreshToken(ctx context.Context, userID, token string) error {
	const op = "token.StoreRefreshToken"

	if err := s.store.Set(ctx, cache.KindString, refreshKey(userID), token, s.cfg.RefreshTTL()); err != nil {
		log.From(ctx).Error("refresh_store_failed",
			slog.String("op", op),
			slog.String("user_id", userID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ValidateStoredRefreshToken сравнивает token с каноническим значением.
// Отсутствие записи или несовпадение — false без ошибки.
func (s *Service) ValidateStoredRefreshToken(ctx context.Context, userID, token string) (bool, error) {
	const op = "token.ValidateStoredRefreshToken"

	stored, ok, err := cache.GetString(ctx, s.store, refreshKey(userID))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !ok || stored == "" {
		return false, nil
	}

	return stored == token, nil
}

// DeleteRefreshToken удаляет канонический refresh-токен пользователя.
func (s *Service) DeleteRefreshToken(ctx context.Context, userID string) error {
	const op = "token.DeleteRefreshToken"

	if err := s.store.Delete(ctx, refreshKey(userID)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Blacklist заносит jti в чёрный список на ttl. При ttl <= 0 запись не
// делается: такой токен уже не пройдёт проверку срока.
func (s *Service) Blacklist(ctx context.Context, jti string, ttl time.Duration) error {
	const op = "token.Blacklist"

	if jti == "" || ttl <= 0 {
		return nil
	}

	if err := s.store.Set(ctx, cache.KindString, blacklistKey(jti), blacklistSentinel, ttl); err != nil {
		log.From(ctx).Error("blacklist_write_failed",
			slog.String("op", op),
			slog.String("jti", jti),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsBlacklisted сообщает, есть ли jti в чёрном списке.
func (s *Service) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	const op = "token.IsBlacklisted"

	ok, err := s.store.Exists(ctx, blacklistKey(jti))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}
