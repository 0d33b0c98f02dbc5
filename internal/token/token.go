// token выпускает и проверяет подписанные JWT (HS512) и ведёт серверное
// состояние токенов в key-value хранилище: канонический refresh-токен
// пользователя и чёрный список jti.
//
// Состояния токена: Issued → Active → {Expired | Blacklisted | Superseded}.
// Проверку проходят только Active-токены; Superseded относится к refresh-токенам,
// которые после записи более нового токена того же субъекта остаются
// криптографически валидными, но не проходят ValidateStoredRefreshToken.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jal-shakti/jal-shakti-api/internal/cache"
	"github.com/jal-shakti/jal-shakti-api/internal/config"
	"github.com/jal-shakti/jal-shakti-api/internal/models"
	"github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
)

var (
	// ErrMissingToken — токен не передан. Транспорт: HTTP 401, код 1502.
	ErrMissingToken = errors.New("token is missing")

	// ErrInvalidToken — неверная подпись/issuer/audience, неверный формат
	// заголовка или jti в чёрном списке. Транспорт: HTTP 401, код 1501.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken — срок действия токена истёк. Транспорт: HTTP 401, код 1011.
	ErrExpiredToken = errors.New("token expired")

	// ErrInvalidLifetime — время жизни должно быть положительным.
	ErrInvalidLifetime = errors.New("token lifetime must be positive")
)

const (
	// minutesPerDay — порог, начиная с которого время жизни считается в днях.
	minutesPerDay = 1440

	refreshKeyPrefix   = "refresh:"
	blacklistKeyPrefix = "blacklist:"
	blacklistSentinel  = "1"
)

var signingMethod = jwt.SigningMethodHS512

type claims struct {
	UserID string      `json:"id"`
	Role   models.Role `json:"role"`
	Email  string      `json:"email"`
	jwt.RegisteredClaims
}

// Service владеет ключами refresh:{userId} и blacklist:{jti}.
// Безопасен для конкурентного использования, если безопасен cache.Store.
type Service struct {
	store cache.Store
	cfg   config.AuthConfig
	now   func() time.Time
}

// New создаёт Service поверх хранилища store.
func New(store cache.Store, cfg config.AuthConfig) *Service {
	return &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetClock подменяет источник времени для выпуска и проверки токенов.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Lifetime переводит время жизни в единицах API в длительность:
// значения меньше 1440 — минуты, иначе — целые дни (lifetime/1440).
func Lifetime(lifetime int) time.Duration {
	if lifetime < minutesPerDay {
		return time.Duration(lifetime) * time.Minute
	}

	return time.Duration(lifetime/minutesPerDay) * 24 * time.Hour
}

// Issue подписывает payload секретом secret. Каждый токен получает новый jti (UUIDv4).
// Поля JTI/IssuedAt/ExpiresAt входного payload игнорируются.
func (s *Service) Issue(ctx context.Context, payload models.TokenPayload, secret string, lifetime int) (string, error) {
	const op = "token.Issue"

	if lifetime <= 0 {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidLifetime)
	}

	now := s.now().UTC()
	c := claims{
		UserID: payload.ID,
		Role:   payload.Role,
		Email:  payload.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   payload.ID,
			Issuer:    s.cfg.Issuer,
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(Lifetime(lifetime))),
		},
	}

	signed, err := jwt.NewWithClaims(signingMethod, c).SignedString([]byte(secret))
	if err != nil {
		log.From(ctx).Error("token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// IssueAccess выпускает access-токен на AccessLifetimeMinutes.
func (s *Service) IssueAccess(ctx context.Context, payload models.TokenPayload) (string, error) {
	return s.Issue(ctx, payload, s.cfg.AccessSecret, s.cfg.AccessLifetimeMinutes)
}

// IssueRefresh выпускает refresh-токен на RefreshLifetimeDays (в днях).
func (s *Service) IssueRefresh(ctx context.Context, payload models.TokenPayload) (string, error) {
	return s.Issue(ctx, payload, s.cfg.RefreshSecret, s.cfg.RefreshLifetimeDays*minutesPerDay)
}

// AccessExpiresIn — время жизни access-токена в секундах (expiresIn ответа).
// Считается по тому же правилу, что и exp выпускаемого токена.
func (s *Service) AccessExpiresIn() int64 {
	return int64(Lifetime(s.cfg.AccessLifetimeMinutes) / time.Second)
}

// Verify проверяет подпись, issuer, audience и срок действия, затем jti по
// чёрному списку. Ошибки хранилища возвращаются обёрнутыми как есть.
func (s *Service) Verify(ctx context.Context, tokenStr, secret string) (*models.TokenPayload, error) {
	const op = "token.Verify"

	p, err := s.parse(tokenStr, secret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if p.JTI == "" {
		return p, nil
	}

	black, err := s.IsBlacklisted(ctx, p.JTI)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if black {
		log.From(ctx).Warn("token_blacklisted",
			slog.String("op", op),
			slog.String("user_id", p.ID),
			slog.String("jti", p.JTI),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return p, nil
}

// VerifyAccess — Verify с секретом access-токенов.
func (s *Service) VerifyAccess(ctx context.Context, tokenStr string) (*models.TokenPayload, error) {
	return s.Verify(ctx, tokenStr, s.cfg.AccessSecret)
}

// VerifyRefresh — Verify с секретом refresh-токенов.
func (s *Service) VerifyRefresh(ctx context.Context, tokenStr string) (*models.TokenPayload, error) {
	return s.Verify(ctx, tokenStr, s.cfg.RefreshSecret)
}

// Claims возвращает payload токена с проверенной подписью, issuer и audience,
// допуская истёкший срок. Чёрный список не проверяется.
func (s *Service) Claims(tokenStr, secret string) (*models.TokenPayload, error) {
	const op = "token.Claims"

	p, err := s.parse(tokenStr, secret)
	if err != nil && !errors.Is(err, ErrExpiredToken) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

// parse при ErrExpiredToken возвращает и payload (подпись, issuer и audience проверены).
func (s *Service) parse(tokenStr, secret string) (*models.TokenPayload, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	var c claims
	tok, err := jwt.ParseWithClaims(tokenStr, &c,
		func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && expiredOnly(err) && validSignature(tokenStr, secret) {
			return payloadOf(&c), ErrExpiredToken
		}

		return nil, ErrInvalidToken
	}

	if !tok.Valid || c.UserID == "" {
		return nil, ErrInvalidToken
	}

	return payloadOf(&c), nil
}

// expiredOnly сообщает, что кроме срока действия остальные claims валидны.
func expiredOnly(err error) bool {
	return !errors.Is(err, jwt.ErrTokenInvalidIssuer) &&
		!errors.Is(err, jwt.ErrTokenInvalidAudience) &&
		!errors.Is(err, jwt.ErrTokenUsedBeforeIssued) &&
		!errors.Is(err, jwt.ErrTokenNotValidYet) &&
		!errors.Is(err, jwt.ErrTokenSignatureInvalid)
}

// validSignature проверяет подпись независимо от порядка проверок парсера.
func validSignature(tokenStr, secret string) bool {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		return false
	}

	sig, err := jwt.NewParser().DecodeSegment(parts[2])
	if err != nil {
		return false
	}

	return signingMethod.Verify(parts[0]+"."+parts[1], sig, []byte(secret)) == nil
}

func payloadOf(c *claims) *models.TokenPayload {
	p := &models.TokenPayload{
		ID:    c.UserID,
		Role:  c.Role,
		Email: c.Email,
		JTI:   c.ID,
	}

	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time.UTC()
	}

	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time.UTC()
	}

	return p
}

// RemainingTTL — оставшееся окно действия токена; используется как TTL записи
// чёрного списка. Неположительное значение означает, что запись не нужна.
func (s *Service) RemainingTTL(p *models.TokenPayload) time.Duration {
	if p == nil || p.ExpiresAt.IsZero() {
		return 0
	}

	return p.ExpiresAt.Sub(s.now())
}

// ExtractFromHeader достаёт токен из значения "Bearer <token>".
func ExtractFromHeader(value string) (string, error) {
	const op = "token.ExtractFromHeader"

	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%s: %w", op, ErrMissingToken)
	}

	parts := strings.Fields(value)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return parts[1], nil
}
