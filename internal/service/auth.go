package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
	"github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
	"github.com/jal-shakti/jal-shakti-api/internal/pkg/redact"
	"github.com/jal-shakti/jal-shakti-api/internal/storage"
	"github.com/jal-shakti/jal-shakti-api/internal/token"
)

// Причины отказа во входе (metadata.reason события login_failed).
const (
	reasonUserNotFound     = "user_not_found"
	reasonPasswordRequired = "password_required"
	reasonInvalidPassword  = "invalid_password"
	reasonPasswordNotSet   = "password_not_set"
)

// RegisterInput — данные регистрации. Необязательные поля заданы указателями;
// значения по умолчанию:
//   - Password: AuthConfig.DefaultUserPassword;
//   - IsEmailVerified: false;
//   - Location: "";
//   - Role: USER.
type RegisterInput struct {
	Name            string
	Email           string
	Phone           string
	Role            models.Role
	Password        *string
	IsEmailVerified *bool
	Location        *string
}

// resolve подставляет значения по умолчанию.
func (in RegisterInput) resolve(defaultPassword string) models.NewUser {
	out := models.NewUser{
		Name:     strings.TrimSpace(in.Name),
		Email:    strings.TrimSpace(in.Email),
		Phone:    strings.TrimSpace(in.Phone),
		Role:     in.Role,
		Password: defaultPassword,
	}

	if out.Role == "" {
		out.Role = models.RoleUser
	}

	if in.Password != nil {
		out.Password = *in.Password
	}

	if in.IsEmailVerified != nil {
		out.IsEmailVerified = *in.IsEmailVerified
	}

	if in.Location != nil {
		out.Location = *in.Location
	}

	return out
}

// LoginInput — идентификатор входа: (Email и Password) или Phone.
type LoginInput struct {
	Email    string
	Phone    string
	Password string
}

// Register создаёт пользователя, если email/phone ещё не заняты.
// Возвращённый пользователь не содержит пароля в сериализуемых полях.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	const op = "service.auth.Register"

	nu := in.resolve(s.cfg.DefaultUserPassword)

	if nu.Email == "" && nu.Phone == "" {
		return nil, fmt.Errorf("%s: email or phone: %w", op, ErrMissingField)
	}

	if !nu.Role.Valid() {
		return nil, fmt.Errorf("%s: %q: %w", op, nu.Role, ErrInvalidRole)
	}

	_, err := s.users.UserBy(ctx, models.UserFilter{Email: nu.Email, Phone: nu.Phone})
	if err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.CreateUser(ctx, nu)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		slog.String("user_id", user.ID),
		slog.String("identity", redact.Identity(user.Email, user.Phone)),
		slog.String("role", string(user.Role)),
	)

	return user, nil
}

// Login проверяет учётные данные и выдаёт пару токенов.
//
// Пароль сравнивается, только если он сохранён у пользователя; вход по
// телефону без пароля для пользователя без пароля проходит без сравнения.
func (s *Service) Login(ctx context.Context, in LoginInput, client models.ClientInfo) (*models.LoginResult, error) {
	const op = "service.auth.Login"

	email := strings.TrimSpace(in.Email)
	phone := strings.TrimSpace(in.Phone)

	if !((email != "" && in.Password != "") || phone != "") {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingField)
	}

	filter := models.UserFilter{Phone: phone}
	if email != "" {
		filter = models.UserFilter{Email: email}
	}

	lg := log.From(ctx)

	fail := func(userID, reason string) error {
		lg.Warn("login_rejected",
			slog.String("identity", redact.Identity(email, phone)),
			slog.String("reason", reason),
		)
		s.publishAuth(ctx, models.AuthLoginFailed, userID, client, outcome(false, reason))
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.users.UserBy(ctx, filter)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fail("", reasonUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case user.HasPassword() && in.Password == "":
		return nil, fail(user.ID, reasonPasswordRequired)
	case user.HasPassword() && !user.PasswordMatches(in.Password):
		return nil, fail(user.ID, reasonInvalidPassword)
	case !user.HasPassword() && in.Password != "":
		return nil, fail(user.ID, reasonPasswordNotSet)
	}

	payload := models.TokenPayload{ID: user.ID, Role: user.Role, Email: user.Email}

	pair, err := s.issuePair(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tokens.StoreRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publishAuth(ctx, models.AuthLoginSuccess, user.ID, client, outcome(true, ""))

	return &models.LoginResult{User: user, TokenPair: *pair}, nil
}

// Logout отзывает access- и refresh-токены и удаляет канонический
// refresh-токен пользователя.
//
// Недействительные или истёкшие токены не считаются ошибкой: такие токены
// уже не работают. Наружу уходят только ошибки разбора заголовка и сбои
// инфраструктуры.
func (s *Service) Logout(ctx context.Context, authHeader, refreshToken string, client models.ClientInfo) error {
	const op = "service.auth.Logout"

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingToken)
	}

	accessToken, err := token.ExtractFromHeader(authHeader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	lg := log.From(ctx)

	// tolerate превращает ошибки токена в «нет payload».
	tolerate := func(kind models.TokenKind, err error) error {
		if err != nil && isTokenError(err) {
			lg.Debug("logout_token_rejected",
				slog.String("kind", string(kind)),
				slog.String("err", err.Error()),
			)
			return nil
		}

		return err
	}

	var accessP, refreshP *models.TokenPayload

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.tokens.VerifyAccess(gctx, accessToken)
		accessP = p
		return tolerate(models.AccessToken, err)
	})
	g.Go(func() error {
		p, err := s.tokens.VerifyRefresh(gctx, refreshToken)
		refreshP = p
		return tolerate(models.RefreshToken, err)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Запись удаляется, только если токен с валидной подписью остаётся
	// каноническим: вытесненный токен не завершает чужую сессию.
	ownerID, err := s.canonicalOwner(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	g, gctx = errgroup.WithContext(ctx)
	if accessP != nil {
		g.Go(func() error {
			return s.tokens.Blacklist(gctx, accessP.JTI, s.tokens.RemainingTTL(accessP))
		})
	}
	if refreshP != nil {
		g.Go(func() error {
			return s.tokens.Blacklist(gctx, refreshP.JTI, s.tokens.RemainingTTL(refreshP))
		})
	}
	if ownerID != "" {
		g.Go(func() error {
			return s.tokens.DeleteRefreshToken(gctx, ownerID)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	userID := ownerID
	switch {
	case userID != "":
	case refreshP != nil:
		userID = refreshP.ID
	case accessP != nil:
		userID = accessP.ID
	}

	lg.Info("user_logged_out",
		slog.String("user_id", userID),
		slog.Bool("access_revoked", accessP != nil),
		slog.Bool("refresh_revoked", refreshP != nil),
	)

	s.publishAuth(ctx, models.AuthLogout, userID, client, nil)

	return nil
}

// canonicalOwner возвращает субъекта refresh-токена, если подпись верна
// и токен остаётся каноническим; срок действия не проверяется.
func (s *Service) canonicalOwner(ctx context.Context, refreshToken string) (string, error) {
	p, err := s.tokens.Claims(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", nil
	}

	ok, err := s.tokens.ValidateStoredRefreshToken(ctx, p.ID, refreshToken)
	if err != nil {
		return "", err
	}

	if !ok {
		return "", nil
	}

	return p.ID, nil
}

// Refresh выдаёт новую пару по каноническому refresh-токену; старый
// refresh-токен попадает в чёрный список на остаток срока.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client models.ClientInfo) (*models.TokenPair, error) {
	const op = "service.auth.Refresh"

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingToken)
	}

	p, err := s.tokens.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ok, err := s.tokens.ValidateStoredRefreshToken(ctx, p.ID, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		log.From(ctx).Warn("refresh_not_canonical",
			slog.String("op", op),
			slog.String("user_id", p.ID),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	pair, err := s.issuePair(ctx, p.Subject())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tokens.Blacklist(ctx, p.JTI, s.tokens.RemainingTTL(p)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tokens.StoreRefreshToken(ctx, p.ID, pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publishAuth(ctx, models.AuthTokenRefresh, p.ID, client, outcome(true, ""))

	return pair, nil
}

// Authenticate проверяет access-токен из заголовка Authorization.
func (s *Service) Authenticate(ctx context.Context, authHeader string) (*models.TokenPayload, error) {
	const op = "service.auth.Authenticate"

	raw, err := token.ExtractFromHeader(authHeader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	p, err := s.tokens.VerifyAccess(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return p, nil
}

// issuePair выпускает access и refresh параллельно.
func (s *Service) issuePair(ctx context.Context, payload models.TokenPayload) (*models.TokenPair, error) {
	var pair models.TokenPair

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.tokens.IssueAccess(gctx, payload)
		pair.AccessToken = t
		return err
	})
	g.Go(func() error {
		t, err := s.tokens.IssueRefresh(gctx, payload)
		pair.RefreshToken = t
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pair.ExpiresIn = s.tokens.AccessExpiresIn()

	return &pair, nil
}
