// service содержит use-cases аутентификации: регистрацию, вход, выход,
// обновление пары токенов и проверку access-токена для защищённых маршрутов.
//
// Основные аспекты:
//   - Service не хранит состояние запроса и безопасен для конкурентного
//     использования при потокобезопасных зависимостях.
//   - Каждый use-case возвращает (результат, ошибка); доменные отказы —
//     сентинельные ошибки ниже, сравниваются через errors.Is.
//   - Logout — единственный use-case, который проглатывает ошибки формата
//     токенов и считает такую сессию уже завершённой.
//   - Публикация событий не влияет на результат use-case.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jal-shakti/jal-shakti-api/internal/config"
	"github.com/jal-shakti/jal-shakti-api/internal/events"
	"github.com/jal-shakti/jal-shakti-api/internal/models"
	"github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
	"github.com/jal-shakti/jal-shakti-api/internal/storage"
	"github.com/jal-shakti/jal-shakti-api/internal/token"
)

var (
	// ErrInvalidCredentials — пользователь не найден или пароль не подходит.
	// Транспорт: HTTP 401, код 1301.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserAlreadyExists — пользователь с таким email/phone уже есть.
	// Транспорт: HTTP 409, код 1304.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrMissingField — не передано обязательное поле.
	// Транспорт: HTTP 400, код 1005.
	ErrMissingField = errors.New("missing mandatory field")

	// ErrInvalidRole — роль вне допустимого набора.
	// Транспорт: HTTP 400, код 1006.
	ErrInvalidRole = errors.New("invalid role")

	// Ошибки токенов — из пакета token, для удобства сопоставления на транспорте.
	ErrMissingToken = token.ErrMissingToken
	ErrInvalidToken = token.ErrInvalidToken
	ErrExpiredToken = token.ErrExpiredToken
)

//go:generate mockgen -source=service.go -destination=../../mocks/publisher.go -package=mocks

// Publisher — часть шины событий, нужная use-cases.
type Publisher interface {
	Publish(ctx context.Context, et models.EventType, st models.SubType, ev events.Event) error
}

// Service описывает бизнес-логику аутентификации.
type Service struct {
	users  storage.UserStorage
	tokens *token.Service
	events Publisher // может быть nil: события тогда не публикуются
	cfg    config.AuthConfig
}

// New создаёт новый экземпляр Service.
func New(users storage.UserStorage, tokens *token.Service, pub Publisher, cfg config.AuthConfig) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		events: pub,
		cfg:    cfg,
	}
}

// isTokenError — ошибка формата/срока токена, а не сбой инфраструктуры.
func isTokenError(err error) bool {
	return errors.Is(err, token.ErrInvalidToken) || errors.Is(err, token.ErrExpiredToken)
}

// publishAuth отправляет auth-событие; сбой публикации только логируется.
func (s *Service) publishAuth(ctx context.Context, st models.SubType, userID string, client models.ClientInfo, meta *models.AuthMetadata) {
	if s.events == nil {
		return
	}

	ev := &models.AuthEvent{
		UserID:    userID,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Metadata:  meta,
	}

	if err := s.events.Publish(ctx, models.EventAuth, st, ev); err != nil {
		log.From(ctx).Warn("auth_event_publish_failed",
			slog.String("sub_type", string(st)),
			slog.String("err", err.Error()),
		)
	}
}

func outcome(success bool, reason string) *models.AuthMetadata {
	return &models.AuthMetadata{Success: &success, Reason: reason}
}
