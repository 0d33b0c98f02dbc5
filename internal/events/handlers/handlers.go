// handlers — побочные обработчики auth-событий шины: аудит-лог и метрики.
// Обработчики не возвращают ошибок наружу: всё, что пошло не так,
// логируется внутри.
package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jal-shakti/jal-shakti-api/internal/events"
	"github.com/jal-shakti/jal-shakti-api/internal/models"
	"github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
)

// Subscriber — часть шины, нужная для регистрации обработчиков.
type Subscriber interface {
	Subscribe(ctx context.Context, et models.EventType, st models.SubType, h events.Handler) (events.HandlerID, error)
}

// decodeAuth разбирает сообщение в AuthEvent; битое сообщение логируется.
func decodeAuth(ctx context.Context, msg events.Message) (models.AuthEvent, bool) {
	var ev models.AuthEvent
	if err := msg.Decode(&ev); err != nil {
		log.From(ctx).Error("auth_event_decode_failed",
			slog.String("channel", msg.Channel),
			slog.String("err", err.Error()),
		)
		return ev, false
	}

	return ev, true
}

// AuthAudit пишет успешные и неуспешные входы в лог.
type AuthAudit struct {
	log *slog.Logger
}

// NewAuthAudit создаёт аудит-обработчик; nil → slog.Default().
func NewAuthAudit(lg *slog.Logger) *AuthAudit {
	if lg == nil {
		lg = slog.Default()
	}

	return &AuthAudit{log: lg.With(slog.String("component", "auth_audit"))}
}

// LoginSuccess — обработчик auth:login_success.
func (a *AuthAudit) LoginSuccess(ctx context.Context, msg events.Message) error {
	ev, ok := decodeAuth(ctx, msg)
	if !ok {
		return nil
	}

	a.log.Info("login_succeeded",
		slog.String("user_id", ev.UserID),
		slog.String("ip", ev.IP),
		slog.String("user_agent", ev.UserAgent),
		slog.Time("timestamp", ev.Timestamp),
	)

	return nil
}

// LoginFailed — обработчик auth:login_failed.
func (a *AuthAudit) LoginFailed(ctx context.Context, msg events.Message) error {
	ev, ok := decodeAuth(ctx, msg)
	if !ok {
		return nil
	}

	var reason string
	if ev.Metadata != nil {
		reason = ev.Metadata.Reason
	}

	a.log.Warn("login_failed",
		slog.String("user_id", ev.UserID),
		slog.String("ip", ev.IP),
		slog.String("user_agent", ev.UserAgent),
		slog.String("reason", reason),
		slog.Time("timestamp", ev.Timestamp),
	)

	return nil
}

// AuthMetrics считает auth-события по подтипу.
type AuthMetrics struct {
	events *prometheus.CounterVec
}

// NewAuthMetrics регистрирует счётчик jal_shakti_auth_events_total в reg.
func NewAuthMetrics(reg prometheus.Registerer) (*AuthMetrics, error) {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jal_shakti",
		Subsystem: "auth",
		Name:      "events_total",
		Help:      "Auth events observed on the event bus, by subtype.",
	}, []string{"sub_type"})

	if err := reg.Register(cv); err != nil {
		return nil, fmt.Errorf("handlers.NewAuthMetrics: %w", err)
	}

	return &AuthMetrics{events: cv}, nil
}

// Observe — обработчик любых auth-событий.
func (m *AuthMetrics) Observe(_ context.Context, msg events.Message) error {
	m.events.WithLabelValues(string(msg.SubType)).Inc()
	return nil
}

// meteredSubTypes — подтипы, которые публикуют auth use-cases.
var meteredSubTypes = []models.SubType{
	models.AuthLoginSuccess,
	models.AuthLoginFailed,
	models.AuthLogout,
	models.AuthTokenRefresh,
}

// RegisterAuthHandlers подписывает аудит на login_success/login_failed и,
// если metrics не nil, счётчики на все публикуемые auth-подтипы.
func RegisterAuthHandlers(ctx context.Context, sub Subscriber, audit *AuthAudit, metrics *AuthMetrics) error {
	const op = "handlers.RegisterAuthHandlers"

	if audit != nil {
		if _, err := sub.Subscribe(ctx, models.EventAuth, models.AuthLoginSuccess, audit.LoginSuccess); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		if _, err := sub.Subscribe(ctx, models.EventAuth, models.AuthLoginFailed, audit.LoginFailed); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if metrics != nil {
		for _, st := range meteredSubTypes {
			if _, err := sub.Subscribe(ctx, models.EventAuth, st, metrics.Observe); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	return nil
}
