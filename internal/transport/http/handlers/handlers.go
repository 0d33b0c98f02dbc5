package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
	"github.com/jal-shakti/jal-shakti-api/internal/service"
	"github.com/jal-shakti/jal-shakti-api/internal/transport/http/apierrors"
)

//go:generate mockgen -source=handlers.go -destination=mocks/auth_service.go -package=mocks

// AuthService — use-cases аутентификации, которые обслуживает HTTP-слой.
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*models.User, error)
	Login(ctx context.Context, in service.LoginInput, client models.ClientInfo) (*models.LoginResult, error)
	Logout(ctx context.Context, authHeader, refreshToken string, client models.ClientInfo) error
	Refresh(ctx context.Context, refreshToken string, client models.ClientInfo) (*models.TokenPair, error)
	Authenticate(ctx context.Context, authHeader string) (*models.TokenPayload, error)
}

// Handlers агрегирует зависимости HTTP-обработчиков.
type Handlers struct {
	Auth AuthService
}

func New(auth AuthService) *Handlers {
	return &Handlers{Auth: auth}
}

// envelope — формат успешного ответа.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// writeJSON — единый JSON-ответ с нужным Content-Type.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// decodeStrict — строгий JSON-декодер: неизвестные поля запрещены.
// Пустое тело — ErrMissingField, синтаксический мусор — ErrInvalidBody.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		if errors.Is(err, io.EOF) {
			return service.ErrMissingField
		}

		return apierrors.ErrInvalidBody
	}

	return nil
}

// clientInfo извлекает адрес клиента (первый X-Forwarded-For или RemoteAddr)
// и User-Agent.
func clientInfo(r *http.Request) models.ClientInfo {
	ip := ""
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		ip = strings.TrimSpace(first)
	}

	if ip == "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = host
	}

	return models.ClientInfo{IP: ip, UserAgent: r.UserAgent()}
}

// Health — простая проверка живости API.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, "OK", nil)
}
