// apierrors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает ошибку use-case (сентинельные ошибки service/token,
// обёрнутые через %w), на выход даёт:
//   - HTTP-статус;
//   - числовой код для клиента;
//   - безопасное message без утечки деталей.
package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jal-shakti/jal-shakti-api/internal/service"
)

// StatusClientClosedRequest — клиент закрыл соединение.
const StatusClientClosedRequest = 499

// Коды ошибок API.
const (
	CodeInternal           = 1000
	CodeMissingField       = 1005
	CodeInvalidInput       = 1006
	CodeTokenExpired       = 1011
	CodeInvalidCredentials = 1301
	CodeUserAlreadyExists  = 1304
	CodeInvalidToken       = 1501
	CodeMissingToken       = 1502
)

// ErrInvalidBody — тело запроса не разбирается как ожидаемый JSON.
var ErrInvalidBody = errors.New("invalid request body")

// ErrorResponse — единый формат ошибки для фронта.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type mapping struct {
	target  error
	status  int
	code    int
	message string
}

// Порядок важен: первая совпавшая через errors.Is запись выигрывает.
var table = []mapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password"},
	{service.ErrUserAlreadyExists, http.StatusConflict, CodeUserAlreadyExists, "User already exists"},
	{service.ErrMissingField, http.StatusBadRequest, CodeMissingField, "Missing mandatory field"},
	{service.ErrInvalidRole, http.StatusBadRequest, CodeInvalidInput, "Invalid role"},
	{ErrInvalidBody, http.StatusBadRequest, CodeInvalidInput, "Invalid request body"},
	{service.ErrMissingToken, http.StatusUnauthorized, CodeMissingToken, "Missing token"},
	{service.ErrExpiredToken, http.StatusUnauthorized, CodeTokenExpired, "Session expired, please login again"},
	{service.ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken, "Invalid token"},
	{context.Canceled, StatusClientClosedRequest, CodeInternal, "Request canceled"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeInternal, "Request timed out"},
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
//
// err == nil — программная ошибка вызова: 500, чтобы не отдать
// "200 OK" с телом ошибки. Неизвестные ошибки — 500/1000 без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err != nil {
		for _, m := range table {
			if errors.Is(err, m.target) {
				return m.status, ErrorResponse{Code: m.code, Message: m.message}
			}
		}
	}

	return http.StatusInternalServerError, ErrorResponse{
		Code:    CodeInternal,
		Message: "Something went wrong",
	}
}

// WriteError пишет статус и тело ошибки, добавляя request_id из X-Request-Id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
