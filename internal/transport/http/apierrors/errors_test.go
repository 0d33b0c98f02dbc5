package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jal-shakti/jal-shakti-api/internal/service"
	"github.com/jal-shakti/jal-shakti-api/internal/token"
)

func TestToHTTP_Mapping(t *testing.T) {
	tcs := []struct {
		name       string
		in         error
		wantStatus int
		wantCode   int
	}{
		{"invalid_credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{"already_exists", service.ErrUserAlreadyExists, http.StatusConflict, CodeUserAlreadyExists},
		{"missing_field", service.ErrMissingField, http.StatusBadRequest, CodeMissingField},
		{"invalid_role", service.ErrInvalidRole, http.StatusBadRequest, CodeInvalidInput},
		{"invalid_body", ErrInvalidBody, http.StatusBadRequest, CodeInvalidInput},
		{"missing_token", token.ErrMissingToken, http.StatusUnauthorized, CodeMissingToken},
		{"invalid_token", token.ErrInvalidToken, http.StatusUnauthorized, CodeInvalidToken},
		{"expired_token", token.ErrExpiredToken, http.StatusUnauthorized, CodeTokenExpired},
		{"canceled", context.Canceled, StatusClientClosedRequest, CodeInternal},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, CodeInternal},
		{"unknown", errors.New("mongo: connection reset"), http.StatusInternalServerError, CodeInternal},
		{"nil", nil, http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			gotStatus, resp := ToHTTP(tc.in)
			require.Equal(t, tc.wantStatus, gotStatus)
			require.Equal(t, tc.wantCode, resp.Code)
			require.False(t, resp.Success)
			require.NotEmpty(t, resp.Message)
		})
	}
}

func TestToHTTP_WrappedError(t *testing.T) {
	err := fmt.Errorf("service.auth.Logout: %w", fmt.Errorf("token.ExtractFromHeader: %w", token.ErrInvalidToken))

	status, resp := ToHTTP(err)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, CodeInvalidToken, resp.Code)
}

func TestToHTTP_DoesNotLeakDetails(t *testing.T) {
	_, resp := ToHTTP(errors.New("dial tcp 10.0.0.5:27017: refused"))
	require.NotContains(t, resp.Message, "10.0.0.5")
}

func TestWriteError_EnvelopeAndRequestID(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.Header.Set("X-Request-Id", "rid-1")

	WriteError(rr, req, service.ErrInvalidCredentials)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, false, body["success"])
	require.EqualValues(t, CodeInvalidCredentials, body["code"])
	require.Equal(t, "rid-1", body["request_id"])
}
