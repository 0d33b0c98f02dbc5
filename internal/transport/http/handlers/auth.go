package handlers

import (
	"net/http"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
	"github.com/jal-shakti/jal-shakti-api/internal/service"
	"github.com/jal-shakti/jal-shakti-api/internal/transport/http/apierrors"
	"github.com/jal-shakti/jal-shakti-api/internal/transport/http/middleware"
)

type registerRequest struct {
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Phone           string      `json:"phone"`
	Role            models.Role `json:"role"`
	Password        *string     `json:"password"`
	IsEmailVerified *bool       `json:"isEmailVerified"`
	Location        *string     `json:"location"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	user, err := h.Auth.Register(r.Context(), service.RegisterInput{
		Name:            in.Name,
		Email:           in.Email,
		Phone:           in.Phone,
		Role:            in.Role,
		Password:        in.Password,
		IsEmailVerified: in.IsEmailVerified,
		Location:        in.Location,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeOK(w, http.StatusCreated, "User created successfully", user)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	res, err := h.Auth.Login(r.Context(), service.LoginInput{
		Email:    in.Email,
		Phone:    in.Phone,
		Password: in.Password,
	}, clientInfo(r))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "User login successful", res)
}

func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.Auth.Refresh(r.Context(), in.RefreshToken, clientInfo(r))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Token refreshed successfully", pair)
}

// Logout: access-токен приходит в Authorization, refresh — в теле.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	err := h.Auth.Logout(r.Context(), r.Header.Get("Authorization"), in.RefreshToken, clientInfo(r))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeOK(w, http.StatusOK, "Logged out successfully", nil)
}

// Me возвращает payload проверенного access-токена. Требует AuthBearer.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PayloadFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrMissingToken)
		return
	}

	writeOK(w, http.StatusOK, "OK", p)
}
