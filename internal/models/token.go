package models

import "time"

// TokenKind — вид токена.
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// TokenPayload — полезная нагрузка подписанного токена.
//
// Описание:
//   - ID/Role/Email — данные субъекта;
//   - JTI — уникальный идентификатор токена, ключ чёрного списка;
//   - IssuedAt/ExpiresAt — заполняются при выпуске и проверке.
type TokenPayload struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Email     string    `json:"email"`
	JTI       string    `json:"jti,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
}

// Subject возвращает payload без служебных полей (jti/iat/exp).
func (p TokenPayload) Subject() TokenPayload {
	return TokenPayload{ID: p.ID, Role: p.Role, Email: p.Email}
}

// TokenPair — пара токенов, выдаваемая при входе и обновлении.
//
// ExpiresIn — время жизни access-токена в секундах.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// LoginResult — результат успешного входа.
type LoginResult struct {
	User *User `json:"user"`
	TokenPair
}
