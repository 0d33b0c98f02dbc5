package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role — роль пользователя в системе.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleScientist  Role = "SCIENTIST"
	RoleResearcher Role = "RESEARCHER"
	RoleUser       Role = "USER"
)

// Valid сообщает, входит ли роль в допустимый набор.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleScientist, RoleResearcher, RoleUser:
		return true
	}

	return false
}

// User — учётная запись пользователя.
//
// Инварианты:
//   - заполнен хотя бы один из Email/Phone;
//   - PasswordHash никогда не сериализуется наружу.
type User struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Role            Role      `json:"role"`
	PasswordHash    string    `json:"-"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	Location        string    `json:"location,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasPassword сообщает, задан ли у пользователя пароль.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// PasswordMatches сравнивает пароль с сохранённым bcrypt-хэшем.
func (u *User) PasswordMatches(password string) bool {
	if !u.HasPassword() {
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// NewUser — данные для создания пользователя. Password передаётся в открытом
// виде и хэшируется хранилищем перед записью.
type NewUser struct {
	Name            string
	Email           string
	Phone           string
	Role            Role
	Password        string
	IsEmailVerified bool
	Location        string
}

// UserFilter — критерий поиска пользователя по идентификатору входа.
// Пустые поля не участвуют в фильтре.
type UserFilter struct {
	Email string
	Phone string
}

// Empty сообщает, что ни одно поле фильтра не задано.
func (f UserFilter) Empty() bool {
	return f.Email == "" && f.Phone == ""
}
