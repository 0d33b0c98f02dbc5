//go:generate mockgen -source=storage.go -destination=../../mocks/storage.go -package=mocks

package storage

import (
	"context"
	"errors"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
)

var (
	// ErrNotFound — пользователь не найден (или мягко удалён).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности email/phone.
	ErrAlreadyExists = errors.New("already exists")
	// ErrEmptyFilter — в фильтре не задан ни email, ни phone.
	ErrEmptyFilter = errors.New("empty user filter")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// UserBy находит пользователя по непустым полям фильтра (email, phone или оба).
	// Мягко удалённые пользователи не возвращаются. Нет записи — ErrNotFound.
	UserBy(ctx context.Context, filter models.UserFilter) (*models.User, error)
	// CreateUser хэширует пароль (если задан) и сохраняет пользователя.
	// Конфликт уникальности — ErrAlreadyExists.
	CreateUser(ctx context.Context, in models.NewUser) (*models.User, error)
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
