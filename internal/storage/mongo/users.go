package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
	"github.com/jal-shakti/jal-shakti-api/internal/storage"
)

// userDoc — представление пользователя в коллекции users.
type userDoc struct {
	ID              primitive.ObjectID `bson:"_id,omitempty"`
	Name            string             `bson:"name"`
	Email           string             `bson:"email,omitempty"`
	Phone           string             `bson:"phone,omitempty"`
	Role            models.Role        `bson:"role"`
	Password        string             `bson:"password,omitempty"`
	IsEmailVerified bool               `bson:"isEmailVerified"`
	Location        string             `bson:"location"`
	IsDeleted       bool               `bson:"isDeleted"`
	CreatedAt       time.Time          `bson:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt"`
}

func (d *userDoc) toModel() *models.User {
	return &models.User{
		ID:              d.ID.Hex(),
		Name:            d.Name,
		Email:           d.Email,
		Phone:           d.Phone,
		Role:            d.Role,
		PasswordHash:    d.Password,
		IsEmailVerified: d.IsEmailVerified,
		Location:        d.Location,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// userFilter строит запрос по непустым полям; мягко удалённые исключаются.
func userFilter(f models.UserFilter) bson.D {
	q := bson.D{{Key: "isDeleted", Value: bson.D{{Key: "$ne", Value: true}}}}

	if email := normalizeEmail(f.Email); email != "" {
		q = append(q, bson.E{Key: "email", Value: email})
	}

	if phone := strings.TrimSpace(f.Phone); phone != "" {
		q = append(q, bson.E{Key: "phone", Value: phone})
	}

	return q
}

func normalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// UserBy находит живого пользователя по email и/или phone.
func (m *Mongo) UserBy(ctx context.Context, filter models.UserFilter) (*models.User, error) {
	const op = "storage/mongo/UserBy"

	if filter.Empty() {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrEmptyFilter)
	}

	var doc userDoc
	if err := m.users.FindOne(ctx, userFilter(filter)).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

// CreateUser хэширует пароль bcrypt и вставляет документ.
func (m *Mongo) CreateUser(ctx context.Context, in models.NewUser) (*models.User, error) {
	const op = "storage/mongo/CreateUser"

	// MongoDB DateTime хранит миллисекунды.
	now := time.Now().UTC().Truncate(time.Millisecond)

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}

	doc := userDoc{
		ID:              primitive.NewObjectID(),
		Name:            strings.TrimSpace(in.Name),
		Email:           normalizeEmail(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
		Role:            role,
		IsEmailVerified: in.IsEmailVerified,
		Location:        in.Location,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("%s: hash password: %w", op, err)
		}
		doc.Password = string(hash)
	}

	if _, err := m.users.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return doc.toModel(), nil
}

var _ storage.Storage = (*Mongo)(nil)
