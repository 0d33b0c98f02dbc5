package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/jal-shakti/jal-shakti-api/internal/config"
)

const (
	usersCollection = "users"
	defaultDBName   = "jal-shakti"
)

// Mongo - тонкий адаптер для подключения и коллекций MongoDB.
type Mongo struct {
	client *mongodriver.Client
	db     *mongodriver.Database
	users  *mongodriver.Collection
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
func New(ctx context.Context, cfg config.DBConfig) (*Mongo, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("mongo: empty cfg.DB.URL")
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := cli.Database(databaseFromURI(cfg.URL))

	m := &Mongo{
		client: cli,
		db:     db,
		users:  db.Collection(usersCollection),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = m.Close(ctx)
		return nil, err
	}

	return m, nil
}

// Ping проверяет доступность primary (используется /healthz).
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// ensureIndexes создаёт уникальные индексы идентификаторов входа.
// Индексы частичные: учитываются только живые записи с заданным полем,
// поэтому мягко удалённый пользователь не блокирует повторную регистрацию.
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	models := []mongodriver.IndexModel{
		{
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_live_email").SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "email", Value: bson.D{{Key: "$exists", Value: true}}},
					{Key: "isDeleted", Value: false},
				}),
		},
		{
			Keys: bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetName("uniq_live_phone").SetUnique(true).
				SetPartialFilterExpression(bson.D{
					{Key: "phone", Value: bson.D{{Key: "$exists", Value: true}}},
					{Key: "isDeleted", Value: false},
				}),
		},
	}

	if _, err := m.users.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongo ensure indexes: %w", err)
	}

	return nil
}

// databaseFromURI извлекает имя базы данных из URI-пути mongodb.
// Если оно отсутствует или не поддается расшифровке, возвращает значение по умолчанию.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}

	return defaultDBName
}
