// config предоставляет структуру конфигурации jal-shakti-api и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл .yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig    `yaml:"http"`
	Auth     AuthConfig    `yaml:"auth"`
	DB       DBConfig      `yaml:"db"`
	Redis    RedisConfig   `yaml:"redis"`
	Events   EventsConfig  `yaml:"events"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Request  time.Duration `yaml:"request" env:"REQUEST_TIMEOUT" env-default:"10s"`
	Connect  time.Duration `yaml:"connect" env:"CONNECT_TIMEOUT" env-default:"10s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig — сетевые настройки HTTP-сервера.
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"3000"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/api"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
//
// Время жизни задаётся в единицах исходного API: access — в минутах,
// refresh — в днях.
type AuthConfig struct {
	AccessSecret          string   `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	RefreshSecret         string   `yaml:"jwt_refresh_secret" env:"JWT_REFRESH_SECRET" env-required:"true"`
	AccessLifetimeMinutes int      `yaml:"access_expiration_minutes" env:"JWT_ACCESS_EXPIRATION_MINUTES" env-default:"30"`
	RefreshLifetimeDays   int      `yaml:"refresh_expiration_days" env:"JWT_REFRESH_EXPIRATION_DAYS" env-default:"30"`
	Issuer                string   `yaml:"issuer" env:"JWT_ISSUER" env-default:"jal-shakti-api"`
	Audience              []string `yaml:"audience" env:"JWT_AUDIENCE" env-default:"jal-shakti-client"`
	DefaultUserPassword   string   `yaml:"default_password" env:"DEFAULT_PASSWORD" env-default:"jal-shakti@123"`
}

// maxAccessLifetimeMinutes — от суток и выше время жизни округлялось бы до дней.
const maxAccessLifetimeMinutes = 24*60 - 1

// ErrInvalidLifetime — время жизни токенов вне допустимого диапазона.
var ErrInvalidLifetime = errors.New("invalid token lifetime")

// Validate проверяет диапазоны времени жизни: access — 1..1439 минут,
// refresh — не меньше одного дня.
func (a AuthConfig) Validate() error {
	if a.AccessLifetimeMinutes < 1 || a.AccessLifetimeMinutes > maxAccessLifetimeMinutes {
		return fmt.Errorf("%w: access_expiration_minutes must be in 1..%d, got %d",
			ErrInvalidLifetime, maxAccessLifetimeMinutes, a.AccessLifetimeMinutes)
	}

	if a.RefreshLifetimeDays < 1 {
		return fmt.Errorf("%w: refresh_expiration_days must be >= 1, got %d",
			ErrInvalidLifetime, a.RefreshLifetimeDays)
	}

	return nil
}

// AccessTTL возвращает время жизни access-токена.
func (a AuthConfig) AccessTTL() time.Duration {
	return time.Duration(a.AccessLifetimeMinutes) * time.Minute
}

// RefreshTTL возвращает время жизни refresh-токена.
func (a AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(a.RefreshLifetimeDays) * 24 * time.Hour
}

// DBConfig — настройки подключения к MongoDB.
type DBConfig struct {
	URL string `yaml:"mongodb_url" env:"MONGODB_URL" env-required:"true"`
}

// RedisConfig — настройки Redis (кэш токенов и pub/sub шины событий).
type RedisConfig struct {
	URL       string `yaml:"redis_url" env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"jal-shakti:"`
	// InMemory заменяет Redis процессными реализациями (только для local).
	InMemory bool `yaml:"in_memory" env:"REDIS_IN_MEMORY" env-default:"false"`
}

// EventsConfig — настройки шины событий.
type EventsConfig struct {
	ChannelPrefix string `yaml:"channel_prefix" env:"EVENTS_CHANNEL_PREFIX" env-default:"jal-shakti:events"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		if err := cfg.Auth.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	if err := cfg.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
