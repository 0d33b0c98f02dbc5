// cache — адаптер key-value хранилища с TTL: хранение refresh-токенов,
// записей чёрного списка и прочих служебных значений.
//
// Значения пишутся как строки; Kind управляет (де)сериализацией:
//   - KindString — строка как есть;
//   - KindJSON — json.Marshal при записи, json.RawMessage при чтении;
//   - KindNumber — десятичная запись числа, float64 при чтении;
//   - KindRaw — []byte/строка без преобразований, []byte при чтении.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Kind определяет способ (де)сериализации значения.
type Kind string

const (
	KindString Kind = "string"
	KindJSON   Kind = "json"
	KindNumber Kind = "number"
	KindRaw    Kind = "raw"
)

// ErrUnsupportedKind — неизвестный Kind или значение не подходит под Kind.
var ErrUnsupportedKind = errors.New("unsupported value kind")

// Entry — элемент пакетной записи MSet.
type Entry struct {
	Key   string
	Value any
	Kind  Kind
}

// Store — контракт key-value хранилища.
type Store interface {
	// Get возвращает декодированное значение и признак его наличия.
	Get(ctx context.Context, kind Kind, key string) (any, bool, error)
	// Set записывает значение; ttl <= 0 — без срока жизни.
	Set(ctx context.Context, kind Kind, key string, value any, ttl time.Duration) error
	// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// Exists сообщает, есть ли ключ.
	Exists(ctx context.Context, key string) (bool, error)
	// MSet атомарно записывает набор значений с общим ttl.
	MSet(ctx context.Context, entries []Entry, ttl time.Duration) error
	// MGet возвращает значения в порядке ключей; отсутствующие — nil.
	MGet(ctx context.Context, kind Kind, keys []string) ([]any, error)
	// Close освобождает соединения.
	Close() error
}

// GetString — типизированная обёртка над Store.Get для KindString.
func GetString(ctx context.Context, s Store, key string) (string, bool, error) {
	v, ok, err := s.Get(ctx, KindString, key)
	if err != nil || !ok {
		return "", ok, err
	}

	str, _ := v.(string)
	return str, true, nil
}

// GetJSON декодирует JSON-значение ключа в dst.
func GetJSON(ctx context.Context, s Store, key string, dst any) (bool, error) {
	v, ok, err := s.Get(ctx, KindJSON, key)
	if err != nil || !ok {
		return ok, err
	}

	raw, _ := v.(json.RawMessage)
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("cache.GetJSON: %w", err)
	}

	return true, nil
}

// encode приводит значение к строковому представлению по Kind.
func encode(kind Kind, value any) (string, error) {
	switch kind {
	case KindString:
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return fmt.Sprint(v), nil
		}
	case KindJSON:
		b, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case KindNumber:
		switch v := value.(type) {
		case int:
			return strconv.Itoa(v), nil
		case int64:
			return strconv.FormatInt(v, 10), nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		default:
			return "", fmt.Errorf("%w: %T as number", ErrUnsupportedKind, value)
		}
	case KindRaw:
		switch v := value.(type) {
		case []byte:
			return string(v), nil
		case string:
			return v, nil
		default:
			return "", fmt.Errorf("%w: %T as raw", ErrUnsupportedKind, value)
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
}

// decode восстанавливает значение из строкового представления.
func decode(kind Kind, raw string) (any, error) {
	switch kind {
	case KindString:
		return raw, nil
	case KindJSON:
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("%w: stored value is not json", ErrUnsupportedKind)
		}
		return json.RawMessage(raw), nil
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		return n, nil
	case KindRaw:
		return []byte(raw), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
}
