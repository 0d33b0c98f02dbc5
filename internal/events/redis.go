package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport — транспорт поверх Redis PUBLISH/SUBSCRIBE: один клиент на
// публикацию и одно соединение подписки на процесс.
type RedisTransport struct {
	opts *redis.Options
	log  *slog.Logger

	mu      sync.Mutex
	pub     *redis.Client
	sub     *redis.Client
	ps      *redis.PubSub
	deliver Deliver
	done    chan struct{}
}

// NewRedisTransport создаёт транспорт; соединения открываются в Connect.
func NewRedisTransport(opts *redis.Options, logger *slog.Logger) *RedisTransport {
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisTransport{opts: opts, log: logger}
}

func (t *RedisTransport) Connect(ctx context.Context, deliver Deliver) error {
	const op = "events.redis.Connect"

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pub != nil {
		return nil
	}

	pub := redis.NewClient(t.opts)
	if err := pub.Ping(ctx).Err(); err != nil {
		_ = pub.Close()
		return fmt.Errorf("%s: publisher: %w", op, err)
	}

	sub := redis.NewClient(t.opts)
	if err := sub.Ping(ctx).Err(); err != nil {
		_ = pub.Close()
		_ = sub.Close()
		return fmt.Errorf("%s: subscriber: %w", op, err)
	}

	t.pub, t.sub = pub, sub
	t.deliver = deliver

	return nil
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	pub := t.pub
	t.mu.Unlock()

	if pub == nil {
		return ErrTransportClosed
	}

	if err := pub.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("events.redis.Publish: %w", err)
	}

	return nil
}

// Subscribe добавляет канал к соединению подписки; первое обращение
// открывает соединение и запускает чтение.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string) error {
	const op = "events.redis.Subscribe"

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sub == nil {
		return ErrTransportClosed
	}

	if t.ps == nil {
		ps := t.sub.Subscribe(ctx, channel)
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return fmt.Errorf("%s: %w", op, err)
		}

		t.ps = ps
		t.done = make(chan struct{})
		go t.read(ps.Channel(), t.deliver, t.done)

		return nil
	}

	if err := t.ps.Subscribe(ctx, channel); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (t *RedisTransport) read(ch <-chan *redis.Message, deliver Deliver, done chan<- struct{}) {
	defer close(done)

	for msg := range ch {
		deliver(msg.Channel, []byte(msg.Payload))
	}
}

func (t *RedisTransport) Unsubscribe(ctx context.Context, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ps == nil {
		return nil
	}

	if err := t.ps.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("events.redis.Unsubscribe: %w", err)
	}

	return nil
}

// Close закрывает подписку и оба клиента.
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	ps, done := t.ps, t.done
	pub, sub := t.pub, t.sub
	t.ps, t.done, t.pub, t.sub = nil, nil, nil, nil
	t.mu.Unlock()

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if ps != nil {
		keep(ps.Close())
		<-done
	}

	if sub != nil {
		keep(sub.Close())
	}

	if pub != nil {
		keep(pub.Close())
	}

	if firstErr != nil {
		t.log.Warn("event_transport_close_failed", slog.String("err", firstErr.Error()))
		return fmt.Errorf("events.redis.Close: %w", firstErr)
	}

	return nil
}

var _ Transport = (*RedisTransport)(nil)
