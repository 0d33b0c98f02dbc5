package events

import (
	"context"
	"errors"
	"sync"
)

// ErrTransportClosed — операция над закрытым транспортом.
var ErrTransportClosed = errors.New("event transport is closed")

// Deliver получает входящие сообщения транспорта.
type Deliver func(channel string, payload []byte)

// Transport — pub/sub транспорт шины. Connect может вызываться повторно
// после Close. Close ждёт завершения горутины доставки, поэтому вызывать
// его из Deliver нельзя.
type Transport interface {
	Connect(ctx context.Context, deliver Deliver) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
	Close() error
}

type memMessage struct {
	channel string
	payload []byte
}

// MemoryTransport — процессный транспорт: сообщения доставляются одной
// фоновой горутиной в порядке публикации.
type MemoryTransport struct {
	buffer int

	mu       sync.RWMutex
	channels map[string]struct{}
	queue    chan memMessage
	stop     chan struct{}
	done     chan struct{}
}

// NewMemoryTransport создаёт транспорт с очередью на buffer сообщений.
func NewMemoryTransport(buffer int) *MemoryTransport {
	if buffer <= 0 {
		buffer = 256
	}

	return &MemoryTransport{buffer: buffer}
}

func (t *MemoryTransport) Connect(_ context.Context, deliver Deliver) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.queue != nil {
		return nil
	}

	t.channels = make(map[string]struct{})
	t.queue = make(chan memMessage, t.buffer)
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.loop(t.queue, deliver, t.stop, t.done)

	return nil
}

func (t *MemoryTransport) loop(queue <-chan memMessage, deliver Deliver, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case m := <-queue:
			// После Close очередь не дочитывается.
			select {
			case <-stop:
				return
			default:
			}

			if deliver != nil {
				deliver(m.channel, m.payload)
			}
		case <-stop:
			return
		}
	}
}

// Publish ставит сообщение в очередь; блокируется только при полной очереди.
// Как и Redis PUBLISH, сообщение в канал без подписки отбрасывается:
// подписавшийся позже его не получит.
func (t *MemoryTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.RLock()
	queue, stop := t.queue, t.stop
	_, subscribed := t.channels[channel]
	t.mu.RUnlock()

	if queue == nil {
		return ErrTransportClosed
	}

	if !subscribed {
		return nil
	}

	select {
	case queue <- memMessage{channel: channel, payload: payload}:
		return nil
	case <-stop:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *MemoryTransport) Subscribe(_ context.Context, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.queue == nil {
		return ErrTransportClosed
	}

	t.channels[channel] = struct{}{}

	return nil
}

func (t *MemoryTransport) Unsubscribe(_ context.Context, channel string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.channels, channel)

	return nil
}

// Close останавливает фоновую доставку и ждёт её завершения. Сообщения,
// оставшиеся в очереди, отбрасываются. Из горутины доставки Close
// не вызывается: ожидание завершения в ней не закончится.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.queue, t.stop, t.done = nil, nil, nil
	t.channels = nil
	t.mu.Unlock()

	if stop == nil {
		return nil
	}

	close(stop)
	<-done

	return nil
}

var _ Transport = (*MemoryTransport)(nil)
