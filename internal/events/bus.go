// events — шина событий поверх pub/sub транспорта.
//
// Шина создаётся явно (New) и передаётся зависимым компонентам.
// Жизненный цикл: Uninitialized → Initialized → Disconnected;
// после Disconnect шину можно снова поднять через Initialize.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jal-shakti/jal-shakti-api/internal/models"
	"github.com/jal-shakti/jal-shakti-api/internal/pkg/log"
)

// DefaultChannelPrefix — префикс каналов по умолчанию.
const DefaultChannelPrefix = "jal-shakti:events"

var (
	// ErrNotInitialized — шина не инициализирована или уже отключена.
	ErrNotInitialized = errors.New("event bus is not initialized")

	// ErrInvalidChannel — подтип не принадлежит типу события.
	ErrInvalidChannel = errors.New("subtype does not belong to event type")

	// ErrNilHandler — попытка подписать nil-обработчик.
	ErrNilHandler = errors.New("nil event handler")
)

// State — состояние шины.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDisconnected:
		return "disconnected"
	}

	return "unknown"
}

// Event — полезная нагрузка, которую шина штампует перед отправкой.
type Event interface {
	Stamp(id string, at time.Time, et models.EventType, st models.SubType)
}

// Message — сообщение, доставленное обработчику.
type Message struct {
	Channel   string
	EventType models.EventType
	SubType   models.SubType
	Payload   []byte
}

// Decode разбирает JSON-нагрузку в v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Handler обрабатывает сообщение. Ошибки и паники логируются шиной
// и дальше не распространяются.
type Handler func(ctx context.Context, msg Message) error

// HandlerID идентифицирует подписку; нулевое значение означает «все обработчики».
type HandlerID uint64

// Options — параметры шины.
type Options struct {
	// ChannelPrefix — префикс имён каналов; пустой → DefaultChannelPrefix.
	ChannelPrefix string
	Logger        *slog.Logger
}

type registration struct {
	id HandlerID
	fn Handler
}

type channelEntry struct {
	eventType models.EventType
	subType   models.SubType
	handlers  []registration
}

// Bus — шина событий. Безопасна для конкурентного использования.
type Bus struct {
	transport Transport
	prefix    string
	log       *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	state    State
	channels map[string]*channelEntry
	lastID   HandlerID
	// closing закрывается, когда завершилось отложенное закрытие транспорта.
	closing chan struct{}
}

// New создаёт шину в состоянии Uninitialized.
func New(t Transport, opts Options) *Bus {
	prefix := opts.ChannelPrefix
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}

	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}

	return &Bus{
		transport: t,
		prefix:    prefix,
		log:       lg.With(slog.String("component", "event_bus")),
		now:       time.Now,
		channels:  make(map[string]*channelEntry),
	}
}

// Channel возвращает имя канала: {prefix}:{eventType}:{subType} или
// {prefix}:{eventType} для пустого подтипа.
func (b *Bus) Channel(et models.EventType, st models.SubType) string {
	if st == "" {
		return b.prefix + ":" + string(et)
	}

	return b.prefix + ":" + string(et) + ":" + string(st)
}

// State возвращает текущее состояние шины.
func (b *Bus) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.state
}

// Initialize подключает транспорт. Повторный вызов в состоянии Initialized — no-op.
func (b *Bus) Initialize(ctx context.Context) error {
	const op = "events.Bus.Initialize"

	// Отложенное закрытие транспорта должно завершиться до нового Connect.
	b.mu.RLock()
	closing := b.closing
	b.mu.RUnlock()
	if closing != nil && !inDispatch(ctx) {
		select {
		case <-closing:
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateInitialized {
		return nil
	}

	if err := b.transport.Connect(ctx, b.dispatch); err != nil {
		b.log.Error("event_bus_connect_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	b.state = StateInitialized
	b.log.Info("event_bus_initialized", slog.String("prefix", b.prefix))

	return nil
}

// Publish штампует событие (id, timestamp, тип, подтип), кодирует его в JSON
// и отправляет в канал пары (et, st). Доставка не ждёт обработчиков.
func (b *Bus) Publish(ctx context.Context, et models.EventType, st models.SubType, ev Event) error {
	const op = "events.Bus.Publish"

	if !et.Accepts(st) {
		return fmt.Errorf("%s: %s/%s: %w", op, et, st, ErrInvalidChannel)
	}

	if b.State() != StateInitialized {
		return fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}

	ev.Stamp(uuid.NewString(), b.now().UTC(), et, st)

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	channel := b.Channel(et, st)
	if err := b.transport.Publish(ctx, channel, payload); err != nil {
		log.From(ctx).Error("event_publish_failed",
			slog.String("op", op),
			slog.String("channel", channel),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Subscribe регистрирует обработчик для пары (et, st). Пара проверяется при
// регистрации. Первый обработчик канала открывает подписку транспорта.
func (b *Bus) Subscribe(ctx context.Context, et models.EventType, st models.SubType, h Handler) (HandlerID, error) {
	const op = "events.Bus.Subscribe"

	if h == nil {
		return 0, fmt.Errorf("%s: %w", op, ErrNilHandler)
	}

	if !et.Accepts(st) {
		return 0, fmt.Errorf("%s: %s/%s: %w", op, et, st, ErrInvalidChannel)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateInitialized {
		return 0, fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}

	channel := b.Channel(et, st)
	entry, ok := b.channels[channel]
	if !ok {
		if err := b.transport.Subscribe(ctx, channel); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}

		entry = &channelEntry{eventType: et, subType: st}
		b.channels[channel] = entry
	}

	b.lastID++
	entry.handlers = append(entry.handlers, registration{id: b.lastID, fn: h})

	b.log.Debug("event_handler_subscribed",
		slog.String("channel", channel),
		slog.Uint64("handler_id", uint64(b.lastID)),
	)

	return b.lastID, nil
}

// Unsubscribe снимает обработчик id с канала (et, st); при id == 0 снимаются
// все обработчики. Когда у канала не остаётся обработчиков, подписка
// транспорта закрывается. Неизвестный id — no-op.
func (b *Bus) Unsubscribe(ctx context.Context, et models.EventType, st models.SubType, id HandlerID) error {
	const op = "events.Bus.Unsubscribe"

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateInitialized {
		return fmt.Errorf("%s: %w", op, ErrNotInitialized)
	}

	channel := b.Channel(et, st)
	entry, ok := b.channels[channel]
	if !ok {
		return nil
	}

	if id != 0 {
		kept := entry.handlers[:0]
		for _, r := range entry.handlers {
			if r.id != id {
				kept = append(kept, r)
			}
		}
		entry.handlers = kept
	} else {
		entry.handlers = nil
	}

	if len(entry.handlers) > 0 {
		return nil
	}

	delete(b.channels, channel)
	if err := b.transport.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// dispatchKey помечает контекст, переданный обработчику.
type dispatchKey struct{}

func inDispatch(ctx context.Context) bool {
	v, _ := ctx.Value(dispatchKey{}).(bool)
	return v
}

// Disconnect закрывает транспорт и очищает реестр обработчиков.
// Транспорт закрывается вне блокировки: его горутина доставки может
// в этот момент ждать реестр.
//
// Обработчик может отключить шину, передав свой ctx: тогда транспорт
// закрывается в отдельной горутине, после возврата из обработчика.
func (b *Bus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateInitialized {
		b.mu.Unlock()
		return nil
	}

	b.channels = make(map[string]*channelEntry)
	b.state = StateDisconnected

	if inDispatch(ctx) {
		closing := make(chan struct{})
		b.closing = closing
		b.mu.Unlock()

		go func() {
			defer close(closing)
			_ = b.closeTransport(context.WithoutCancel(ctx))
		}()

		return nil
	}
	b.mu.Unlock()

	return b.closeTransport(ctx)
}

func (b *Bus) closeTransport(ctx context.Context) error {
	const op = "events.Bus.Disconnect"

	if err := b.transport.Close(); err != nil {
		log.From(ctx).Warn("event_bus_close_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	b.log.Info("event_bus_disconnected")

	return nil
}

// dispatch вызывается транспортом для каждого входящего сообщения.
func (b *Bus) dispatch(channel string, payload []byte) {
	b.mu.RLock()
	entry, ok := b.channels[channel]
	var (
		handlers []registration
		msg      Message
	)
	if ok {
		handlers = append(handlers, entry.handlers...)
		msg = Message{Channel: channel, EventType: entry.eventType, SubType: entry.subType, Payload: payload}
	}
	b.mu.RUnlock()

	if !ok {
		return
	}

	lg := b.log.With(slog.String("channel", channel))
	ctx := context.WithValue(log.Into(context.Background(), lg), dispatchKey{}, true)

	for _, r := range handlers {
		b.invoke(ctx, r, msg)
	}
}

// invoke изолирует обработчик: ошибка или паника одного не мешает остальным.
func (b *Bus) invoke(ctx context.Context, r registration, msg Message) {
	lg := log.From(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			lg.Error("event_handler_panic",
				slog.Uint64("handler_id", uint64(r.id)),
				slog.Any("panic", rec),
			)
		}
	}()

	if err := r.fn(ctx, msg); err != nil {
		lg.Error("event_handler_failed",
			slog.Uint64("handler_id", uint64(r.id)),
			slog.String("err", err.Error()),
		)
	}
}
