// Package hub is the single shared view of the notification stream for a
// process. A Hub wraps one connection manager and adds a capped message
// history, connection statistics, task notifications and fan-out to any
// number of subscribers.
package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/large-farva/task-tracker/internal/notify"
	"github.com/large-farva/task-tracker/internal/protocol"
	"github.com/large-farva/task-tracker/internal/wsclient"
)

// HistoryLimit is the number of messages kept in history.
const HistoryLimit = 100

// Options configures a Hub.
type Options struct {
	// Stream configures the wrapped manager. Its OnMessage and
	// OnStateChange callbacks still run, after the hub's own handling.
	Stream wsclient.Options

	// Notifications enables task notifications at start.
	Notifications bool
	Sink          notify.Sink

	// ManualConnect stops Run from connecting on start.
	ManualConnect bool

	Logger *zerolog.Logger
}

// Stats summarises the session.
type Stats struct {
	TotalConnections int
	MessagesReceived int
	LastConnectedAt  time.Time
	// UptimeSeconds is the length of the current connection, or 0 when
	// not connected.
	UptimeSeconds int
}

// Uptime returns the whole seconds elapsed from since to now. A zero since
// or a clock that went backwards yields 0.
func Uptime(now, since time.Time) int {
	if since.IsZero() || now.Before(since) {
		return 0
	}
	return int(now.Sub(since) / time.Second)
}

// Hub is safe for concurrent use. Construct it once per process and pass
// it to every consumer.
type Hub struct {
	m        *wsclient.Manager
	log      zerolog.Logger
	now      func() time.Time
	auto     bool
	notifyOn atomic.Bool
	disp     *notify.Dispatcher

	userOnMessage func(protocol.Message)
	userOnState   func(wsclient.State)

	live    atomic.Bool
	started atomic.Bool
	done    chan struct{}

	mu        sync.RWMutex
	history   []protocol.Message
	stats     Stats
	connected bool

	subsMu    sync.Mutex
	closed    bool
	nextID    int
	subs      map[int]chan protocol.Message
	stateSubs map[int]chan wsclient.State
}

// New builds a hub and its manager. The hub is live until Run returns.
func New(opts Options) (*Hub, error) {
	lg := zerolog.Nop()
	if opts.Logger != nil {
		lg = *opts.Logger
	}

	h := &Hub{
		log:           lg.With().Str("component", "hub").Logger(),
		now:           opts.Stream.Now,
		auto:          !opts.ManualConnect,
		userOnMessage: opts.Stream.OnMessage,
		userOnState:   opts.Stream.OnStateChange,
		done:          make(chan struct{}),
		subs:          make(map[int]chan protocol.Message),
		stateSubs:     make(map[int]chan wsclient.State),
	}
	if h.now == nil {
		h.now = time.Now
	}
	h.disp = notify.NewDispatcher(opts.Sink)
	h.disp.Now = h.now
	h.notifyOn.Store(opts.Notifications)

	stream := opts.Stream
	stream.OnMessage = h.onMessage
	stream.OnStateChange = h.onStateChange
	if stream.Logger == nil {
		stream.Logger = opts.Logger
	}

	m, err := wsclient.New(stream)
	if err != nil {
		return nil, err
	}
	h.m = m
	h.live.Store(true)
	return h, nil
}

// Run drives the manager and the uptime clock until ctx is cancelled.
// When it returns the socket is closed, every subscription channel is
// closed and the hub is no longer live.
func (h *Hub) Run(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	defer close(h.done)
	defer h.shutdown()

	go h.m.Run(ctx)
	if h.auto {
		h.m.Connect()
	}

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			<-h.m.Done()
			return
		case <-tick.C:
			h.refreshUptime()
		}
	}
}

// Done is closed when Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Live reports whether the hub's lifetime is still running.
func (h *Hub) Live() bool {
	return h != nil && h.live.Load()
}

func (h *Hub) shutdown() {
	h.live.Store(false)

	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	for id, ch := range h.stateSubs {
		close(ch)
		delete(h.stateSubs, id)
	}
}

func (h *Hub) Connect()    { h.m.Connect() }
func (h *Hub) Disconnect() { h.m.Disconnect() }
func (h *Hub) Reconnect()  { h.m.Reconnect() }
func (h *Hub) SendPing()   { h.m.SendPing() }

func (h *Hub) SendMessage(v any) error  { return h.m.SendMessage(v) }
func (h *Hub) SendRaw(text string) error { return h.m.SendRaw(text) }

// Flush waits until the manager has handled every call made before it.
func (h *Hub) Flush() { h.m.Flush() }

// State returns the manager's current snapshot.
func (h *Hub) State() wsclient.State { return h.m.State() }

// LastMessage returns the most recently decoded message, if any.
func (h *Hub) LastMessage() (protocol.Message, bool) {
	lm := h.m.State().LastMessage
	if lm == nil {
		return protocol.Message{}, false
	}
	return *lm, true
}

// History returns a copy of the message history, oldest first.
func (h *Hub) History() []protocol.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]protocol.Message, len(h.history))
	copy(out, h.history)
	return out
}

// ClearHistory empties the history. Statistics are kept.
func (h *Hub) ClearHistory() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = nil
}

// Stats returns the current statistics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// SetNotifications turns task notifications on or off.
func (h *Hub) SetNotifications(on bool) {
	h.notifyOn.Store(on)
}

// Notifications reports whether task notifications are on.
func (h *Hub) Notifications() bool {
	return h.notifyOn.Load()
}

// Subscribe returns a channel receiving every decoded message from now on,
// and a function that ends the subscription. Messages are dropped when the
// channel's buffer is full. The channel is closed when the subscription or
// the hub ends.
func (h *Hub) Subscribe(buffer int) (<-chan protocol.Message, func()) {
	ch := make(chan protocol.Message, buffer)
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	return ch, func() {
		h.subsMu.Lock()
		defer h.subsMu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// SubscribeState is Subscribe for connection state snapshots.
func (h *Hub) SubscribeState(buffer int) (<-chan wsclient.State, func()) {
	ch := make(chan wsclient.State, buffer)
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.stateSubs[id] = ch
	return ch, func() {
		h.subsMu.Lock()
		defer h.subsMu.Unlock()
		if c, ok := h.stateSubs[id]; ok {
			delete(h.stateSubs, id)
			close(c)
		}
	}
}

// onMessage runs on the manager loop.
func (h *Hub) onMessage(m protocol.Message) {
	h.mu.Lock()
	h.history = append(h.history, m)
	if over := len(h.history) - HistoryLimit; over > 0 {
		h.history = append(h.history[:0:0], h.history[over:]...)
	}
	h.stats.MessagesReceived++
	h.mu.Unlock()

	if h.notifyOn.Load() {
		h.disp.Handle(m)
	}

	h.subsMu.Lock()
	for id, ch := range h.subs {
		select {
		case ch <- m:
		default:
			h.log.Debug().Int("subscriber", id).Str("type", string(m.Type)).Msg("subscriber full, message dropped")
		}
	}
	h.subsMu.Unlock()

	if h.userOnMessage != nil {
		h.userOnMessage(m)
	}
}

// onStateChange runs on the manager loop.
func (h *Hub) onStateChange(s wsclient.State) {
	h.mu.Lock()
	h.connected = s.IsConnected()
	h.stats.TotalConnections = s.ConnectionCount
	if !s.LastConnectedAt.IsZero() {
		h.stats.LastConnectedAt = s.LastConnectedAt
	}
	h.updateUptimeLocked()
	h.mu.Unlock()

	h.subsMu.Lock()
	for _, ch := range h.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
	h.subsMu.Unlock()

	if h.userOnState != nil {
		h.userOnState(s)
	}
}

func (h *Hub) refreshUptime() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updateUptimeLocked()
}

func (h *Hub) updateUptimeLocked() {
	if !h.connected {
		h.stats.UptimeSeconds = 0
		return
	}
	h.stats.UptimeSeconds = Uptime(h.now(), h.stats.LastConnectedAt)
}
