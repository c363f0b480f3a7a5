// Package wsclient maintains a live connection to the task notification
// stream. A Manager owns one socket at a time, authenticates it, keeps it
// alive with heartbeat pings, and reconnects after transport failures
// within a bounded budget.
//
// All connection state lives on the goroutine running Manager.Run. Public
// methods queue work onto that loop, socket readers post their events to
// it, and timers are selected by it, so the state machine itself needs no
// locks. Readers on other goroutines see immutable snapshots via State.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/large-farva/task-tracker/internal/credentials"
	"github.com/large-farva/task-tracker/internal/protocol"
)

const (
	DefaultURL               = "ws://localhost:8002/ws"
	DefaultReconnectAttempts = 5
	DefaultReconnectInterval = 3 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultReconnectDelay    = 1 * time.Second
)

var (
	// ErrAuthFailed is passed to OnError when the server rejects the
	// credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrPongTimeout is passed to OnError when no pong arrives within
	// Options.PongTimeout of a ping.
	ErrPongTimeout = errors.New("pong timeout")

	// ErrInvalidJSON is returned by SendRaw for text that is not JSON.
	ErrInvalidJSON = errors.New("invalid JSON")
)

// Options configures a Manager. Zero durations and attempts select the
// package defaults.
type Options struct {
	URL     string
	APIKey  string
	Project string

	// Credentials supplies APIKey and Project when they are empty.
	Credentials credentials.Provider

	// ReconnectAttempts bounds automatic reconnects per disconnection
	// episode. Negative disables automatic reconnection.
	ReconnectAttempts int
	ReconnectInterval time.Duration
	PingInterval      time.Duration
	// ReconnectDelay is the pause between the disconnect and connect
	// halves of Reconnect.
	ReconnectDelay time.Duration
	// PongTimeout, when positive, treats a missing pong as a transport
	// failure. Off by default.
	PongTimeout time.Duration

	Dialer Dialer
	Logger *zerolog.Logger
	Now    func() time.Time

	// Callbacks run on the manager loop. They must not block and must not
	// call Flush.
	OnConnect     func()
	OnDisconnect  func()
	OnError       func(error)
	OnMessage     func(protocol.Message)
	OnStateChange func(State)
}

type phase int

const (
	phaseIdle phase = iota
	phaseOpening
	phaseOpen
)

type eventKind int

const (
	evOpen eventKind = iota
	evMessage
	evError
	evClose
)

type event struct {
	kind eventKind
	gen  uint64
	conn Conn
	data []byte
	err  error
	code int
}

// Manager owns the notification socket and its reconnect policy.
type Manager struct {
	opts Options
	url  string
	log  zerolog.Logger
	now  func() time.Time

	cmds     chan func()
	events   chan event
	done     chan struct{}
	started  atomic.Bool
	snapshot atomic.Pointer[State]

	// Everything below is owned by the Run goroutine.
	state      State
	conn       Conn
	connID     string
	phase      phase
	gen        uint64
	cancelDial context.CancelFunc

	manual     bool // the current close was asked for
	sessionUp  bool // the current socket reached connected
	eligible   bool // this episode reached connected; retries allowed
	authFailed bool
	attempts   int

	reconnect     *time.Timer
	reconnectAuto bool
	heartbeat     *time.Ticker
	pongDeadline  *time.Timer
}

// New validates opts, resolves credentials and returns a disconnected
// manager. Call Run to start its loop.
func New(opts Options) (*Manager, error) {
	creds, err := credentials.Resolve(credentials.Credentials{
		APIKey:  opts.APIKey,
		Project: opts.Project,
	}, opts.Credentials)
	if err != nil {
		return nil, err
	}
	opts.APIKey, opts.Project = creds.APIKey, creds.Project

	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	u, err := BuildURL(opts.URL, opts.APIKey, opts.Project)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.ReconnectAttempts == 0:
		opts.ReconnectAttempts = DefaultReconnectAttempts
	case opts.ReconnectAttempts < 0:
		opts.ReconnectAttempts = 0
	}
	opts.ReconnectInterval = orDefault(opts.ReconnectInterval, DefaultReconnectInterval)
	opts.PingInterval = orDefault(opts.PingInterval, DefaultPingInterval)
	opts.ReconnectDelay = orDefault(opts.ReconnectDelay, DefaultReconnectDelay)
	if opts.Dialer == nil {
		opts.Dialer = GorillaDialer{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	lg := zerolog.Nop()
	if opts.Logger != nil {
		lg = *opts.Logger
	}

	m := &Manager{
		opts:   opts,
		url:    u,
		log:    lg.With().Str("project", opts.Project).Logger(),
		now:    opts.Now,
		cmds:   make(chan func(), 64),
		events: make(chan event, 64),
		done:   make(chan struct{}),
		state:  State{Status: StatusDisconnected},
	}
	initial := m.state
	m.snapshot.Store(&initial)
	return m, nil
}

// State returns the latest published snapshot.
func (m *Manager) State() State {
	return *m.snapshot.Load()
}

// Done is closed once Run has returned and every timer and socket has been
// released.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Connect opens the socket unless one is already open or opening. It
// returns before the connection is established; watch State or
// OnStateChange for the outcome.
func (m *Manager) Connect() {
	m.do(func() { m.connect(false) })
}

// Disconnect closes the socket and cancels pending reconnects and the
// heartbeat. The close is treated as manual and never triggers a
// reconnect.
func (m *Manager) Disconnect() {
	m.do(m.disconnect)
}

// Reconnect disconnects and connects again after Options.ReconnectDelay.
// It does not use the automatic reconnect budget.
func (m *Manager) Reconnect() {
	m.do(func() {
		m.disconnect()
		m.scheduleReconnect(m.opts.ReconnectDelay, false)
	})
}

// SendMessage encodes v and transmits it if the socket is open. Otherwise
// the message is dropped with a warning. The only error is an encoding
// failure.
func (m *Manager) SendMessage(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	m.do(func() { m.write(b) })
	return nil
}

// SendRaw transmits text verbatim after checking that it is valid JSON.
func (m *Manager) SendRaw(text string) error {
	if !json.Valid([]byte(text)) {
		m.log.Error().Str("payload", truncate(text, 200)).Msg("refusing to send invalid JSON")
		return ErrInvalidJSON
	}
	b := []byte(text)
	m.do(func() { m.write(b) })
	return nil
}

// SendPing sends one ping envelope.
func (m *Manager) SendPing() {
	_ = m.SendMessage(protocol.Ping(m.now()))
}

// Flush blocks until every call queued before it has been handled by the
// loop. It returns immediately if the loop has stopped.
func (m *Manager) Flush() {
	ch := make(chan struct{})
	if m.do(func() { close(ch) }) {
		select {
		case <-ch:
		case <-m.done:
		}
	}
}

// Run executes the manager loop until ctx is cancelled. On return the
// socket is closed and all timers are stopped. Run may be called once.
func (m *Manager) Run(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	defer close(m.done)
	defer m.teardown()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.cmds:
			fn()
		case ev := <-m.events:
			m.handle(ev)
		case <-timerC(m.reconnect):
			m.fireReconnect()
		case <-tickerC(m.heartbeat):
			m.sendHeartbeat()
		case <-timerC(m.pongDeadline):
			m.pongTimedOut()
		}
	}
}

func (m *Manager) do(fn func()) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.cmds <- fn:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) post(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

// ---------------------------------------------------------------------------
// Loop-side state machine
// ---------------------------------------------------------------------------

func (m *Manager) connect(auto bool) {
	if m.phase != phaseIdle {
		return
	}
	m.stopReconnect()

	m.manual = false
	m.authFailed = false
	if !auto {
		m.eligible = false
	}
	m.state.Status = StatusConnecting
	m.state.Error = ""

	m.gen++
	m.phase = phaseOpening
	m.connID = uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel

	m.log.Info().
		Str("conn_id", m.connID).
		Str("url", redactURL(m.url)).
		Bool("auto", auto).
		Msg("connecting")

	go m.dial(ctx, m.gen)
	m.publish()
}

// dial runs on its own goroutine and becomes the socket's reader once the
// connection is open.
func (m *Manager) dial(ctx context.Context, gen uint64) {
	conn, err := m.opts.Dialer.Dial(ctx, m.url)
	if err != nil {
		if m.post(event{kind: evError, gen: gen, err: err}) {
			m.post(event{kind: evClose, gen: gen, code: CloseAbnormal})
		}
		return
	}
	if !m.post(event{kind: evOpen, gen: gen, conn: conn}) {
		_ = conn.Close(CloseGoingAway, "client stopped")
		return
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			code := CloseAbnormal
			var ce *CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			if !isNormalClose(code) {
				if !m.post(event{kind: evError, gen: gen, err: err}) {
					return
				}
			}
			m.post(event{kind: evClose, gen: gen, code: code})
			return
		}
		if !m.post(event{kind: evMessage, gen: gen, data: data}) {
			return
		}
	}
}

func (m *Manager) handle(ev event) {
	if ev.gen != m.gen || m.phase == phaseIdle {
		// Left over from a socket that has already been discarded.
		if ev.kind == evOpen && ev.conn != nil {
			_ = ev.conn.Close(CloseNormal, "stale connection")
		}
		return
	}

	switch ev.kind {
	case evOpen:
		if m.phase != phaseOpening {
			_ = ev.conn.Close(CloseNormal, "duplicate connection")
			return
		}
		m.phase = phaseOpen
		m.conn = ev.conn
		if m.cancelDial != nil {
			m.cancelDial()
			m.cancelDial = nil
		}
		m.log.Info().Str("conn_id", m.connID).Msg("socket open")

	case evMessage:
		m.receive(ev.data)

	case evError:
		m.transportError(ev.err)

	case evClose:
		m.closed(ev.code)
	}
}

func (m *Manager) receive(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		m.log.Error().
			Err(err).
			Str("conn_id", m.connID).
			Str("frame", truncate(string(data), 200)).
			Msg("dropping undecodable message")
		return
	}

	m.state.LastMessage = &msg
	protocol.Dispatch(msg, loopHandler{m: m})
	m.publish()

	if m.opts.OnMessage != nil {
		m.opts.OnMessage(msg)
	}
}

// loopHandler applies the messages that drive the state machine.
type loopHandler struct {
	protocol.NopHandler
	m *Manager
}

func (h loopHandler) Connection(_ protocol.Message, c protocol.Connection) {
	switch c.Status {
	case protocol.ConnectionAuthenticated:
		h.m.authenticated(c)
	case protocol.ConnectionError:
		h.m.authError(c.Message)
	default:
		h.m.log.Debug().Str("conn_id", h.m.connID).Str("message", c.Message).Msg("server acknowledged connection")
	}
}

func (h loopHandler) Pong(protocol.Message, protocol.Pong) {
	h.m.stopPongDeadline()
}

func (m *Manager) authenticated(c protocol.Connection) {
	m.state.Status = StatusConnected
	m.state.LastConnectedAt = m.now()
	m.state.Error = ""
	m.attempts = 0
	m.sessionUp = true
	m.eligible = true
	m.authFailed = false
	m.startHeartbeat()

	m.log.Info().
		Str("conn_id", m.connID).
		Str("user_id", c.UserID).
		Msg("authenticated")

	m.publish()
	if m.opts.OnConnect != nil {
		m.opts.OnConnect()
	}
}

// authError ends the episode: the socket is closed and no reconnect is
// scheduled until Connect or Reconnect is called.
func (m *Manager) authError(text string) {
	if text == "" {
		text = ErrAuthFailed.Error()
	}
	m.state.Status = StatusError
	m.state.Error = text
	m.authFailed = true
	m.eligible = false
	m.stopHeartbeat()
	m.stopPongDeadline()

	m.log.Warn().Str("conn_id", m.connID).Str("reason", text).Msg("server rejected credentials")
	m.publish()
	if m.opts.OnError != nil {
		m.opts.OnError(fmt.Errorf("%w: %s", ErrAuthFailed, text))
	}

	if m.conn != nil {
		_ = m.conn.Close(CloseNormal, "authentication failed")
	}
	m.closed(CloseNormal)
}

func (m *Manager) transportError(err error) {
	if m.state.Status == StatusConnecting || m.state.Status == StatusConnected {
		m.state.Status = StatusError
		m.state.Error = "connection error: " + err.Error()
	}
	m.log.Error().Err(err).Str("conn_id", m.connID).Msg("socket error")
	m.publish()
	if m.opts.OnError != nil {
		m.opts.OnError(err)
	}
}

// closed handles the end of the current socket, whichever side ended it,
// and decides whether to schedule an automatic reconnect.
func (m *Manager) closed(code int) {
	wasConnected := m.sessionUp
	m.detach()

	if wasConnected {
		m.state.ConnectionCount++
	}
	m.state.LastDisconnectedAt = m.now()
	if !m.authFailed {
		m.state.Status = StatusDisconnected
	}

	m.log.Info().
		Str("conn_id", m.connID).
		Int("code", code).
		Bool("was_connected", wasConnected).
		Msg("socket closed")

	m.publish()
	if m.opts.OnDisconnect != nil {
		m.opts.OnDisconnect()
	}

	if m.manual || m.authFailed || !m.eligible {
		m.eligible = false
		return
	}
	if m.attempts >= m.opts.ReconnectAttempts {
		m.log.Warn().Int("attempts", m.attempts).Msg("reconnect budget exhausted")
		m.eligible = false
		return
	}

	m.attempts++
	m.state.Status = StatusReconnecting
	m.scheduleReconnect(m.opts.ReconnectInterval, true)
	m.log.Info().
		Int("attempt", m.attempts).
		Int("max", m.opts.ReconnectAttempts).
		Dur("in", m.opts.ReconnectInterval).
		Msg("reconnect scheduled")
	m.publish()
}

func (m *Manager) disconnect() {
	m.manual = true
	m.stopReconnect()

	hadSocket := m.phase != phaseIdle
	if m.conn != nil {
		if err := m.conn.Close(CloseNormal, "Manual disconnect"); err != nil {
			m.log.Debug().Err(err).Str("conn_id", m.connID).Msg("close failed")
		}
	}
	wasConnected := m.sessionUp
	m.detach()

	if wasConnected {
		m.state.ConnectionCount++
	}
	m.eligible = false
	m.authFailed = false
	m.state.Status = StatusDisconnected
	m.state.LastDisconnectedAt = m.now()

	if hadSocket {
		m.log.Info().Str("conn_id", m.connID).Msg("disconnected")
	}
	m.publish()
	if hadSocket && m.opts.OnDisconnect != nil {
		m.opts.OnDisconnect()
	}
}

// detach forgets the current socket. Events still in flight from it carry
// an older generation and are ignored.
func (m *Manager) detach() {
	m.stopHeartbeat()
	m.stopPongDeadline()
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	m.conn = nil
	m.phase = phaseIdle
	m.sessionUp = false
	m.gen++
}

func (m *Manager) write(b []byte) {
	if m.phase != phaseOpen || m.conn == nil {
		m.log.Warn().
			Str("status", string(m.state.Status)).
			Str("payload", truncate(string(b), 200)).
			Msg("socket not open, message dropped")
		return
	}
	if err := m.conn.WriteMessage(b); err != nil {
		m.log.Warn().Err(err).Str("conn_id", m.connID).Msg("write failed")
	}
}

func (m *Manager) teardown() {
	if m.phase != phaseIdle || m.state.Status != StatusDisconnected || m.reconnect != nil {
		m.disconnect()
	}
	m.stopReconnect()
	m.stopHeartbeat()
	m.stopPongDeadline()
}

// ---------------------------------------------------------------------------
// Timers
// ---------------------------------------------------------------------------

func (m *Manager) scheduleReconnect(d time.Duration, auto bool) {
	m.stopReconnect()
	m.reconnect = time.NewTimer(d)
	m.reconnectAuto = auto
}

func (m *Manager) fireReconnect() {
	auto := m.reconnectAuto
	m.reconnect = nil
	if auto {
		m.log.Info().
			Int("attempt", m.attempts).
			Int("max", m.opts.ReconnectAttempts).
			Msg("reconnecting")
	}
	m.connect(auto)
}

func (m *Manager) stopReconnect() {
	if m.reconnect != nil {
		m.reconnect.Stop()
		m.reconnect = nil
	}
}

func (m *Manager) startHeartbeat() {
	m.stopHeartbeat()
	m.heartbeat = time.NewTicker(m.opts.PingInterval)
}

func (m *Manager) stopHeartbeat() {
	if m.heartbeat != nil {
		m.heartbeat.Stop()
		m.heartbeat = nil
	}
}

func (m *Manager) sendHeartbeat() {
	if m.phase != phaseOpen {
		return
	}
	b, err := json.Marshal(protocol.Ping(m.now()))
	if err != nil {
		return
	}
	m.write(b)
	if m.opts.PongTimeout > 0 && m.pongDeadline == nil {
		m.pongDeadline = time.NewTimer(m.opts.PongTimeout)
	}
}

func (m *Manager) stopPongDeadline() {
	if m.pongDeadline != nil {
		m.pongDeadline.Stop()
		m.pongDeadline = nil
	}
}

func (m *Manager) pongTimedOut() {
	m.pongDeadline = nil
	if m.phase != phaseOpen {
		return
	}
	m.log.Warn().Str("conn_id", m.connID).Dur("timeout", m.opts.PongTimeout).Msg("no pong from server")
	m.transportError(ErrPongTimeout)
	if m.conn != nil {
		_ = m.conn.Close(CloseGoingAway, "pong timeout")
	}
	m.closed(CloseAbnormal)
}

// publish stores a snapshot of the state and notifies OnStateChange when
// it differs from the previous one.
func (m *Manager) publish() {
	s := m.state
	if prev := m.snapshot.Load(); prev != nil && *prev == s {
		return
	}
	m.snapshot.Store(&s)
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(s)
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
