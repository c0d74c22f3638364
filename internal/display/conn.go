package display

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/noah-isme/kasir-gateway/internal/obs"
)

const (
	defaultReconnectDelay = time.Second
	defaultRegisterDelay  = 300 * time.Millisecond
	closeWriteTimeout     = time.Second
)

// Conn is the subset of a websocket connection the manager needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Dialer opens event-channel connections. The production implementation wraps
// gorilla/websocket; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WSDialer dials with the default gorilla/websocket dialer.
type WSDialer struct {
	Header http.Header
}

// Dial implements Dialer.
func (d WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Manager maintains exactly one live connection to the backend event channel
// for the lifetime of its Run context. Abnormal closure schedules a single
// reconnect after a fixed delay and retries indefinitely; cancellation of the
// context performs a normal closure and suppresses reconnection.
type Manager struct {
	URL         string
	Dialer      Dialer
	Interpreter *Interpreter
	Log         zerolog.Logger

	StoreID  string
	DeviceID string

	ReconnectDelay time.Duration
	RegisterDelay  time.Duration
	Sched          Scheduler

	mu     sync.Mutex
	active Conn
}

type identifyFrame struct {
	Type     string `json:"type"`
	StoreID  string `json:"storeId"`
	DeviceID string `json:"deviceId"`
}

type registerFrame struct {
	Type string `json:"type"`
	Role string `json:"role"`
}

// Run connects and processes frames until ctx is cancelled. Connection
// failures are invisible beyond a stale display; there is no user-facing
// error surface on a passive kiosk.
func (m *Manager) Run(ctx context.Context) error {
	if m.Interpreter != nil && m.Interpreter.Resync == nil {
		// A resync drops the connection; the reconnect handshake makes the
		// backend replay the full display state.
		m.Interpreter.Resync = m.dropActive
	}
	first := true
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !first {
			if obs.DisplayReconnectsTotal != nil {
				obs.DisplayReconnectsTotal.Inc()
			}
			if !sleepCtx(ctx, m.reconnectDelay()) {
				return nil
			}
		}
		first = false

		conn, err := m.Dialer.Dial(ctx, m.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.Log.Warn().Err(err).Str("url", m.URL).Msg("display: dial event channel")
			continue
		}
		m.setActive(conn)
		m.handshake(conn)
		m.readLoop(ctx, conn)
		m.setActive(nil)
		if ctx.Err() != nil {
			return nil
		}
		m.Log.Info().Msg("display: event channel closed, reconnecting")
	}
}

func (m *Manager) handshake(conn Conn) {
	if err := conn.WriteJSON(identifyFrame{Type: "identify", StoreID: m.StoreID, DeviceID: m.DeviceID}); err != nil {
		m.Log.Warn().Err(err).Msg("display: send identify")
		return
	}
	sched := m.Sched
	if sched == nil {
		sched = TimerScheduler{}
	}
	sched.After(m.registerDelay(), func() {
		if err := conn.WriteJSON(registerFrame{Type: "register_client", Role: "customer_display"}); err != nil {
			m.Log.Warn().Err(err).Msg("display: send registration")
		}
	})
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			// Unmount path: a scoped normal closure, no reconnect.
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				m.Log.Warn().Err(err).Msg("display: read event channel")
				_ = conn.Close()
			}
			return
		}
		if m.Interpreter != nil {
			m.Interpreter.Handle(frame)
		}
	}
}

func (m *Manager) setActive(conn Conn) {
	m.mu.Lock()
	m.active = conn
	m.mu.Unlock()
}

// dropActive severs the current connection so the run loop re-dials and
// re-registers, which makes the backend resend the full display state.
func (m *Manager) dropActive() {
	m.mu.Lock()
	conn := m.active
	m.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) reconnectDelay() time.Duration {
	if m.ReconnectDelay > 0 {
		return m.ReconnectDelay
	}
	return defaultReconnectDelay
}

func (m *Manager) registerDelay() time.Duration {
	if m.RegisterDelay > 0 {
		return m.RegisterDelay
	}
	return defaultRegisterDelay
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
