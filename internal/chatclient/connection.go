package chatclient

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/khanhquoc4114/app-sub000/internal/clock"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultReconnectBase     = time.Second
	defaultReconnectMax      = 10 * time.Second
)

// backoffDelay returns min(max, base*2^retry).
func backoffDelay(retry int, base, max time.Duration) time.Duration {
	if retry < 0 {
		retry = 0
	}
	delay := base
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

type connectionConfig struct {
	endpoint          string
	auth              AuthSource
	dialer            Dialer
	clock             clock.Clock
	logger            *zap.Logger
	metrics           *Metrics
	heartbeatInterval time.Duration
	reconnectBase     time.Duration
	reconnectMax      time.Duration

	// ctx bounds every dial. It is cancelled when the session ends.
	ctx context.Context
	// wg tracks the dial and reader goroutines.
	wg *sync.WaitGroup
	// post runs fn on the event loop. It returns false once the loop
	// has stopped.
	post     func(fn func()) bool
	onFrame  func(data []byte)
	onStatus func(Status)
}

// Connection owns the single transport of a session. Every method runs on
// the client's event loop; the dial and read goroutines only hand results
// back through post.
type Connection struct {
	cfg connectionConfig

	state      Status
	conn       Conn
	retryCount int
	torndown   bool

	reconnect    clock.Timer
	reconnectSeq uint64
	heartbeat    clock.Timer
	cancelDial   context.CancelFunc
}

func newConnection(cfg connectionConfig) *Connection {
	if cfg.heartbeatInterval <= 0 {
		cfg.heartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.reconnectBase <= 0 {
		cfg.reconnectBase = defaultReconnectBase
	}
	if cfg.reconnectMax <= 0 {
		cfg.reconnectMax = defaultReconnectMax
	}
	return &Connection{cfg: cfg, state: StatusDisconnected}
}

func (c *Connection) State() Status { return c.state }

func (c *Connection) RetryCount() int { return c.retryCount }

// Connect starts a dial unless one is in flight, a transport is already
// open, or no token is available.
func (c *Connection) Connect() {
	if c.torndown || c.state == StatusConnecting || c.state == StatusOpen {
		return
	}

	token := c.cfg.auth.Token()
	if token == "" {
		c.cfg.logger.Debug("connect skipped, no auth token")
		return
	}

	endpoint, err := withToken(c.cfg.endpoint, token)
	if err != nil {
		c.cfg.logger.Error("invalid chat endpoint", zap.String("endpoint", c.cfg.endpoint), zap.Error(err))
		return
	}

	c.stopReconnect()
	c.setState(StatusConnecting)

	ctx, cancel := context.WithCancel(c.cfg.ctx)
	c.cancelDial = cancel

	c.cfg.wg.Add(1)
	go func() {
		defer c.cfg.wg.Done()
		defer cancel()

		conn, err := c.cfg.dialer.Dial(ctx, endpoint)
		delivered := c.cfg.post(func() { c.handleDial(conn, err) })
		if !delivered && conn != nil {
			_ = conn.Close(websocket.CloseNormalClosure, "session closed")
		}
	}()
}

func (c *Connection) handleDial(conn Conn, err error) {
	c.cancelDial = nil

	if c.torndown {
		if conn != nil {
			_ = conn.Close(websocket.CloseNormalClosure, "session closed")
		}
		return
	}
	if err != nil {
		c.cfg.logger.Warn("chat transport dial failed", zap.Error(err), zap.Int("retry_count", c.retryCount))
		c.setState(StatusDisconnected)
		c.HandleClose(websocket.CloseAbnormalClosure)
		return
	}

	c.conn = conn
	c.retryCount = 0
	c.stopReconnect()
	c.setState(StatusOpen)
	c.cfg.logger.Info("chat transport open")

	c.scheduleHeartbeat(conn)
	c.startReader(conn)
}

func (c *Connection) startReader(conn Conn) {
	c.cfg.wg.Add(1)
	go func() {
		defer c.cfg.wg.Done()
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				code := closeCode(err)
				c.cfg.post(func() { c.handleTransportClosed(conn, code, err) })
				return
			}
			if !c.cfg.post(func() { c.handleFrame(conn, data) }) {
				return
			}
		}
	}()
}

func (c *Connection) handleFrame(conn Conn, data []byte) {
	if conn != c.conn {
		return
	}
	c.cfg.metrics.FramesReceived.Inc()
	c.cfg.onFrame(data)
}

func (c *Connection) handleTransportClosed(conn Conn, code int, err error) {
	if conn != c.conn {
		return
	}
	c.conn = nil
	c.stopHeartbeat()
	c.setState(StatusDisconnected)

	if isCleanClose(code) {
		c.cfg.logger.Info("chat transport closed", zap.Int("code", code))
	} else {
		c.cfg.logger.Warn("chat transport lost", zap.Int("code", code), zap.Error(err))
	}
	c.HandleClose(code)
}

// HandleClose applies the reconnect policy for a close with the given
// status code. Abnormal closes schedule a reconnect after
// min(max, base*2^retryCount) while a token is present; a clean close
// resets the retry counter.
func (c *Connection) HandleClose(code int) {
	if isCleanClose(code) {
		c.retryCount = 0
		return
	}
	if c.torndown || c.cfg.auth.Token() == "" {
		return
	}

	delay := backoffDelay(c.retryCount, c.cfg.reconnectBase, c.cfg.reconnectMax)
	c.stopReconnect()
	c.reconnectSeq++
	seq := c.reconnectSeq
	c.reconnect = c.cfg.clock.AfterFunc(delay, func() {
		c.cfg.post(func() {
			if seq != c.reconnectSeq {
				return
			}
			c.reconnect = nil
			c.Connect()
		})
	})
	c.retryCount++
	c.cfg.metrics.Reconnects.Inc()
	c.cfg.logger.Info("chat reconnect scheduled", zap.Duration("delay", delay), zap.Int("retry_count", c.retryCount))
}

// Send writes a message frame. It is a silent no-op unless the transport
// is open and content is non-blank.
func (c *Connection) Send(receiverID int64, content string) bool {
	trimmed := strings.TrimSpace(content)
	if c.state != StatusOpen || c.conn == nil || trimmed == "" {
		return false
	}
	return c.write(sendFrame{To: receiverID, Message: trimmed})
}

func (c *Connection) write(frame any) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		c.cfg.logger.Error("encode frame", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(data); err != nil {
		c.cfg.logger.Warn("chat transport write failed", zap.Error(err))
		return false
	}
	return true
}

func (c *Connection) scheduleHeartbeat(conn Conn) {
	c.heartbeat = c.cfg.clock.AfterFunc(c.cfg.heartbeatInterval, func() {
		c.cfg.post(func() { c.ping(conn) })
	})
}

func (c *Connection) ping(conn Conn) {
	if c.state != StatusOpen || c.conn != conn {
		return
	}
	c.write(pingFrame)
	c.scheduleHeartbeat(conn)
}

// Teardown stops the heartbeat and any pending reconnect and closes an
// open transport with a normal closure. The Connection cannot be reused.
func (c *Connection) Teardown() {
	if c.torndown {
		return
	}
	c.torndown = true
	c.stopReconnect()
	c.stopHeartbeat()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}

	if c.conn != nil {
		c.setState(StatusClosing)
		if err := c.conn.Close(websocket.CloseNormalClosure, "client teardown"); err != nil {
			c.cfg.logger.Debug("close transport", zap.Error(err))
		}
		c.conn = nil
	}
	c.setState(StatusDisconnected)
}

func (c *Connection) stopReconnect() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.reconnectSeq++
}

func (c *Connection) stopHeartbeat() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
}

func (c *Connection) setState(state Status) {
	if c.state == state {
		return
	}
	c.state = state
	c.cfg.metrics.ConnectionState.Set(float64(state))
	if c.cfg.onStatus != nil {
		c.cfg.onStatus(state)
	}
}

func withToken(endpoint, token string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
