// Package chatclient is the realtime chat core: one persistent transport
// per signed-in user, reconciliation of optimistic sends with server
// echoes, and per-peer conversation state for the UI to observe.
package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/khanhquoc4114/app-sub000/internal/clock"
)

const (
	defaultReadAckDelay = 500 * time.Millisecond
	eventQueueSize      = 64
)

var (
	ErrNoCredentials = errors.New("chatclient: auth token and current user are required")
	ErrEmptyMessage  = errors.New("chatclient: message is empty")
	ErrInvalidPeer   = errors.New("chatclient: invalid peer id")
	ErrClosed        = errors.New("chatclient: client is closed")
)

type Config struct {
	// Endpoint is the websocket URL; the token is added as a query parameter.
	Endpoint string
	// APIBaseURL is the REST base used for history and read receipts when
	// History is nil.
	APIBaseURL string
	Auth       AuthSource

	Dialer     Dialer
	History    HistoryAPI
	Clock      clock.Clock
	Logger     *zap.Logger
	Registerer prometheus.Registerer

	HistoryLimit      int
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	ReadAckDelay      time.Duration
}

// Client is one chat session. All state lives on a single event-loop
// goroutine; the exported methods hand work to that loop and wait for it.
type Client struct {
	cfg     Config
	self    User
	logger  *zap.Logger
	metrics *Metrics

	store      *Store
	conn       *Connection
	reconciler *Reconciler
	history    *HistoryLoader
	api        HistoryAPI

	// readTimers holds pending read acknowledgments per peer.
	readTimers map[int64]clock.Timer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	events  chan func()
	updates chan struct{}
	done    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
}

// New creates a session for the current user of cfg.Auth and starts its
// event loop. It does not connect; call Connect.
func New(cfg Config) (*Client, error) {
	if cfg.Auth == nil || cfg.Auth.Token() == "" {
		return nil, ErrNoCredentials
	}
	self, ok := cfg.Auth.CurrentUser()
	if !ok {
		return nil, ErrNoCredentials
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("chatclient: endpoint is required")
	}

	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.ReadAckDelay <= 0 {
		cfg.ReadAckDelay = defaultReadAckDelay
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.History == nil {
		api, err := NewAPIClient(cfg.APIBaseURL, nil, cfg.Auth)
		if err != nil {
			return nil, err
		}
		cfg.History = api
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		self:       self,
		logger:     cfg.Logger.With(zap.Int64("user_id", self.ID)),
		metrics:    NewMetrics(cfg.Registerer),
		store:      NewStore(),
		api:        cfg.History,
		readTimers: make(map[int64]clock.Timer),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan func(), eventQueueSize),
		updates:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	c.conn = newConnection(connectionConfig{
		endpoint:          cfg.Endpoint,
		auth:              cfg.Auth,
		dialer:            cfg.Dialer,
		clock:             cfg.Clock,
		logger:            c.logger,
		metrics:           c.metrics,
		heartbeatInterval: cfg.HeartbeatInterval,
		reconnectBase:     cfg.ReconnectBase,
		reconnectMax:      cfg.ReconnectMax,
		ctx:               ctx,
		wg:                &c.wg,
		post:              c.post,
		onFrame:           c.handleFrame,
		onStatus:          func(Status) { c.notify() },
	})
	c.reconciler = NewReconciler(c.store, self.ID, c.conn, c, cfg.Clock, c.logger)
	c.history = &HistoryLoader{
		api:      cfg.History,
		store:    c.store,
		logger:   c.logger,
		metrics:  c.metrics,
		ctx:      ctx,
		wg:       &c.wg,
		post:     c.post,
		onChange: c.notify,
	}

	go c.run()
	return c, nil
}

func (c *Client) run() {
	defer close(c.stopped)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Client) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

// do runs fn on the event loop and waits for it to finish.
func (c *Client) do(fn func()) bool {
	finished := make(chan struct{})
	if !c.post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Updates delivers a signal after state the UI displays has changed.
// Signals coalesce; read the current state after each one.
func (c *Client) Updates() <-chan struct{} { return c.updates }

func (c *Client) Self() User { return c.self }

// Connect opens the transport unless it is already open or connecting.
func (c *Client) Connect() {
	c.do(c.conn.Connect)
}

func (c *Client) Status() Status {
	status := StatusDisconnected
	c.do(func() { status = c.conn.State() })
	return status
}

func (c *Client) Connected() bool {
	return c.Status() == StatusOpen
}

// SendMessage shows text in the peer's conversation immediately as a
// pending entry and transmits it if the transport is open. Transport
// failures are not reported; the entry stays pending.
func (c *Client) SendMessage(peerID int64, text string) (Message, error) {
	if peerID <= 0 || peerID == c.self.ID {
		return Message{}, ErrInvalidPeer
	}
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyMessage
	}

	var msg Message
	var ok bool
	if !c.do(func() { msg, ok = c.reconciler.SendOptimistic(peerID, text) }) {
		return Message{}, ErrClosed
	}
	if !ok {
		return Message{}, ErrEmptyMessage
	}
	c.notify()
	return msg, nil
}

// SelectConversation makes peerID the active conversation, clears its
// unread counter and loads its history the first time.
func (c *Client) SelectConversation(peerID int64) error {
	if peerID <= 0 || peerID == c.self.ID {
		return ErrInvalidPeer
	}
	if !c.do(func() {
		cleared, needsHistory := c.store.SetActive(peerID)
		if cleared > 0 {
			c.sendReadReceipt(peerID)
		}
		if needsHistory {
			c.history.Load(peerID, c.cfg.HistoryLimit)
		}
	}) {
		return ErrClosed
	}
	c.notify()
	return nil
}

// MarkRead clears the peer's unread counter and acknowledges it to the
// server.
func (c *Client) MarkRead(peerID int64) error {
	if !c.do(func() {
		c.store.MarkRead(peerID)
		c.sendReadReceipt(peerID)
	}) {
		return ErrClosed
	}
	c.notify()
	return nil
}

func (c *Client) Conversations() []ConversationSummary {
	var summaries []ConversationSummary
	c.do(func() { summaries = c.store.Summaries() })
	return summaries
}

func (c *Client) Messages(peerID int64) []Message {
	messages := []Message{}
	c.do(func() { messages = c.store.Messages(peerID) })
	return messages
}

// ActiveMessages returns the sequence of the active conversation, or nil
// when none is selected.
func (c *Client) ActiveMessages() []Message {
	var messages []Message
	c.do(func() {
		if peerID, ok := c.store.Active(); ok {
			messages = c.store.Messages(peerID)
		}
	})
	return messages
}

func (c *Client) handleFrame(data []byte) {
	ev, err := decodeEvent(data, c.self.ID)
	if err != nil {
		c.metrics.FramesDropped.Inc()
		c.logger.Warn("dropping inbound frame", zap.Error(err))
		return
	}
	if ev == nil {
		c.logger.Debug("control frame", zap.String("type", controlType(data)))
		return
	}
	if c.reconciler.Apply(ev) {
		c.notify()
	}
}

// scheduleRead acknowledges peerID's messages after the read delay.
// Requests for a peer that already has one pending are merged.
func (c *Client) scheduleRead(peerID int64) {
	if _, pending := c.readTimers[peerID]; pending {
		return
	}
	c.readTimers[peerID] = c.cfg.Clock.AfterFunc(c.cfg.ReadAckDelay, func() {
		c.post(func() {
			delete(c.readTimers, peerID)
			c.sendReadReceipt(peerID)
		})
	})
}

func (c *Client) sendReadReceipt(peerID int64) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.api.MarkRead(c.ctx, peerID); err != nil && c.ctx.Err() == nil {
			c.logger.Warn("send read receipt", zap.Int64("peer_id", peerID), zap.Error(err))
		}
	}()
}

// Close tears the session down: heartbeat, reconnect and read timers are
// cancelled, an open transport is closed normally and every background
// goroutine is waited for.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.do(func() {
			c.conn.Teardown()
			for peerID, timer := range c.readTimers {
				timer.Stop()
				delete(c.readTimers, peerID)
			}
		})
		c.cancel()
		close(c.done)
		<-c.stopped
		c.wg.Wait()
		c.logger.Debug("chat session closed")
	})
	return nil
}
