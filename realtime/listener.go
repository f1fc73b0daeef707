package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection timeouts
const (
	defaultPongTimeout    = 60 * time.Second
	defaultReconnectDelay = 5 * time.Second
	writeTimeout          = 10 * time.Second
)

// Config configures the push invalidation listener
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
}

// Event is a change notification pushed by the backend
type Event struct {
	Type string `json:"type"`

	// Namespace targets one cache namespace directly, overriding Type
	Namespace string `json:"namespace,omitempty"`
}

// eventNamespaces maps backend event types to the cache namespaces they stale
var eventNamespaces = map[string][]string{
	"order.updated":   {"orders", "order_detail"},
	"order.created":   {"orders"},
	"cart.updated":    {"cart"},
	"product.updated": {"products"},
	"review.created":  {"products"},
	"shop.updated":    {"shops", "shops_by_school"},
	"payment.updated": {"transactions"},
}

// NamespaceRefetcher forces a refetch of every queried key in a namespace
type NamespaceRefetcher interface {
	RefetchNamespace(ctx context.Context, namespace string) error
}

// Listener keeps a websocket open to the backend and turns change events into
// forced refetches, so open views converge without waiting for their TTL.
type Listener struct {
	config    Config
	refetcher NamespaceRefetcher
	tokens    func() string
	logger    *zap.Logger
	dialer    *websocket.Dialer

	connected atomic.Bool

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	loopWg sync.WaitGroup
}

// NewListener creates a listener. tokens may be nil for anonymous sessions.
func NewListener(config Config, refetcher NamespaceRefetcher, tokens func() string, logger *zap.Logger) *Listener {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaultReconnectDelay
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaultPongTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		config:    config,
		refetcher: refetcher,
		tokens:    tokens,
		logger:    logger,
		dialer:    websocket.DefaultDialer,
	}
}

// Start connects and starts the read loop. Does nothing unless enabled.
// A failed first connection is returned; later disconnects are retried.
func (l *Listener) Start(ctx context.Context) error {
	if !l.config.Enabled {
		l.logger.Info("Realtime: disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	if err := l.connect(ctx); err != nil {
		cancel()
		return err
	}

	l.loopWg.Add(1)
	go l.run(ctx)
	return nil
}

// Stop closes the connection and waits for the read loop to exit
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	if l.conn != nil {
		l.conn.Close()
	}
	l.mu.Unlock()

	l.loopWg.Wait()
}

// Healthy reports whether the listener is connected, or disabled
func (l *Listener) Healthy() bool {
	return !l.config.Enabled || l.connected.Load()
}

func (l *Listener) connect(ctx context.Context) error {
	header := http.Header{}
	if l.tokens != nil {
		if token := l.tokens(); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, _, err := l.dialer.DialContext(ctx, l.config.URL, header)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(l.config.PongTimeout)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	conn.SetPingHandler(func(appData string) error {
		if err := conn.SetReadDeadline(time.Now().Add(l.config.PongTimeout)); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			l.logger.Debug("Realtime: error sending pong", zap.Error(err))
		}
		return nil
	})

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.connected.Store(true)

	l.logger.Info("Realtime: connected", zap.String("url", l.config.URL))
	return nil
}

// run reads until ctx ends, reconnecting after read errors
func (l *Listener) run(ctx context.Context) {
	defer l.loopWg.Done()

	for {
		err := l.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("Realtime: connection lost, reconnecting",
			zap.Duration("delay", l.config.ReconnectDelay),
			zap.Error(err))

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.config.ReconnectDelay):
			}
			if err := l.connect(ctx); err != nil {
				l.logger.Warn("Realtime: reconnect failed", zap.Error(err))
				continue
			}
			break
		}
	}
}

func (l *Listener) readLoop(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	defer func() {
		l.connected.Store(false)
		conn.Close()
	}()

	for {
		if err := conn.SetReadDeadline(time.Now().Add(l.config.PongTimeout)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := l.handle(ctx, message); err != nil {
			l.logger.Warn("Realtime: failed to handle event", zap.Error(err))
		}
	}
}

func (l *Listener) handle(ctx context.Context, message []byte) error {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	namespaces := eventNamespaces[event.Type]
	if event.Namespace != "" {
		namespaces = []string{event.Namespace}
	}
	if len(namespaces) == 0 {
		l.logger.Debug("Realtime: ignoring event", zap.String("type", event.Type))
		return nil
	}

	var errs []error
	for _, ns := range namespaces {
		if err := l.refetcher.RefetchNamespace(ctx, ns); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
