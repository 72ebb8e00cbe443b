package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"launchpad/internal/observability"

	"github.com/gorilla/websocket"
)

// WatcherConfig configures the program log watcher.
type WatcherConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is the maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// LogNotification is one logsNotification delivered by the watcher.
type LogNotification struct {
	Signature string
	Slot      int64
	Err       interface{}
	Logs      []string
}

// Watcher subscribes to launchpad program logs over WebSocket. Settlement
// records trades synchronously; the watcher exists to reconcile trades whose
// bookkeeping was skipped or lost (confirmed transactions observed here are
// re-fed through the settlement recording path).
type Watcher struct {
	endpoint string
	config   WatcherConfig

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	notifications chan LogNotification
	done          chan struct{}
	wg            sync.WaitGroup
}

// NewWatcher connects to the WebSocket endpoint and subscribes to logs
// mentioning the launchpad program.
func NewWatcher(ctx context.Context, endpoint string, config *WatcherConfig) (*Watcher, error) {
	cfg := DefaultWatcherConfig()
	if config != nil {
		cfg = *config
	}

	w := &Watcher{
		endpoint:      endpoint,
		config:        cfg,
		notifications: make(chan LogNotification, 256),
		done:          make(chan struct{}),
	}

	if err := w.connect(ctx); err != nil {
		return nil, err
	}

	w.wg.Add(2)
	go w.readLoop()
	go w.pingLoop()

	return w, nil
}

// Notifications returns the channel of program log notifications.
func (w *Watcher) Notifications() <-chan LogNotification {
	return w.notifications
}

// Close shuts the watcher down.
func (w *Watcher) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(w.done)

	w.connMu.Lock()
	if w.conn != nil {
		w.conn.Close()
	}
	w.connMu.Unlock()

	w.wg.Wait()
	close(w.notifications)
	return nil
}

// connect dials the endpoint and issues the logsSubscribe request.
func (w *Watcher) connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}

	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      w.requestID.Add(1),
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentions": []string{LaunchpadProgram}},
			map[string]interface{}{"commitment": "confirmed"},
		},
	}

	conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to logs: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	return nil
}

// wsMessage covers both subscription acks and notifications.
type wsMessage struct {
	Method string `json:"method"`
	Params *struct {
		Result struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Signature string      `json:"signature"`
				Err       interface{} `json:"err"`
				Logs      []string    `json:"logs"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// readLoop reads notifications, reconnecting with backoff on failure.
func (w *Watcher) readLoop() {
	defer w.wg.Done()

	delay := w.config.ReconnectDelay
	for {
		w.connMu.Lock()
		conn := w.conn
		w.connMu.Unlock()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if w.closed.Load() {
				return
			}

			select {
			case <-w.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > w.config.MaxReconnectDelay {
				delay = w.config.MaxReconnectDelay
			}

			ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
			if err := w.connect(ctx); err != nil {
				cancel()
				continue
			}
			cancel()
			delay = w.config.ReconnectDelay
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Method != "logsNotification" || msg.Params == nil {
			continue
		}

		notification := LogNotification{
			Signature: msg.Params.Result.Value.Signature,
			Slot:      msg.Params.Result.Context.Slot,
			Err:       msg.Params.Result.Value.Err,
			Logs:      msg.Params.Result.Value.Logs,
		}

		select {
		case w.notifications <- notification:
		case <-w.done:
			return
		default:
			// Drop when the consumer falls behind. A dropped trade still
			// settles through the synchronous path; only watcher-side
			// reconciliation misses it, so count the loss.
			observability.DefaultMetrics.WatcherDrops.Inc()
		}
	}
}

// pingLoop keeps the connection alive.
func (w *Watcher) pingLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.connMu.Lock()
			conn := w.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
				conn.WriteMessage(websocket.PingMessage, nil)
			}
			w.connMu.Unlock()
		}
	}
}
