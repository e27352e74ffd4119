package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsQueueSize = 256

// WebsocketSink pushes events to an external subscriber over a websocket.
// Emit only enqueues; a background goroutine owns the connection and does
// the dialing, backoff and writing, so a slow or unreachable endpoint never
// stalls the pipeline. Events are dropped when the queue is full or the
// endpoint stays down, and consumers reconcile using the monotonic Current
// counter.
type WebsocketSink struct {
	url          string
	reconnectMax int
	sm           *ConnStateMachine
	logger       *slog.Logger

	queue  chan Event
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error

	conn *websocket.Conn // delivery goroutine only
}

func NewWebsocketSink(url string, reconnectMax int, staleInterval time.Duration, logger *slog.Logger) *WebsocketSink {
	if logger == nil {
		logger = slog.Default()
	}
	if reconnectMax <= 0 {
		reconnectMax = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebsocketSink{
		url:          url,
		reconnectMax: reconnectMax,
		sm:           NewConnStateMachine(staleInterval),
		logger:       logger,
		queue:        make(chan Event, wsQueueSize),
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// State exposes the delivery connection state for observability.
func (s *WebsocketSink) State() ConnState { return s.sm.CheckStale() }

// Emit hands the event to the delivery goroutine without blocking. A full
// queue means the endpoint cannot keep up; the event is dropped.
func (s *WebsocketSink) Emit(_ context.Context, e Event) error {
	select {
	case <-s.done:
		return nil
	case s.queue <- e:
	default:
		s.logger.Warn("progress.ws.queue_full", "url", s.url, "type", e.Type)
	}
	return nil
}

// Close stops the delivery goroutine and waits for it to exit.
func (s *WebsocketSink) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return s.closeErr
}

// run drains the queue until Close cancels the context.
func (s *WebsocketSink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			if s.conn != nil {
				s.closeErr = s.conn.Close()
				s.conn = nil
				_ = s.sm.Transition(StateDisconnected)
			}
			return
		case e := <-s.queue:
			s.deliver(ctx, e)
		}
	}
}

func (s *WebsocketSink) deliver(ctx context.Context, e Event) {
	if s.conn == nil || s.sm.CheckStale() != StateConnected {
		if s.conn != nil {
			_ = s.conn.Close()
			s.conn = nil
		}
		if err := s.connect(ctx); err != nil {
			s.logger.Warn("progress.ws.unavailable", "url", s.url, "error", err)
			return
		}
	}

	if err := s.conn.WriteJSON(e); err != nil {
		s.logger.Warn("progress.ws.write_failed", "error", err)
		_ = s.sm.Transition(StateReconnecting)
		_ = s.conn.Close()
		s.conn = nil
		if rerr := s.connect(ctx); rerr != nil {
			return
		}
		if rerr := s.conn.WriteJSON(e); rerr != nil {
			s.logger.Warn("progress.ws.resend_failed", "error", rerr)
			return
		}
	}
	s.sm.Touch()
}

// connect dials with exponential backoff, giving up after reconnectMax
// attempts or when the sink is closed.
func (s *WebsocketSink) connect(ctx context.Context) error {
	if s.sm.State() == StateDisconnected {
		_ = s.sm.Transition(StateConnecting)
	}

	var lastErr error
	delay := time.Second
	for attempt := 1; attempt <= s.reconnectMax; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err == nil {
			s.conn = conn
			_ = s.sm.Transition(StateConnected)
			s.logger.Info("progress.ws.connected", "url", s.url, "attempt", attempt)
			return nil
		}
		lastErr = err
		s.logger.Warn("progress.ws.dial_failed", "attempt", attempt, "error", err)
		if attempt == s.reconnectMax {
			break
		}
		select {
		case <-ctx.Done():
			_ = s.sm.Transition(StateDisconnected)
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	_ = s.sm.Transition(StateDisconnected)
	return lastErr
}
