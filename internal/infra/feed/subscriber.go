package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mmsim/internal/domain"
)

const (
	maxRetries = 10
	baseDelay  = 1 * time.Second
	maxDelay   = 60 * time.Second
)

// Backoff returns the reconnect delay for the given attempt, doubling from
// baseDelay up to maxDelay.
func Backoff(retry int) time.Duration {
	if retry > 6 {
		return maxDelay
	}
	d := baseDelay << retry
	if d > maxDelay {
		d = maxDelay
	}
	return d
}

// Subscriber follows a hub and delivers decoded snapshots on a channel.
// It reconnects with backoff until its context is cancelled.
type Subscriber struct {
	url string
	out chan domain.Snapshot

	mu     sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSubscriber creates a subscriber for a ws:// URL ending in Path.
func NewSubscriber(url string, buffer int) *Subscriber {
	return &Subscriber{url: url, out: make(chan domain.Snapshot, buffer)}
}

// Snapshots is the delivery channel. It is closed after Disconnect.
func (s *Subscriber) Snapshots() <-chan domain.Snapshot {
	return s.out
}

// Connect starts the connection loop.
func (s *Subscriber) Connect(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.connectionLoop(ctx)
	return nil
}

// Disconnect stops the loop and waits for it to exit.
func (s *Subscriber) Disconnect() {
	if s.cancel != nil {
		s.cancel()
	}
	s.closeConnection()
	s.wg.Wait()
	close(s.out)
}

func (s *Subscriber) connectionLoop(ctx context.Context) {
	defer s.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.connect(ctx); err != nil {
			slog.Warn("Feed connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := Backoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			s.readLoop(ctx)
		}
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	slog.Info("Feed connected", slog.String("url", s.url))
	return nil
}

func (s *Subscriber) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *Subscriber) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			s.closeConnection()
			return
		}
		s.handleMessage(msg)
	}
}

func (s *Subscriber) handleMessage(msg []byte) {
	var m Message
	if json.Unmarshal(msg, &m) != nil || m.Type != MessageTypeSnapshot {
		return
	}

	select {
	case s.out <- m.Snapshot:
	default: // DROP
	}
}
