package feed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSSource delivers raw feed frames from the upstream push channel.
// It only reads; subscription control goes through the broker client.
type WSSource struct {
	url        string
	headers    map[string]string
	maxRetries int
	baseDelay  time.Duration
	logger     zerolog.Logger

	conn      *websocket.Conn
	out       chan []byte
	connected bool
	closed    bool

	onConnect    func()
	onDisconnect func(err error)

	mu sync.RWMutex
}

// WSSourceConfig holds configuration for the feed source.
type WSSourceConfig struct {
	URL        string
	Headers    map[string]string
	MaxRetries int
	BaseDelay  time.Duration
	BufferSize int
	Logger     zerolog.Logger
}

// NewWSSource creates a feed source for the given websocket URL.
func NewWSSource(cfg WSSourceConfig) *WSSource {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	baseDelay := cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = time.Second
	}
	bufferSize := cfg.BufferSize
	if bufferSize == 0 {
		bufferSize = 1000
	}
	return &WSSource{
		url:        cfg.URL,
		headers:    cfg.Headers,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     cfg.Logger,
		out:        make(chan []byte, bufferSize),
	}
}

// Messages returns the channel of raw inbound frames. If the internal
// buffer fills, new frames are dropped rather than stalling the read
// loop.
func (s *WSSource) Messages() <-chan []byte {
	return s.out
}

// OnConnect sets the connection handler.
func (s *WSSource) OnConnect(handler func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = handler
}

// OnDisconnect sets the disconnection handler.
func (s *WSSource) OnDisconnect(handler func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = handler
}

// Connect dials the upstream and starts the read loop. The read loop
// reconnects with exponential backoff until the context is cancelled
// or the retry budget is exhausted.
func (s *WSSource) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
	if err := s.dial(ctx); err != nil {
		return err
	}
	go s.readLoop(ctx)
	return nil
}

// Close tears down the connection and stops the read loop for good;
// it must not be mistaken for a dropped connection and redialed. The
// message channel stays open; a subsequent Connect reuses it.
func (s *WSSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected reports whether the source currently holds a live
// connection.
func (s *WSSource) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *WSSource) dial(ctx context.Context) error {
	header := make(map[string][]string, len(s.headers))
	for k, v := range s.headers {
		header[k] = []string{v}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dialing feed %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	handler := s.onConnect
	s.mu.Unlock()

	if handler != nil {
		go handler()
	}
	return nil
}

func (s *WSSource) readLoop(ctx context.Context) {
	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			wasConnected := s.connected
			closed := s.closed
			s.connected = false
			handler := s.onDisconnect
			s.mu.Unlock()

			if handler != nil && wasConnected {
				go handler(err)
			}
			if closed || ctx.Err() != nil {
				return
			}
			if !s.reconnect(ctx) {
				return
			}
			continue
		}

		select {
		case s.out <- payload:
		default:
			s.logger.Warn().Msg("feed buffer full, dropping frame")
		}
	}
}

// reconnect retries the dial with exponential backoff, capped at 30s
// per attempt. Returns false when the retry budget is spent.
func (s *WSSource) reconnect(ctx context.Context) bool {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		delay := s.baseDelay * time.Duration(math.Pow(2, float64(attempt)))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		if err := s.dial(ctx); err != nil {
			s.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("feed reconnect failed")
			continue
		}
		s.logger.Info().Int("attempt", attempt+1).Msg("feed reconnected")
		return true
	}
	s.logger.Error().Msg("feed reconnect attempts exhausted")
	return false
}
