package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"alturbridge/core"
	"alturbridge/serializers"

	"github.com/gorilla/websocket"
)

var errClosed = errors.New("websocket: connection closed")

// Service implements transport.TransportService over one accepted WebSocket
// connection. The peer has already identified its call when the service is
// created.
type Service struct {
	conn         *websocket.Conn
	callID       string
	remoteAddr   string
	writeTimeout time.Duration
	logger       *core.Logger

	mu        sync.Mutex // protects writes
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewService wraps an upgraded connection.
func NewService(conn *websocket.Conn, callID string, config *Config, logger *core.Logger) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	s := &Service{
		conn:         conn,
		callID:       callID,
		writeTimeout: time.Duration(config.WriteTimeoutSeconds) * time.Second,
		logger:       logger,
		done:         make(chan struct{}),
	}
	if conn != nil {
		s.remoteAddr = conn.RemoteAddr().String()
	}
	return s
}

func (s *Service) Init(ctx context.Context) error { return nil }
func (s *Service) Reset() error                   { return nil }

// Cleanup closes the connection. Both transport handlers call it.
func (s *Service) Cleanup() error {
	return s.Close()
}

// Connect is a no-op since the connection is already open.
func (s *Service) Connect() error {
	if s.conn == nil {
		return errClosed
	}
	return nil
}

func (s *Service) CallID() string {
	return s.callID
}

func (s *Service) RemoteAddr() string {
	return s.remoteAddr
}

// SendRawOutput writes one message as a text or binary frame.
func (s *Service) SendRawOutput(data []byte, kind serializers.SerializerType) error {
	messageType := websocket.BinaryMessage
	if kind == serializers.SerializerTypeText {
		messageType = websocket.TextMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.conn == nil {
		return errClosed
	}
	if s.writeTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	if err := s.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// StartReceiving reads messages until the peer disconnects or the service is
// closed, then closes outputChan. A close with an unexpected code is
// reported on errorChan first.
func (s *Service) StartReceiving(outputChan chan<- []byte, errorChan chan<- error) {
	defer close(outputChan)

	if s.conn == nil {
		errorChan <- errClosed
		return
	}

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case errorChan <- fmt.Errorf("websocket error: %w", err):
				default:
				}
			} else {
				s.logger.Debug("read loop ended", "error", err)
			}
			return
		}

		select {
		case outputChan <- msg:
		case <-s.done:
			return
		}
	}
}

// Close sends a close frame and shuts the connection down. It is safe to call
// more than once.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.conn == nil {
			return
		}
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
