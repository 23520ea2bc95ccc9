package realtime

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"dealership_portal/platform/logger"

	"github.com/gorilla/websocket"
)

const maxReconnectDelay = 30 * time.Second

// SocketSource reads frames from the CRM push socket and reconnects with
// exponential backoff when the connection drops.
type SocketSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	delay  time.Duration
	log    *logger.Logger
}

// NewSocketSource creates a source for url. A non-empty token is sent as a
// bearer credential.
func NewSocketSource(url, token string, reconnectDelay time.Duration, log *logger.Logger) *SocketSource {
	header := http.Header{}
	if token = strings.TrimSpace(token); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 2 * time.Second
	}
	return &SocketSource{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		delay:  reconnectDelay,
		log:    log,
	}
}

func (s *SocketSource) Name() string { return "socket" }

func (s *SocketSource) Run(ctx context.Context, emit func(Frame)) error {
	delay := s.delay
	for {
		connected, err := s.session(ctx, emit)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = s.delay
		}
		s.log.Warn("push socket disconnected", "error", err, "retry_in", delay.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (s *SocketSource) session(ctx context.Context, emit func(Frame)) (bool, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, errors.New("closed by server")
			}
			return true, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		f, err := DecodeFrame(data)
		if err != nil {
			s.log.Debug("push frame skipped", "error", err)
			continue
		}
		emit(f)
	}
}
