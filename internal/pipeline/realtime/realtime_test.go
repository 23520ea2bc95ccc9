package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dealership_portal/platform/events"
	"dealership_portal/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const waitTimeout = 2 * time.Second

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"event":" lead:created ","data":{"id":"n-1"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Event != KindLeadCreated || string(f.Data) != `{"id":"n-1"}` {
		t.Fatalf("unexpected frame: %+v", f)
	}

	if _, err := DecodeFrame([]byte(`{"event":"chat:message"}`)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := DecodeFrame([]byte(`not json`)); err == nil {
		t.Fatalf("expected decode error")
	}
}

type frameSink struct {
	mu     sync.Mutex
	frames []Frame
	got    chan struct{}
}

func newSink() *frameSink { return &frameSink{got: make(chan struct{}, 16)} }

func (s *frameSink) emit(f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	select {
	case s.got <- struct{}{}:
	default:
	}
}

func (s *frameSink) wait(t *testing.T) Frame {
	t.Helper()
	select {
	case <-s.got:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for a frame")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[len(s.frames)-1]
}

type staticSource struct {
	frames []Frame
}

func (s staticSource) Name() string { return "static" }

func (s staticSource) Run(ctx context.Context, emit func(Frame)) error {
	for _, f := range s.frames {
		emit(f)
	}
	<-ctx.Done()
	return nil
}

func TestBridgePublishesFramesOnBus(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Discard())
	got := make(chan Event, 4)
	sub := Subscribe(bus, func(e Event) { got <- e })
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	src := staticSource{frames: []Frame{{Event: KindLeadUpdated}, {Event: KindBadgesRefresh}}}
	done := make(chan error, 1)
	go func() { done <- NewBridge(bus, logger.Discard(), src).Run(ctx) }()

	kinds := map[string]bool{}
	for range 2 {
		select {
		case e := <-got:
			if e.Source != "static" {
				t.Fatalf("expected source static, got %q", e.Source)
			}
			kinds[e.Kind] = true
		case <-time.After(waitTimeout):
			t.Fatalf("timed out waiting for bus events")
		}
	}
	if !kinds[KindLeadUpdated] || !kinds[KindBadgesRefresh] {
		t.Fatalf("unexpected kinds: %v", kinds)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	bus := events.NewInMemoryBus(logger.Discard())
	var mu sync.Mutex
	count := 0
	sub := Subscribe(bus, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	sub.Close()
	sub.Close()

	bus.Publish(context.Background(), NewEvent(Frame{Event: KindLeadCreated}, "test"))
	bus.Wait()
	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected no delivery after close, got %d", count)
	}

	var nilSub *Subscription
	nilSub.Close()
}

func TestRedisSourceReceivesPublishedFrames(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	src := NewRedisSource(client, "crm:events", logger.Discard())
	sink := newSink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx, sink.emit) }()

	deadline := time.Now().Add(waitTimeout)
	for {
		if err := PublishFrame(ctx, client, "crm:events", Frame{Event: KindLeadCreated}); err != nil {
			t.Fatalf("publish: %v", err)
		}
		select {
		case <-sink.got:
			sink.mu.Lock()
			f := sink.frames[0]
			sink.mu.Unlock()
			if f.Event != KindLeadCreated {
				t.Fatalf("unexpected frame %+v", f)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for redis frame")
		}
	}
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	if _, err := NewRedisClient(""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewRedisClient("http://nope"); err == nil {
		t.Fatalf("expected error for non-redis scheme")
	}
}

func TestSocketSourceReadsFramesAndSendsToken(t *testing.T) {
	upgrader := websocket.Upgrader{}
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"unknown"}`))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(`{"event":"lead:created"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"lead:updated"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	src := NewSocketSource(url, "secret", 10*time.Millisecond, logger.Discard())
	sink := newSink()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, sink.emit) }()

	f := sink.wait(t)
	if f.Event != KindLeadUpdated {
		t.Fatalf("expected only the text lead:updated frame, got %+v", f)
	}
	if got := <-auth; got != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatalf("socket source did not stop")
	}
}

func TestSocketSourceReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	connections := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		connections++
		mu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"badges:refresh"}`))
		_ = conn.Close()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	src := NewSocketSource(url, "", 5*time.Millisecond, logger.Discard())
	sink := newSink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = src.Run(ctx, sink.emit) }()

	sink.wait(t)
	sink.wait(t)

	mu.Lock()
	defer mu.Unlock()
	if connections < 2 {
		t.Fatalf("expected a reconnect, got %d connections", connections)
	}
}
