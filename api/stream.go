package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/adcraftlabs/adcraft/observe"
)

// EventStream fans observe events out to connected websocket clients.
// It implements observe.Sink so it can be wired into the process sink
// chain; slow clients drop events rather than blocking publishers.
type EventStream struct {
	mu       sync.RWMutex
	nextID   int
	watchers map[int]chan observe.Event
}

func NewEventStream() *EventStream {
	return &EventStream{watchers: map[int]chan observe.Event{}}
}

func (s *EventStream) Emit(_ context.Context, event observe.Event) error {
	s.publish(event)
	return nil
}

func (s *EventStream) subscribe(buffer int) (int, <-chan observe.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buffer <= 0 {
		buffer = 64
	}
	id := s.nextID
	s.nextID++
	ch := make(chan observe.Event, buffer)
	s.watchers[id] = ch
	return id, ch
}

func (s *EventStream) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.watchers[id]; ok {
		delete(s.watchers, id)
		close(ch)
	}
}

func (s *EventStream) publish(event observe.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.watchers {
		select {
		case ch <- event:
		default:
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard may be served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// handleEventStream upgrades to a websocket and forwards observe events
// until the client disconnects.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	id, events := s.stream.subscribe(64)
	defer s.stream.unsubscribe(id)

	// Reader goroutine: detect disconnects, discard client frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
