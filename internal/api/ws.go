package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"orderbridge/internal/events"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

var allTopics = []string{
	events.TopicOrderRouted,
	events.TopicOrderFailed,
	events.TopicTrackingSync,
	events.TopicLowStock,
}

// EventsWSHandler streams engine events over a websocket. The optional
// ?topics= query selects a comma-separated subset; default is every topic.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	topics := allTopics
	if v := strings.TrimSpace(r.URL.Query().Get("topics")); v != "" {
		topics = topics[:0:0]
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// Fan all subscribed topics into one channel so a single writer owns
	// the connection.
	out := make(chan events.Event, 32)
	done := make(chan struct{})
	subs := make(map[string]chan events.Event, len(topics))
	for _, t := range topics {
		ch := s.Broker.Subscribe(t)
		subs[t] = ch
		go func(c chan events.Event) {
			for evt := range c {
				select {
				case out <- evt:
				case <-done:
					return
				}
			}
		}(ch)
	}
	defer func() {
		close(done)
		for t, ch := range subs {
			s.Broker.Unsubscribe(t, ch)
		}
	}()

	// Reader only services control frames and detects the peer going away.
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case evt := <-out:
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}
