// Package main runs a demo client against the engine's ops API: it triggers a
// routing pass and streams the resulting events over the websocket.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type string         `json:"type"`
	TS   time.Time      `json:"ts"`
	Data map[string]any `json:"data,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Connect to the event stream first so nothing is missed.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var evt event
			if err := c.ReadJSON(&evt); err != nil {
				log.Printf("read: %v", err)
				return
			}
			data, _ := json.Marshal(evt.Data)
			log.Printf("WS <- %s: %s", evt.Type, data)
		}
	}()

	// Trigger a routing pass over pending source orders.
	resp, err := http.Post(base+"/v1/route/pending", "application/json", bytes.NewReader(nil))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var res struct {
		TotalOrders  int `json:"totalOrders"`
		SuccessCount int `json:"successCount"`
		FailureCount int `json:"failureCount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		log.Fatal(err)
	}
	log.Printf("routed %d orders: %d ok, %d failed", res.TotalOrders, res.SuccessCount, res.FailureCount)

	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
