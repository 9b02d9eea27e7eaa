// Package main runs a demo technician-device client against the
// dispatch hub.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	techID := os.Getenv("TECH_ID")
	if techID == "" {
		techID = "tech_demo"
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     "localhost:" + port,
		Path:     "/v1/ws/technician",
		RawQuery: "businessId=biz_demo&techId=" + techID,
	}
	hdr := http.Header{}
	hdr.Set("X-Business-Id", "biz_demo")
	hdr.Set("X-Role", "technician")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Report a few positions walking north, then go on_job
	lat, lon := 40.7128, -74.0060
	for i := 0; i < 3; i++ {
		pl, _ := json.Marshal(map[string]any{"latitude": lat, "longitude": lon})
		if err := c.WriteJSON(wsMessage{Type: "location", Payload: pl}); err != nil {
			log.Fatal(err)
		}
		lat += 0.001
		time.Sleep(500 * time.Millisecond)
	}
	pl, _ := json.Marshal(map[string]any{"status": "on_job", "job_id": "job_demo"})
	if err := c.WriteJSON(wsMessage{Type: "status", Payload: pl}); err != nil {
		log.Fatal(err)
	}
	fmt.Println("sent location and status updates, waiting for echoes")

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
