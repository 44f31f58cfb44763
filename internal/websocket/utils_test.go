package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// Two goroutines share one connection, the way the attempt stream's event
// pump and action replies do. Every frame must arrive intact; run with
// -race to catch unserialized writes.
func TestConcurrentWritersShareOneConn(t *testing.T) {
	const perWriter = 50

	upgrader := websocket.Upgrader{}
	serverDone := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			serverDone <- err
			return
		}
		defer raw.Close()

		conn := Wrap(raw)
		var wg sync.WaitGroup
		for g := 0; g < 2; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					if err := conn.WriteTyped(PongResponse{Event: EventPong}); err != nil {
						return
					}
				}
			}()
		}
		wg.Wait()
		serverDone <- nil
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	for i := 0; i < 2*perWriter; i++ {
		var msg PongResponse
		if err := client.ReadJSON(&msg); err != nil {
			t.Fatalf("frame %d corrupted: %v", i, err)
		}
		if msg.Event != EventPong {
			t.Fatalf("frame %d = %+v, want pong", i, msg)
		}
	}

	if err := <-serverDone; err != nil {
		t.Fatalf("server side: %v", err)
	}
}
