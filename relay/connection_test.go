package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/girino/nostrkit/event"
	"github.com/girino/nostrkit/keys"
)

// buildOkReply inspects a client->relay frame and, if it's an EVENT
// frame, returns the ["OK", id, true, ""] reply a relay would send.
func buildOkReply(data []byte) []byte {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil || len(arr) < 2 {
		return nil
	}
	var frameType string
	if err := json.Unmarshal(arr[0], &frameType); err != nil || frameType != "EVENT" {
		return nil
	}
	var fields struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(arr[1], &fields); err != nil {
		return nil
	}
	reply, _ := json.Marshal([]interface{}{"OK", fields.ID, true, ""})
	return reply
}

func TestConfigDelaySchedule(t *testing.T) {
	c := Config{InitialReconnectDelay: time.Second, MaxReconnectDelay: 8 * time.Second, ReconnectBackoffMultiplier: 2}.normalize()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for attempt, w := range want {
		if got := c.delay(attempt); got != w {
			t.Fatalf("delay(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Disconnected:  "disconnected",
		Connecting:    "connecting",
		Connected:     "connected",
		Disconnecting: "disconnecting",
		Failed:        "failed",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

// echoRelayServer accepts one WebSocket connection and, for every
// EVENT frame it receives, replies with an OK accepting it.
func echoRelayServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			reply := buildOkReply(data)
			if reply != nil {
				if err := c.Write(ctx, websocket.MessageText, reply); err != nil {
					return
				}
			}
		}
	}))
	return srv
}

func TestConnectionConnectPublishClose(t *testing.T) {
	srv := echoRelayServer(t)
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn := NewConnection(wsURL, Config{AutoReconnect: true, InitialReconnectDelay: time.Second, MaxReconnectDelay: time.Second, MaxReconnectAttempts: 1}, false)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.State() != Connected {
		t.Fatalf("State = %v, want Connected", conn.State())
	}

	kp, err := keys.New()
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	e, err := event.Sign(event.UnsignedEvent{Kind: 1, Content: "hi"}, kp)
	if err != nil {
		t.Fatalf("event.Sign: %v", err)
	}

	accepted, _, err := conn.Publish(ctx, e.ID, EventMsg{Event: e})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !accepted {
		t.Fatal("expected relay to accept the event")
	}
}

func TestClosePublishWaiterGetsNotConnected(t *testing.T) {
	// A relay that accepts the WS handshake but never answers with OK,
	// so the publish waiter is still parked when Close runs.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		<-r.Context().Done()
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	conn := NewConnection(wsURL, Config{InitialReconnectDelay: time.Second, MaxReconnectDelay: time.Second}, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	kp, err := keys.New()
	if err != nil {
		t.Fatalf("keys.New: %v", err)
	}
	e, err := event.Sign(event.UnsignedEvent{Kind: 1, Content: "hi"}, kp)
	if err != nil {
		t.Fatalf("event.Sign: %v", err)
	}

	done := make(chan struct{})
	var gotErr error
	go func() {
		_, _, gotErr = conn.Publish(context.Background(), e.ID, EventMsg{Event: e})
		close(done)
	}()

	// Give Publish a moment to register its waiter before we close.
	time.Sleep(50 * time.Millisecond)
	conn.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish did not return after Close woke its waiter")
	}
	if !errors.Is(gotErr, ErrNotConnected) {
		t.Fatalf("Publish error = %v, want ErrNotConnected", gotErr)
	}
}

func TestConnectRejectsWhileAlreadyConnecting(t *testing.T) {
	srv := echoRelayServer(t)
	defer srv.Close()
	wsURL := "ws" + srv.URL[len("http"):]

	conn := NewConnection(wsURL, Config{}, false)
	defer conn.Close()
	conn.setState(Connecting)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Connect(ctx); err == nil {
		t.Fatal("expected ErrConnectInProgress")
	}
}
