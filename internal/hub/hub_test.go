package hub

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"accountflow/models"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := New(4)
	defer h.Close()

	_, ch1 := h.Subscribe()
	_, ch2 := h.Subscribe()

	h.Publish(models.NotifyMessage{Store: "bingx.balance", Balance: &models.Balance{Balance: 100}})

	for i, ch := range []<-chan models.NotifyMessage{ch1, ch2} {
		select {
		case msg := <-ch:
			if msg.Store != "bingx.balance" || msg.Balance == nil || msg.Balance.Balance != 100 {
				t.Errorf("subscriber %d got unexpected message: %+v", i, msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive message", i)
		}
	}
}

func TestPublishSkipsFullSubscriber(t *testing.T) {
	h := New(1)
	defer h.Close()

	_, slow := h.Subscribe()
	_, fast := h.Subscribe()

	h.Publish(models.NotifyMessage{Store: "a"})
	h.Publish(models.NotifyMessage{Store: "b"})

	if got := len(slow); got != 1 {
		t.Errorf("expected slow subscriber buffer to hold 1, got %d", got)
	}
	if got := len(fast); got != 1 {
		t.Errorf("expected fast subscriber buffer to hold 1, got %d", got)
	}
	if h.Dropped() != 2 {
		t.Errorf("expected 2 dropped messages, got %d", h.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := New(4)
	id, ch := h.Subscribe()
	h.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after unsubscribe")
	}
	if h.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.SubscriberCount())
	}

	// Publishing after unsubscribe must not panic.
	h.Publish(models.NotifyMessage{Store: "x"})
}

func TestServerBridgesMessages(t *testing.T) {
	h := New(8)
	defer h.Close()
	s := NewServer(h, ":0")

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Wait until the connection registered as a subscriber.
	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Publish(models.NotifyMessage{Store: "kucoin.positions", Positions: []models.Position{{Symbol: "XBTUSDTM"}}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg models.NotifyMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Store != "kucoin.positions" || len(msg.Positions) != 1 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestServerRoutesInboundCommands(t *testing.T) {
	h := New(8)
	defer h.Close()
	s := NewServer(h, ":0")

	received := make(chan Command, 1)
	s.SetCommandHandler(func(ctx context.Context, cmd Command) {
		received <- cmd
	})

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	cmd := Command{
		Type:     CommandLoadKLines,
		Exchange: "bingx",
		Symbol:   "BTC-USDT",
		Period:   "1m",
	}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Type != CommandLoadKLines || got.Exchange != "bingx" || got.Symbol != "BTC-USDT" || got.Period != "1m" {
			t.Errorf("unexpected command: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command never reached the handler")
	}

	// A frame the decoder cannot parse is dropped without killing the
	// connection.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	action, _ := json.Marshal(map[string]string{"action": "reset", "botId": "7"})
	if err := conn.WriteJSON(Command{Type: CommandBotAction, Action: action}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	select {
	case got := <-received:
		if got.Type != CommandBotAction || len(got.Action) == 0 {
			t.Errorf("unexpected command: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command after malformed frame never reached the handler")
	}
}
