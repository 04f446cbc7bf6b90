package bitkua

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// actionServer decodes every request body and records it keyed by action.
type actionServer struct {
	t        *testing.T
	url      string
	mu       sync.Mutex
	requests []map[string]interface{}
	respond  func(action string) interface{}
}

func (s *actionServer) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.t.Errorf("undecodable request body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if body["username"] != "dkuser" || body["token"] != "dktoken" {
		s.t.Errorf("missing account credentials in body: %v", body)
	}

	s.mu.Lock()
	s.requests = append(s.requests, body)
	s.mu.Unlock()

	action, _ := body["action"].(string)
	json.NewEncoder(w).Encode(s.respond(action))
}

func (s *actionServer) recorded() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]interface{}, len(s.requests))
	copy(out, s.requests)
	return out
}

func okResponse(bots ...Bot) func(string) interface{} {
	return func(string) interface{} {
		return map[string]interface{}{"success": true, "data": bots}
	}
}

func newActionFixture(t *testing.T, respond func(string) interface{}) (*Client, *actionServer, func()) {
	t.Helper()
	server := &actionServer{t: t, respond: respond}
	srv := httptest.NewServer(http.HandlerFunc(server.handler))
	server.url = srv.URL
	return NewClient(srv.URL, "dkuser", "dktoken"), server, srv.Close
}

func TestFetchBots(t *testing.T) {
	c, server, cleanup := newActionFixture(t, okResponse(
		Bot{ID: "7", Symbol: "DOGE-USDT", Amount: 25, Active: "active", Exchange: "bingx", Estrategia: "infinity", Safe: "yes"},
	))
	defer cleanup()

	bots, err := c.FetchBots(context.Background())
	if err != nil {
		t.Fatalf("fetch bots failed: %v", err)
	}
	if len(bots) != 1 || bots[0].Symbol != "DOGE-USDT" || bots[0].Amount != 25 {
		t.Errorf("unexpected bots: %+v", bots)
	}

	reqs := server.recorded()
	if len(reqs) != 1 || reqs[0]["action"] != "info_bots" {
		t.Errorf("unexpected request: %+v", reqs)
	}
}

func TestUpdateStatusPayload(t *testing.T) {
	c, server, cleanup := newActionFixture(t, okResponse())
	defer cleanup()

	if err := c.UpdateStatus(context.Background(), "7", "onlysell"); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	reqs := server.recorded()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0]["action"] != "update_status" || reqs[0]["id"] != "7" || reqs[0]["status"] != "onlysell" {
		t.Errorf("unexpected payload: %+v", reqs[0])
	}
}

func TestUpdateStatusRejectsInvalidStatus(t *testing.T) {
	c, server, cleanup := newActionFixture(t, okResponse())
	defer cleanup()

	if err := c.UpdateStatus(context.Background(), "7", "paused"); err == nil {
		t.Fatal("expected error for invalid status")
	}
	if len(server.recorded()) != 0 {
		t.Error("invalid status must not reach the platform")
	}
}

func TestUpdateAmountPayload(t *testing.T) {
	c, server, cleanup := newActionFixture(t, okResponse())
	defer cleanup()

	if err := c.UpdateAmount(context.Background(), "9", 42.5); err != nil {
		t.Fatalf("update amount failed: %v", err)
	}
	reqs := server.recorded()
	if reqs[0]["action"] != "update_amount" || reqs[0]["amount"] != 42.5 {
		t.Errorf("unexpected payload: %+v", reqs[0])
	}

	if err := c.UpdateAmount(context.Background(), "9", 0); err == nil {
		t.Error("expected error for non-positive amount")
	}
}

func TestCreateBotPayload(t *testing.T) {
	c, server, cleanup := newActionFixture(t, okResponse())
	defer cleanup()

	err := c.CreateBot(context.Background(), Action{
		Name:         ActionCreateBot,
		Symbol:       "DOGE-USDT",
		Exchange:     "bingx",
		Strategy:     "infinity",
		PositionSide: "LONG",
		Amount:       10,
		Safe:         "yes",
	})
	if err != nil {
		t.Fatalf("create bot failed: %v", err)
	}

	req := server.recorded()[0]
	if req["action"] != "create_bot" || req["symbol"] != "DOGE-USDT" || req["estrategia"] != "infinity" || req["safe"] != "yes" {
		t.Errorf("unexpected payload: %+v", req)
	}

	if err := c.CreateBot(context.Background(), Action{Name: ActionCreateBot}); err == nil {
		t.Error("expected error for create without symbol and exchange")
	}
}

func TestDeleteAndResetPayloads(t *testing.T) {
	c, server, cleanup := newActionFixture(t, okResponse())
	defer cleanup()

	if err := c.DeleteBot(context.Background(), "3"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := c.ResetBot(context.Background(), "4"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	reqs := server.recorded()
	if reqs[0]["action"] != "delete_bot" || reqs[0]["id"] != "3" {
		t.Errorf("unexpected delete payload: %+v", reqs[0])
	}
	if reqs[1]["action"] != "reset_bot" || reqs[1]["id"] != "4" {
		t.Errorf("unexpected reset payload: %+v", reqs[1])
	}
}

func TestRejectedRequestSurfacesMessage(t *testing.T) {
	c, _, cleanup := newActionFixture(t, func(string) interface{} {
		return map[string]interface{}{"success": false, "message": "bot not found"}
	})
	defer cleanup()

	err := c.DeleteBot(context.Background(), "404")
	if err == nil {
		t.Fatal("expected error for success=false response")
	}
	if got := err.Error(); got != "delete_bot failed: bot not found" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestHTTPErrorIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "dkuser", "dktoken")
	if _, err := c.FetchBots(context.Background()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
