package kucoin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "accountflow/config"
	"accountflow/internal/cache"
	"accountflow/internal/exchange"
	"accountflow/internal/hub"
	"accountflow/models"
)

func testExchangeConfig(restURL string) appconfig.ExchangeConfig {
	return appconfig.ExchangeConfig{
		Enabled:         true,
		APIKey:          "key",
		APISecret:       "secret",
		Passphrase:      "phrase",
		RestURL:         restURL,
		RefreshInterval: time.Hour,
		Lookback:        720 * time.Hour,
		RateLimit:       appconfig.RateLimitConfig{RequestsPerSecond: 1000, BurstSize: 1000},
	}
}

// fullRestServer mocks every endpoint one refresh iteration touches, plus the
// bullet grant pointing at wsURL.
func fullRestServer(t *testing.T, ledgers []Ledger, wsURL string, failPositions bool) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/transaction-history":
			ledgerHandler(t, ledgers, new(int))(w, r)
		case "/api/v1/fills":
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": fillPage{
				CurrentPage: 1, TotalPage: 1,
				Items: []Fill{{TradeID: "t1", OrderID: "o1", Symbol: "XBTUSDTM", Side: "buy", Price: "50000", Size: 1, CreatedAt: 1000}},
			}})
		case "/api/v1/account-overview":
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": Account{
				Currency: "USDT", MarginBalance: 1000, AccountEquity: 1000,
			}})
		case "/api/v1/positions":
			if failPositions {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": []Position{
				{Symbol: "XBTUSDTM", CurrentQty: 1, IsOpen: true},
			}})
		case "/api/v1/contracts/active":
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": []Contract{
				{Symbol: "XBTUSDTM", Status: "Open"},
			}})
		case "/api/v1/kline/query":
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": []Candle{
				{1000, 1, 3, 1, 2, 10},
				{2000, 2, 4, 2, 3, 20},
				{3000, 3, 5, 3, 4, 30},
			}})
		case "/api/v1/bullet-private":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"code": successCode,
				"data": map[string]interface{}{
					"token": "tok-test",
					"instanceServers": []map[string]interface{}{
						{"endpoint": wsURL, "protocol": "websocket", "pingInterval": 18000},
					},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// collectStores drains hub messages until every wanted store was seen once.
func collectStores(t *testing.T, ch <-chan models.NotifyMessage, wanted ...string) map[string]models.NotifyMessage {
	t.Helper()
	got := make(map[string]models.NotifyMessage)
	deadline := time.After(5 * time.Second)
	for len(got) < len(wanted) {
		select {
		case msg := <-ch:
			for _, w := range wanted {
				if msg.Store == w {
					got[msg.Store] = msg
				}
			}
		case <-deadline:
			t.Fatalf("timed out, got stores %v", got)
		}
	}
	return got
}

func TestRefreshPublishesAllCategories(t *testing.T) {
	newest := time.Now().UnixMilli() - time.Hour.Milliseconds()
	srv := fullRestServer(t, makeLedgers(250, newest), "", false)
	defer srv.Close()

	h := hub.New(64)
	defer h.Close()
	_, ch := h.Subscribe()

	cacheDir := t.TempDir()
	svc := NewService(testExchangeConfig(srv.URL), h, cacheDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer svc.Stop()

	got := collectStores(t, ch,
		"kucoin.transactions", "kucoin.trades", "kucoin.balance", "kucoin.positions", "kucoin.contracts")

	if len(got["kucoin.transactions"].Transactions) != 250 {
		t.Errorf("expected 250 transactions in notification, got %d", len(got["kucoin.transactions"].Transactions))
	}
	txs := got["kucoin.transactions"].Transactions
	for i := 1; i < len(txs); i++ {
		if txs[i-1].Time < txs[i].Time {
			t.Fatalf("transactions not sorted descending at %d", i)
		}
	}
	if got["kucoin.balance"].Balance == nil || got["kucoin.balance"].Balance.Balance != 1000 {
		t.Errorf("unexpected balance: %+v", got["kucoin.balance"].Balance)
	}
	if len(got["kucoin.positions"].Positions) != 1 {
		t.Errorf("expected 1 position, got %d", len(got["kucoin.positions"].Positions))
	}

	// History must have been persisted under the credential partition.
	entries, err := os.ReadDir(cacheDir)
	if err != nil || len(entries) == 0 {
		t.Errorf("expected cache partition directory, err=%v entries=%d", err, len(entries))
	}
}

func TestRefreshToleratesPartialFailure(t *testing.T) {
	newest := time.Now().UnixMilli() - time.Hour.Milliseconds()
	srv := fullRestServer(t, makeLedgers(5, newest), "", true)
	defer srv.Close()

	h := hub.New(64)
	defer h.Close()
	_, ch := h.Subscribe()

	svc := NewService(testExchangeConfig(srv.URL), h, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer svc.Stop()

	got := collectStores(t, ch,
		"kucoin.transactions", "kucoin.trades", "kucoin.balance", "kucoin.positions", "kucoin.contracts")

	// Positions failed but the notification still fires with what is held.
	if len(got["kucoin.positions"].Positions) != 0 {
		t.Errorf("expected empty positions after failed fetch, got %d", len(got["kucoin.positions"].Positions))
	}
	if len(got["kucoin.transactions"].Transactions) != 5 {
		t.Errorf("expected transactions unaffected by positions failure, got %d", len(got["kucoin.transactions"].Transactions))
	}
}

func TestStartWithoutCredentials(t *testing.T) {
	h := hub.New(4)
	defer h.Close()
	cfg := testExchangeConfig("http://localhost")
	cfg.APIKey = ""
	cfg.APISecret = ""
	svc := NewService(cfg, h, t.TempDir())
	if err := svc.Start(context.Background()); err == nil {
		t.Fatal("expected error starting without credentials")
	}
}

func TestSetCredentialsClearsHistory(t *testing.T) {
	h := hub.New(4)
	defer h.Close()
	svc := NewService(testExchangeConfig("http://localhost"), h, t.TempDir())

	svc.mu.Lock()
	svc.original.transactions = []Ledger{{Offset: 1}}
	svc.data.transactions = []models.Transaction{{TranID: "1"}}
	svc.mu.Unlock()

	if err := svc.SetCredentials(exchange.Credentials{APIKey: "other", APISecret: "secret", Passphrase: "p"}); err != nil {
		t.Fatalf("set credentials failed: %v", err)
	}

	transactions, _, _, _, _ := svc.Snapshot()
	if len(transactions) != 0 {
		t.Error("expected history cleared after credential swap")
	}
}

func TestSetCredentialsDuringRefreshDiscardsResults(t *testing.T) {
	newest := time.Now().UnixMilli() - time.Hour.Milliseconds()
	fixture := makeLedgers(3, newest)

	fetching := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/transaction-history":
			once.Do(func() { close(fetching) })
			<-release
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": ledgerPage{DataList: fixture}})
		case "/api/v1/fills":
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": fillPage{CurrentPage: 1, TotalPage: 1}})
		case "/api/v1/account-overview":
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": Account{}})
		default:
			json.NewEncoder(w).Encode(map[string]interface{}{"code": successCode, "data": []interface{}{}})
		}
	}))
	defer srv.Close()

	h := hub.New(64)
	defer h.Close()

	svc := NewService(testExchangeConfig(srv.URL), h, t.TempDir())

	done := make(chan struct{})
	go func() {
		svc.loadData(context.Background())
		close(done)
	}()

	// Swap accounts while the first fetch is stalled mid-iteration.
	<-fetching
	if err := svc.SetCredentials(exchange.Credentials{APIKey: "other", APISecret: "secret", Passphrase: "p"}); err != nil {
		t.Fatalf("set credentials failed: %v", err)
	}
	close(release)
	<-done

	transactions, _, _, _, _ := svc.Snapshot()
	if len(transactions) != 0 {
		t.Errorf("expected stale iteration discarded, got %d transactions in snapshot", len(transactions))
	}
	if cached := cache.Read[Ledger](svc.store, transactionsCacheFile); cached != nil {
		t.Errorf("expected nothing persisted under the new credential partition, got %d records", len(cached.Data))
	}
}

func TestLoadSymbolKLinesSeedsAndSubscribes(t *testing.T) {
	ws := &wsTestServer{t: t}
	wsSrv := httptest.NewServer(http.HandlerFunc(ws.handler))
	defer wsSrv.Close()
	wsURL := "ws" + strings.TrimPrefix(wsSrv.URL, "http")

	srv := fullRestServer(t, nil, wsURL, false)
	defer srv.Close()

	h := hub.New(64)
	defer h.Close()
	_, ch := h.Subscribe()

	svc := NewService(testExchangeConfig(srv.URL), h, t.TempDir())
	defer svc.ws.Stop()

	if err := svc.LoadSymbolKLines(context.Background(), "XBTUSDTM", models.Period1m); err != nil {
		t.Fatalf("load klines failed: %v", err)
	}

	got := collectStores(t, ch, "kucoin.klines")
	msg := got["kucoin.klines"]
	if msg.Symbol != "XBTUSDTM" || msg.Period != models.Period1m || len(msg.KLines) != 3 {
		t.Errorf("unexpected kline notification: %+v", msg)
	}
	if msg.KLines[0].Timestamp != 3000 {
		t.Errorf("expected newest-first seed, got %+v", msg.KLines)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		frames := ws.receivedFrames()
		if len(frames) > 0 {
			if frames[0].Type != "subscribe" || frames[0].Topic != "/contractMarket/candle:XBTUSDTM_1min" {
				t.Errorf("unexpected subscribe frame: %+v", frames[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscribe frame never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessWSEventKlineMerges(t *testing.T) {
	h := hub.New(64)
	defer h.Close()
	_, ch := h.Subscribe()

	svc := NewService(testExchangeConfig("http://localhost"), h, t.TempDir())

	svc.mu.Lock()
	svc.data.klines["XBTUSDTM"] = &klineSeries{
		period: models.Period1m,
		data: []models.KLine{
			{Timestamp: 2000000, Close: 3},
			{Timestamp: 1000000, Close: 2},
		},
	}
	svc.mu.Unlock()

	// Same head timestamp: overwrite in place.
	svc.handleMessage([]byte(`{"type":"message","topic":"/contractMarket/candle:XBTUSDTM_1min","subject":"candle.stick","data":{"symbol":"XBTUSDTM","candles":["2000","2","9","10","1","99"],"time":1}}`))
	if series := svc.KLines("XBTUSDTM"); len(series) != 2 || series[0].Close != 9 {
		t.Fatalf("expected head overwritten, got %+v", series)
	}

	// New timestamp: prepend.
	svc.handleMessage([]byte(`{"type":"message","topic":"/contractMarket/candle:XBTUSDTM_1min","subject":"candle.stick","data":{"symbol":"XBTUSDTM","candles":["3000","9","11","12","8","5"],"time":2}}`))
	if series := svc.KLines("XBTUSDTM"); len(series) != 3 || series[0].Timestamp != 3000000 {
		t.Fatalf("expected new head prepended, got %+v", series)
	}

	got := collectStores(t, ch, "kucoin.klines")
	if got["kucoin.klines"].Symbol != "XBTUSDTM" {
		t.Errorf("unexpected notification: %+v", got["kucoin.klines"])
	}
}

func TestHandleMessageIgnoresUnknownTopics(t *testing.T) {
	h := hub.New(4)
	defer h.Close()
	svc := NewService(testExchangeConfig("http://localhost"), h, t.TempDir())

	// Must not panic or publish.
	svc.handleMessage([]byte(`{"type":"message","topic":"/contractMarket/ticker:XBTUSDTM","subject":"ticker"}`))
	svc.handleMessage([]byte(`{"type":"message","topic":"/contractMarket/candle:ETHUSDTM_1min","subject":"candle.stick","data":{"symbol":"ETHUSDTM","candles":["1000","1","2","3","0.5","10"]}}`))
	svc.handleMessage([]byte(`not json at all`))

	if h.Dropped() != 0 {
		t.Error("unexpected publishes for unknown topics")
	}
}
