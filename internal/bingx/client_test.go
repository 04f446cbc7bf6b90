package bingx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"testing"
	"time"

	"accountflow/internal/exchange"
	"accountflow/internal/ratelimit"
)

func newTestClient(url string) *Client {
	c := NewClient(url, 87600*time.Hour, ratelimit.New("bingx", 1000, 1000))
	c.SetCredentials(exchange.Credentials{APIKey: "key", APISecret: "secret"})
	return c
}

func makeTransactions(n int, newest int64) []Transaction {
	txs := make([]Transaction, 0, n)
	for i := 0; i < n; i++ {
		txs = append(txs, Transaction{
			Symbol:     "BTC-USDT",
			IncomeType: "FUNDING_FEE",
			Income:     "0.1",
			Asset:      "USDT",
			Time:       newest - int64(i)*1000,
			TranID:     fmt.Sprintf("tran-%d", i),
		})
	}
	return txs
}

// incomeHandler serves pages out of the fixture set honouring the
// startTime/endTime window and the page limit, newest first.
func incomeHandler(t *testing.T, fixture []Transaction, calls *int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Helper()
		*calls++
		if r.Header.Get("X-BX-APIKEY") != "key" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("signature") == "" {
			t.Errorf("missing signature")
		}
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		end, _ := strconv.ParseInt(r.URL.Query().Get("endTime"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var page []Transaction
		for _, tx := range fixture {
			if tx.Time >= start && tx.Time <= end {
				page = append(page, tx)
			}
		}
		sort.Slice(page, func(i, j int) bool { return page[i].Time > page[j].Time })
		if len(page) > limit {
			page = page[:limit]
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "msg": "", "data": page})
	}
}

func TestFetchTransactionsPaginates(t *testing.T) {
	newest := time.Now().UnixMilli() - time.Hour.Milliseconds()
	fixture := makeTransactions(2500, newest)

	calls := 0
	srv := httptest.NewServer(incomeHandler(t, fixture, &calls))
	defer srv.Close()

	c := newTestClient(srv.URL)
	got := c.FetchTransactions(context.Background(), nil)

	if len(got) != 2500 {
		t.Fatalf("expected 2500 transactions, got %d", len(got))
	}
	// Pages of 1000/1000/500: the short page terminates pagination.
	if calls != 3 {
		t.Errorf("expected 3 pages, got %d calls", calls)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Time < got[i].Time {
			t.Fatalf("not sorted descending at index %d", i)
		}
	}
}

func TestFetchTransactionsIncremental(t *testing.T) {
	newest := time.Now().UnixMilli() - time.Hour.Milliseconds()
	fixture := makeTransactions(10, newest)
	existing := fixture[5:]

	var seenStart int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenStart, _ = strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		var page []Transaction
		for _, tx := range fixture[:5] {
			if tx.Time >= seenStart {
				page = append(page, tx)
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "data": page})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	got := c.FetchTransactions(context.Background(), existing)

	wantStart := existing[0].Time + 1000
	if seenStart != wantStart {
		t.Errorf("expected startTime %d (newest+1000), got %d", wantStart, seenStart)
	}
	if len(got) != 10 {
		t.Errorf("expected 10 merged transactions, got %d", len(got))
	}
}

func TestFetchTransactionsDedupsOverlap(t *testing.T) {
	newest := time.Now().UnixMilli() - time.Hour.Milliseconds()
	fixture := makeTransactions(10, newest)
	existing := fixture[4:]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Re-deliver one record the caller already holds along with the
		// genuinely new ones.
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "data": fixture[:5]})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	got := c.FetchTransactions(context.Background(), existing)

	if len(got) != 10 {
		t.Fatalf("expected 10 merged transactions with the overlap collapsed, got %d", len(got))
	}
	seen := map[string]bool{}
	for _, tx := range got {
		if seen[tx.TranID] {
			t.Fatalf("duplicate transaction %s survived the merge", tx.TranID)
		}
		seen[tx.TranID] = true
	}
}

func TestFetchTransactionsKeepsPagesOnMidFailure(t *testing.T) {
	newest := time.Now().UnixMilli() - time.Hour.Milliseconds()
	fixture := makeTransactions(1500, newest)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		page := fixture[:1000]
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "data": page})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	got := c.FetchTransactions(context.Background(), nil)
	if len(got) != 1000 {
		t.Errorf("expected first page kept after mid-pagination failure, got %d", len(got))
	}
}

func TestRequestRetriesOn429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{"code": rateLimitedCode, "msg": "busy"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "data": []Balance{{Asset: "USDT", Balance: "42"}}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	balance, err := c.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
	if balance == nil || balance.Balance != "42" {
		t.Errorf("unexpected balance: %+v", balance)
	}
}

func TestFetchBalancePicksUSDT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "data": []Balance{
			{Asset: "BTC", Balance: "1"},
			{Asset: "USDT", Balance: "100.5"},
		}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	balance, err := c.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if balance == nil || balance.Asset != "USDT" {
		t.Fatalf("expected USDT entry, got %+v", balance)
	}
}

func TestFetchBalanceNoUSDT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 0, "data": []Balance{{Asset: "BTC"}}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	balance, err := c.FetchBalance(context.Background())
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if balance != nil {
		t.Errorf("expected nil balance when USDT missing, got %+v", balance)
	}
}

func TestAPIErrorCodeIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 100001, "msg": "signature error"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.FetchPositions(context.Background()); err == nil {
		t.Fatal("expected error for non-zero api code inside 200 body")
	}
}

func TestListenKeyLifecycle(t *testing.T) {
	var extended string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			json.NewEncoder(w).Encode(listenKeyResponse{ListenKey: "lk-123"})
		case http.MethodPut:
			extended = r.URL.Query().Get("listenKey")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("{}"))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	key, err := c.GetListenKey(context.Background())
	if err != nil {
		t.Fatalf("get listen key failed: %v", err)
	}
	if key != "lk-123" {
		t.Errorf("unexpected listen key %q", key)
	}
	if err := c.ExtendListenKey(context.Background(), key); err != nil {
		t.Fatalf("extend failed: %v", err)
	}
	if extended != "lk-123" {
		t.Errorf("expected extend call to carry key, got %q", extended)
	}
}

func TestParamStringSigning(t *testing.T) {
	got := paramString([]param{{"limit", "1000"}, {"startTime", "1"}}, 99)
	want := "limit=1000&startTime=1&timestamp=99"
	if got != want {
		t.Errorf("paramString = %q, want %q", got, want)
	}
	if got := paramString(nil, 99); got != "timestamp=99" {
		t.Errorf("empty params = %q", got)
	}
}
