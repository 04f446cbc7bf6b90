package bingx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"accountflow/internal/exchange"
	"accountflow/internal/ratelimit"
	"accountflow/logger"
)

const (
	pageLimit = 1000

	// rateLimitedCode is returned inside a 429 body when the request may be
	// retried after a short pause.
	rateLimitedCode = 100410
)

type param struct {
	key   string
	value string
}

// Client is the authenticated BingX swap REST client. All calls share one
// rate limiter; signing follows the exchange's param-string HMAC scheme.
type Client struct {
	mu         sync.RWMutex
	creds      exchange.Credentials
	baseURL    string
	lookback   time.Duration
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *logger.Log
}

// NewClient creates a REST client for the given base URL. lookback bounds the
// first transaction/trade fetch when no history exists yet.
func NewClient(baseURL string, lookback time.Duration, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL:    baseURL,
		lookback:   lookback,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		log:        logger.GetLogger(),
	}
}

// SetCredentials swaps the API key pair used for signing.
func (c *Client) SetCredentials(creds exchange.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

// Credentials returns the current credential set.
func (c *Client) Credentials() exchange.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

// paramString builds the canonical string that gets signed: key=value pairs
// joined by & with the timestamp appended last. Values are not URL-encoded
// here; encoding happens only in the request URL.
func paramString(params []param, timestamp int64) string {
	s := ""
	for _, p := range params {
		s += p.key + "=" + p.value + "&"
	}
	return s + "timestamp=" + strconv.FormatInt(timestamp, 10)
}

func encodedParams(params []param, timestamp int64) string {
	s := ""
	for _, p := range params {
		s += p.key + "=" + url.QueryEscape(p.value) + "&"
	}
	return s + "timestamp=" + strconv.FormatInt(timestamp, 10)
}

func (c *Client) sign(payload string) string {
	c.mu.RLock()
	secret := c.creds.APISecret
	c.mu.RUnlock()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// request performs one signed call. GET responses are unwrapped from the
// {code,msg,data} envelope; POST and PUT return the raw body. A 429 carrying
// the retryable code is retried once after a one second pause.
func (c *Client) request(ctx context.Context, method, path string, params []param) (json.RawMessage, error) {
	return c.doRequest(ctx, method, path, params, true)
}

func (c *Client) doRequest(ctx context.Context, method, path string, params []param, allowRetry bool) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timestamp := time.Now().UnixMilli()
	sig := c.sign(paramString(params, timestamp))
	reqURL := c.baseURL + path + "?" + encodedParams(params, timestamp) + "&signature=" + sig

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.mu.RLock()
	req.Header.Set("X-BX-APIKEY", c.creds.APIKey)
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		var envelope apiResponse
		json.Unmarshal(body, &envelope)
		c.limiter.ReportExceeded(path)
		if allowRetry && envelope.Code == rateLimitedCode {
			c.log.WithComponent("bingx_rest").WithField("path", path).Warn("rate limited, retrying after 1s")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return c.doRequest(ctx, method, path, params, false)
		}
		return nil, fmt.Errorf("rate limited: %s %s", method, path)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s %s", resp.StatusCode, method, path)
	}

	if method != http.MethodGet {
		return body, nil
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("api error %d: %s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

// FetchTransactions pages backward through the income history, seeded with
// the current in-memory records so only the window since the newest known
// record is requested. A failure mid-pagination keeps the pages already
// gathered. Result is sorted descending by time.
func (c *Client) FetchTransactions(ctx context.Context, existing []Transaction) []Transaction {
	log := c.log.WithComponent("bingx_rest").WithFields(logger.Fields{"operation": "FetchTransactions"})

	var fetched []Transaction
	newest := exchange.NewestTime(existing, func(tx Transaction) int64 { return tx.Time })

	endTime := time.Now().UnixMilli()
	startTime := time.Now().Add(-c.lookback).UnixMilli()
	if newest > 0 {
		startTime = newest + 1000
	}

	page := 1
	for {
		log.WithFields(logger.Fields{"page": page, "start": startTime, "end": endTime, "total": len(fetched)}).Debug("fetching income page")

		data, err := c.request(ctx, http.MethodGet, "/openApi/swap/v2/user/income", []param{
			{"limit", strconv.Itoa(pageLimit)},
			{"startTime", strconv.FormatInt(startTime, 10)},
			{"endTime", strconv.FormatInt(endTime, 10)},
		})
		if err != nil {
			log.WithError(err).Warn("pagination aborted, keeping fetched pages")
			break
		}

		var txs []Transaction
		if err := json.Unmarshal(data, &txs); err != nil {
			log.WithError(err).Warn("failed to decode income page")
			break
		}
		if len(txs) == 0 {
			break
		}

		fetched = append(fetched, txs...)

		oldest := txs[0].Time
		for _, tx := range txs {
			if tx.Time < oldest {
				oldest = tx.Time
			}
		}
		endTime = oldest - 1
		page++

		if len(txs) < pageLimit {
			break
		}
	}

	all := exchange.MergeDesc(fetched, existing,
		func(tx Transaction) string { return tx.TranID + "/" + tx.IncomeType },
		func(tx Transaction) int64 { return tx.Time })
	log.WithField("total", len(all)).Info("income history fetched")
	return all
}

// FetchTrades pages backward through the fill history using the same
// contract as FetchTransactions, keyed on fill time.
func (c *Client) FetchTrades(ctx context.Context, existing []Trade) []Trade {
	log := c.log.WithComponent("bingx_rest").WithFields(logger.Fields{"operation": "FetchTrades"})

	var fetched []Trade
	newest := exchange.NewestTime(existing, func(tr Trade) int64 { return tr.FilledTime })

	endTime := time.Now().UnixMilli()
	startTime := time.Now().Add(-c.lookback).UnixMilli()
	if newest > 0 {
		startTime = newest
	}

	page := 1
	for {
		log.WithFields(logger.Fields{"page": page, "start": startTime, "end": endTime, "total": len(fetched)}).Debug("fetching fill page")

		data, err := c.request(ctx, http.MethodGet, "/openApi/swap/v2/trade/fillHistory", []param{
			{"pageSize", strconv.Itoa(pageLimit)},
			{"startTs", strconv.FormatInt(startTime, 10)},
			{"endTs", strconv.FormatInt(endTime, 10)},
		})
		if err != nil {
			log.WithError(err).Warn("pagination aborted, keeping fetched pages")
			break
		}

		var fills fillHistoryResponse
		if err := json.Unmarshal(data, &fills); err != nil {
			log.WithError(err).Warn("failed to decode fill page")
			break
		}
		if len(fills.FillHistoryOrders) == 0 {
			break
		}

		fetched = append(fetched, fills.FillHistoryOrders...)

		oldest := fills.FillHistoryOrders[0].FilledTime
		for _, tr := range fills.FillHistoryOrders {
			if tr.FilledTime < oldest {
				oldest = tr.FilledTime
			}
		}
		endTime = oldest - 1
		page++

		if len(fills.FillHistoryOrders) < pageLimit {
			break
		}
	}

	all := exchange.MergeDesc(fetched, existing,
		func(tr Trade) string { return tr.TradeID },
		func(tr Trade) int64 { return tr.FilledTime })
	log.WithField("total", len(all)).Info("fill history fetched")
	return all
}

// FetchBalance returns the USDT entry of the balance array, or nil when the
// exchange reports no USDT-margin account.
func (c *Client) FetchBalance(ctx context.Context) (*Balance, error) {
	data, err := c.request(ctx, http.MethodGet, "/openApi/swap/v3/user/balance", nil)
	if err != nil {
		return nil, err
	}
	var balances []Balance
	if err := json.Unmarshal(data, &balances); err != nil {
		return nil, fmt.Errorf("failed to decode balance: %w", err)
	}
	for i := range balances {
		if balances[i].Asset == "USDT" {
			return &balances[i], nil
		}
	}
	return nil, nil
}

// FetchPositions returns all open positions.
func (c *Client) FetchPositions(ctx context.Context) ([]Position, error) {
	data, err := c.request(ctx, http.MethodGet, "/openApi/swap/v2/user/positions", nil)
	if err != nil {
		return nil, err
	}
	var positions []Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return positions, nil
}

// FetchContracts returns the perpetual contract catalog.
func (c *Client) FetchContracts(ctx context.Context) ([]Contract, error) {
	data, err := c.request(ctx, http.MethodGet, "/openApi/swap/v2/quote/contracts", nil)
	if err != nil {
		return nil, err
	}
	var contracts []Contract
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("failed to decode contracts: %w", err)
	}
	return contracts, nil
}

// FetchKLines returns up to 1000 most recent candles for symbol and period.
func (c *Client) FetchKLines(ctx context.Context, symbol, period string) ([]KLine, error) {
	data, err := c.request(ctx, http.MethodGet, "/openApi/swap/v3/quote/klines", []param{
		{"symbol", symbol},
		{"interval", period},
		{"limit", strconv.Itoa(pageLimit)},
	})
	if err != nil {
		return nil, err
	}
	var klines []KLine
	if err := json.Unmarshal(data, &klines); err != nil {
		return nil, fmt.Errorf("failed to decode klines: %w", err)
	}
	return klines, nil
}

// GetListenKey issues a fresh private-stream listen key.
func (c *Client) GetListenKey(ctx context.Context) (string, error) {
	body, err := c.request(ctx, http.MethodPost, "/openApi/user/auth/userDataStream", nil)
	if err != nil {
		return "", err
	}
	var resp listenKeyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to decode listen key: %w", err)
	}
	if resp.ListenKey == "" {
		return "", fmt.Errorf("empty listen key in response")
	}
	return resp.ListenKey, nil
}

// ExtendListenKey renews an existing listen key's validity window.
func (c *Client) ExtendListenKey(ctx context.Context, listenKey string) error {
	_, err := c.request(ctx, http.MethodPut, "/openApi/user/auth/userDataStream", []param{
		{"listenKey", listenKey},
	})
	return err
}
