package bitget

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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
	productType = "USDT-FUTURES"

	// billPageLimit is the maximum page size the bill endpoint accepts.
	billPageLimit = 100
)

// Client is the authenticated Bitget v2 mix REST client. Requests are signed
// with base64 HMAC-SHA256 over timestamp+method+path+query+body and carry the
// ACCESS-* header set.
type Client struct {
	mu         sync.RWMutex
	creds      exchange.Credentials
	baseURL    string
	lookback   time.Duration
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	log        *logger.Log
}

func NewClient(baseURL string, lookback time.Duration, limiter *ratelimit.Limiter) *Client {
	return &Client{
		baseURL:    baseURL,
		lookback:   lookback,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		log:        logger.GetLogger(),
	}
}

func (c *Client) SetCredentials(creds exchange.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
}

func (c *Client) Credentials() exchange.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds
}

func (c *Client) sign(timestamp, method, pathWithQuery, body string) string {
	c.mu.RLock()
	secret := c.creds.APISecret
	c.mu.RUnlock()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + pathWithQuery + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// request performs one signed GET call and unwraps the envelope. A 429 is
// retried once after a one second pause.
func (c *Client) request(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.doRequest(ctx, path, query, true)
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values, allowRetry bool) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pathWithQuery := path
	if len(query) > 0 {
		pathWithQuery += "?" + query.Encode()
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sig := c.sign(timestamp, http.MethodGet, pathWithQuery, "")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathWithQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.mu.RLock()
	req.Header.Set("ACCESS-KEY", c.creds.APIKey)
	req.Header.Set("ACCESS-PASSPHRASE", c.creds.Passphrase)
	c.mu.RUnlock()
	req.Header.Set("ACCESS-SIGN", sig)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("locale", "en-US")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests && allowRetry {
		c.limiter.ReportExceeded(path)
		c.log.WithComponent("bitget_rest").WithField("path", path).Warn("rate limited, retrying after 1s")
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.doRequest(ctx, path, query, false)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: GET %s", resp.StatusCode, path)
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Code != successCode {
		return nil, fmt.Errorf("api error %s: %s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

func billTime(b Bill) int64 {
	t, _ := strconv.ParseInt(b.CTime, 10, 64)
	return t
}

func fillTime(f Fill) int64 {
	t, _ := strconv.ParseInt(f.CTime, 10, 64)
	return t
}

// FetchTransactions pages through the account bill using the idLessThan
// cursor, newest first, bounded by the incremental time window. A failure
// mid-pagination keeps the pages already gathered.
func (c *Client) FetchTransactions(ctx context.Context, existing []Bill) []Bill {
	log := c.log.WithComponent("bitget_rest").WithFields(logger.Fields{"operation": "FetchTransactions"})

	var fetched []Bill
	newest := exchange.NewestTime(existing, billTime)

	endTime := time.Now().UnixMilli()
	startTime := time.Now().Add(-c.lookback).UnixMilli()
	if newest > 0 {
		startTime = newest + 1000
	}

	cursor := ""
	page := 1
	for {
		query := url.Values{}
		query.Set("productType", productType)
		query.Set("startTime", strconv.FormatInt(startTime, 10))
		query.Set("endTime", strconv.FormatInt(endTime, 10))
		query.Set("limit", strconv.Itoa(billPageLimit))
		if cursor != "" {
			query.Set("idLessThan", cursor)
		}

		log.WithFields(logger.Fields{"page": page, "cursor": cursor, "total": len(fetched)}).Debug("fetching bill page")

		data, err := c.request(ctx, "/api/v2/mix/account/bill", query)
		if err != nil {
			log.WithError(err).Warn("pagination aborted, keeping fetched pages")
			break
		}

		var pageData billPage
		if err := json.Unmarshal(data, &pageData); err != nil {
			log.WithError(err).Warn("failed to decode bill page")
			break
		}
		if len(pageData.Bills) == 0 {
			break
		}

		fetched = append(fetched, pageData.Bills...)
		cursor = pageData.EndID
		page++

		if len(pageData.Bills) < billPageLimit || cursor == "" {
			break
		}
	}

	all := exchange.MergeDesc(fetched, existing, func(b Bill) string { return b.BillID }, billTime)
	log.WithField("total", len(all)).Info("bill history fetched")
	return all
}

// FetchTrades pages through the fill history with the same cursor contract.
func (c *Client) FetchTrades(ctx context.Context, existing []Fill) []Fill {
	log := c.log.WithComponent("bitget_rest").WithFields(logger.Fields{"operation": "FetchTrades"})

	var fetched []Fill
	newest := exchange.NewestTime(existing, fillTime)

	endTime := time.Now().UnixMilli()
	startTime := time.Now().Add(-c.lookback).UnixMilli()
	if newest > 0 {
		startTime = newest
	}

	cursor := ""
	page := 1
	for {
		query := url.Values{}
		query.Set("productType", productType)
		query.Set("startTime", strconv.FormatInt(startTime, 10))
		query.Set("endTime", strconv.FormatInt(endTime, 10))
		query.Set("limit", strconv.Itoa(billPageLimit))
		if cursor != "" {
			query.Set("idLessThan", cursor)
		}

		log.WithFields(logger.Fields{"page": page, "cursor": cursor, "total": len(fetched)}).Debug("fetching fill page")

		data, err := c.request(ctx, "/api/v2/mix/order/fill-history", query)
		if err != nil {
			log.WithError(err).Warn("pagination aborted, keeping fetched pages")
			break
		}

		var pageData fillPage
		if err := json.Unmarshal(data, &pageData); err != nil {
			log.WithError(err).Warn("failed to decode fill page")
			break
		}
		if len(pageData.FillList) == 0 {
			break
		}

		fetched = append(fetched, pageData.FillList...)
		cursor = pageData.EndID
		page++

		if len(pageData.FillList) < billPageLimit || cursor == "" {
			break
		}
	}

	all := exchange.MergeDesc(fetched, existing, func(f Fill) string { return f.TradeID }, fillTime)
	log.WithField("total", len(all)).Info("fill history fetched")
	return all
}

// FetchBalance returns the USDT-margin account, or nil when absent.
func (c *Client) FetchBalance(ctx context.Context) (*Account, error) {
	query := url.Values{}
	query.Set("productType", productType)
	data, err := c.request(ctx, "/api/v2/mix/account/accounts", query)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	for i := range accounts {
		if accounts[i].MarginCoin == "USDT" {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// FetchPositions returns all open USDT-FUTURES positions.
func (c *Client) FetchPositions(ctx context.Context) ([]Position, error) {
	query := url.Values{}
	query.Set("productType", productType)
	query.Set("marginCoin", "USDT")
	data, err := c.request(ctx, "/api/v2/mix/position/all-position", query)
	if err != nil {
		return nil, err
	}
	var positions []Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return positions, nil
}

// FetchContracts returns the USDT-FUTURES contract catalog.
func (c *Client) FetchContracts(ctx context.Context) ([]Contract, error) {
	query := url.Values{}
	query.Set("productType", productType)
	data, err := c.request(ctx, "/api/v2/mix/market/contracts", query)
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
func (c *Client) FetchKLines(ctx context.Context, symbol, granularity string) ([]Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("productType", productType)
	query.Set("granularity", granularity)
	query.Set("limit", "1000")
	data, err := c.request(ctx, "/api/v2/mix/market/candles", query)
	if err != nil {
		return nil, err
	}
	var candles []Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("failed to decode candles: %w", err)
	}
	return candles, nil
}
