package kucoin

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
	// ledgerPageLimit is the maxCount the transaction-history endpoint accepts.
	ledgerPageLimit = 100

	// fillPageSize is the page size for the fills endpoint.
	fillPageSize = 100
)

// Client is the authenticated KuCoin futures REST client. Requests are signed
// with base64 HMAC-SHA256 over timestamp+method+endpoint+body and carry the
// KC-API-* v2 header set with the encrypted passphrase.
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

// sign returns the request signature and the encrypted passphrase, both
// base64 HMAC-SHA256 under the API secret.
func (c *Client) sign(timestamp, method, endpoint, body string) (string, string) {
	c.mu.RLock()
	secret := c.creds.APISecret
	passphrase := c.creds.Passphrase
	c.mu.RUnlock()

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + endpoint + body))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	mac = hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(passphrase))
	encrypted := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return signature, encrypted
}

// request performs one signed call and unwraps the envelope. A 429 is retried
// once after a one second pause.
func (c *Client) request(ctx context.Context, method, path string, query url.Values) (json.RawMessage, error) {
	return c.doRequest(ctx, method, path, query, true)
}

func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, allowRetry bool) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature, passphrase := c.sign(timestamp, method, endpoint, "")

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.mu.RLock()
	req.Header.Set("KC-API-KEY", c.creds.APIKey)
	c.mu.RUnlock()
	req.Header.Set("KC-API-SIGN", signature)
	req.Header.Set("KC-API-TIMESTAMP", timestamp)
	req.Header.Set("KC-API-PASSPHRASE", passphrase)
	req.Header.Set("KC-API-KEY-VERSION", "2")
	req.Header.Set("Content-Type", "application/json")

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
		c.log.WithComponent("kucoin_rest").WithField("path", path).Warn("rate limited, retrying after 1s")
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.doRequest(ctx, method, path, query, false)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s %s", resp.StatusCode, method, path)
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

// FetchTransactions pages through the account ledger using the offset cursor,
// newest first, bounded by the incremental time window. A failure
// mid-pagination keeps the pages already gathered.
func (c *Client) FetchTransactions(ctx context.Context, existing []Ledger) []Ledger {
	log := c.log.WithComponent("kucoin_rest").WithFields(logger.Fields{"operation": "FetchTransactions"})

	var fetched []Ledger
	newest := exchange.NewestTime(existing, func(l Ledger) int64 { return l.Time })

	endAt := time.Now().UnixMilli()
	startAt := time.Now().Add(-c.lookback).UnixMilli()
	if newest > 0 {
		startAt = newest + 1000
	}

	var offset int64
	page := 1
	for {
		query := url.Values{}
		query.Set("startAt", strconv.FormatInt(startAt, 10))
		query.Set("endAt", strconv.FormatInt(endAt, 10))
		query.Set("maxCount", strconv.Itoa(ledgerPageLimit))
		if offset > 0 {
			query.Set("offset", strconv.FormatInt(offset, 10))
		}

		log.WithFields(logger.Fields{"page": page, "offset": offset, "total": len(fetched)}).Debug("fetching ledger page")

		data, err := c.request(ctx, http.MethodGet, "/api/v1/transaction-history", query)
		if err != nil {
			log.WithError(err).Warn("pagination aborted, keeping fetched pages")
			break
		}

		var pageData ledgerPage
		if err := json.Unmarshal(data, &pageData); err != nil {
			log.WithError(err).Warn("failed to decode ledger page")
			break
		}
		if len(pageData.DataList) == 0 {
			break
		}

		fetched = append(fetched, pageData.DataList...)
		offset = pageData.DataList[len(pageData.DataList)-1].Offset
		page++

		if !pageData.HasMore {
			break
		}
	}

	// The offset cursor doubles as the ledger record identity.
	all := exchange.MergeDesc(fetched, existing,
		func(l Ledger) string { return strconv.FormatInt(l.Offset, 10) },
		func(l Ledger) int64 { return l.Time })
	log.WithField("total", len(all)).Info("ledger history fetched")
	return all
}

// FetchTrades pages through the fill history, page by page, bounded by the
// incremental time window.
func (c *Client) FetchTrades(ctx context.Context, existing []Fill) []Fill {
	log := c.log.WithComponent("kucoin_rest").WithFields(logger.Fields{"operation": "FetchTrades"})

	var fetched []Fill
	newest := exchange.NewestTime(existing, func(f Fill) int64 { return f.CreatedAt })

	endAt := time.Now().UnixMilli()
	startAt := time.Now().Add(-c.lookback).UnixMilli()
	if newest > 0 {
		startAt = newest
	}

	currentPage := 1
	for {
		query := url.Values{}
		query.Set("startAt", strconv.FormatInt(startAt, 10))
		query.Set("endAt", strconv.FormatInt(endAt, 10))
		query.Set("pageSize", strconv.Itoa(fillPageSize))
		query.Set("currentPage", strconv.Itoa(currentPage))

		log.WithFields(logger.Fields{"page": currentPage, "total": len(fetched)}).Debug("fetching fill page")

		data, err := c.request(ctx, http.MethodGet, "/api/v1/fills", query)
		if err != nil {
			log.WithError(err).Warn("pagination aborted, keeping fetched pages")
			break
		}

		var pageData fillPage
		if err := json.Unmarshal(data, &pageData); err != nil {
			log.WithError(err).Warn("failed to decode fill page")
			break
		}
		if len(pageData.Items) == 0 {
			break
		}

		fetched = append(fetched, pageData.Items...)
		if pageData.TotalPage <= currentPage {
			break
		}
		currentPage++
	}

	all := exchange.MergeDesc(fetched, existing,
		func(f Fill) string { return f.TradeID },
		func(f Fill) int64 { return f.CreatedAt })
	log.WithField("total", len(all)).Info("fill history fetched")
	return all
}

// FetchBalance returns the USDT account overview.
func (c *Client) FetchBalance(ctx context.Context) (*Account, error) {
	query := url.Values{}
	query.Set("currency", "USDT")
	data, err := c.request(ctx, http.MethodGet, "/api/v1/account-overview", query)
	if err != nil {
		return nil, err
	}
	var account Account
	if err := json.Unmarshal(data, &account); err != nil {
		return nil, fmt.Errorf("failed to decode account overview: %w", err)
	}
	return &account, nil
}

// FetchPositions returns all positions, open and recently closed.
func (c *Client) FetchPositions(ctx context.Context) ([]Position, error) {
	data, err := c.request(ctx, http.MethodGet, "/api/v1/positions", nil)
	if err != nil {
		return nil, err
	}
	var positions []Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return positions, nil
}

// FetchContracts returns the active contract catalog.
func (c *Client) FetchContracts(ctx context.Context) ([]Contract, error) {
	data, err := c.request(ctx, http.MethodGet, "/api/v1/contracts/active", nil)
	if err != nil {
		return nil, err
	}
	var contracts []Contract
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("failed to decode contracts: %w", err)
	}
	return contracts, nil
}

// FetchKLines returns up to limit candles ending now for symbol and the
// granularity in minutes.
func (c *Client) FetchKLines(ctx context.Context, symbol string, granularityMin int, limit int) ([]Candle, error) {
	to := time.Now().UnixMilli()
	from := to - int64(granularityMin)*60_000*int64(limit)

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("granularity", strconv.Itoa(granularityMin))
	query.Set("from", strconv.FormatInt(from, 10))
	query.Set("to", strconv.FormatInt(to, 10))

	data, err := c.request(ctx, http.MethodGet, "/api/v1/kline/query", query)
	if err != nil {
		return nil, err
	}
	var candles []Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("failed to decode candles: %w", err)
	}
	return candles, nil
}

// GetBulletToken issues a private stream grant: connect token, endpoint and
// keepalive interval.
func (c *Client) GetBulletToken(ctx context.Context) (*bulletToken, error) {
	data, err := c.request(ctx, http.MethodPost, "/api/v1/bullet-private", nil)
	if err != nil {
		return nil, err
	}
	var resp bulletResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode bullet response: %w", err)
	}
	if len(resp.InstanceServers) == 0 {
		return nil, fmt.Errorf("bullet response carries no instance servers")
	}
	server := resp.InstanceServers[0]
	return &bulletToken{
		Token:        resp.Token,
		Endpoint:     server.Endpoint,
		PingInterval: server.PingInterval,
	}, nil
}
