package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	appconfig "accountflow/config"
	"accountflow/internal/cache"
	"accountflow/internal/exchange"
	"accountflow/internal/hub"
	"accountflow/internal/ratelimit"
	"accountflow/logger"
	"accountflow/models"
)

const (
	transactionsCacheFile = "kucoin.transactions.json"
	tradesCacheFile       = "kucoin.trades.json"

	candleTopicPrefix = "/contractMarket/candle:"
)

func transactionKey(l Ledger) string { return strconv.FormatInt(l.Offset, 10) }
func tradeKey(f Fill) string         { return f.OrderID + "|" + f.TradeID }

func candleTopic(symbol string, period models.Period) string {
	return candleTopicPrefix + symbol + "_" + topicType(period)
}

type klineSeries struct {
	period models.Period
	data   []models.KLine
}

// Service orchestrates the KuCoin account sync: periodic REST refresh,
// disk-backed incremental history, live candle merge and notification fan-out.
type Service struct {
	cfg   appconfig.ExchangeConfig
	hub   *hub.Hub
	store *cache.Store
	rest  *Client
	ws    *WSClient

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	credGen int

	original struct {
		transactions []Ledger
		trades       []Fill
	}
	data struct {
		transactions []models.Transaction
		trades       []models.Trade
		balance      *models.Balance
		positions    []models.Position
		contracts    []models.Contract
		klines       map[string]*klineSeries
	}

	log *logger.Log
}

// NewService wires the REST client, stream client and cache partition for one
// KuCoin account.
func NewService(cfg appconfig.ExchangeConfig, h *hub.Hub, cacheDir string) *Service {
	limiter := ratelimit.New("kucoin", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
	s := &Service{
		cfg:   cfg,
		hub:   h,
		store: cache.NewStore(cacheDir),
		rest:  NewClient(cfg.RestURL, cfg.Lookback, limiter),
		log:   logger.GetLogger(),
	}
	s.ws = NewWSClient(s.rest, s.handleMessage)
	s.data.klines = make(map[string]*klineSeries)

	if cfg.APIKey != "" && cfg.APISecret != "" {
		s.SetCredentials(exchange.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret, Passphrase: cfg.Passphrase})
	}
	return s
}

func (s *Service) Name() string { return "kucoin" }

// SetCredentials swaps the account, repoints the cache partition and drops
// all in-memory history so nothing leaks across accounts. While running it
// also forces a stream reconnect under a fresh bullet token.
func (s *Service) SetCredentials(creds exchange.Credentials) error {
	s.rest.SetCredentials(creds)
	s.store.SetPartition(creds.Hash())

	s.mu.Lock()
	s.credGen++
	s.original.transactions = nil
	s.original.trades = nil
	s.data.transactions = nil
	s.data.trades = nil
	s.data.balance = nil
	s.data.positions = nil
	s.data.contracts = nil
	running := s.running
	ctx := s.ctx
	s.mu.Unlock()

	if running {
		if err := s.ws.UpdateToken(ctx); err != nil {
			return fmt.Errorf("failed to reconnect stream: %w", err)
		}
	}
	return nil
}

// Start runs one refresh immediately and then keeps refreshing on the
// configured interval. Iterations never overlap; a slow one delays the next.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("kucoin service already running")
	}
	if s.rest.Credentials().IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("kucoin service has no credentials")
	}
	s.running = true
	s.ctx = ctx
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	log := s.log.WithComponent("kucoin_service")
	log.WithField("interval", s.cfg.RefreshInterval.String()).Info("starting auto refresh")

	s.wg.Add(1)
	go s.refreshLoop(ctx)
	return nil
}

// Stop cancels the refresh loop and closes the stream. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.ws.Stop()
	s.wg.Wait()
	s.log.WithComponent("kucoin_service").Info("stopped")
}

func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	s.loadData(ctx)

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.loadData(ctx)
		}
	}
}

// loadData is one refresh iteration. Each category degrades independently: a
// failed fetch keeps the previous value and the notification still fires.
func (s *Service) loadData(ctx context.Context) {
	log := s.log.WithComponent("kucoin_service").WithFields(logger.Fields{"operation": "loadData"})

	s.mu.Lock()
	if len(s.original.transactions) == 0 {
		if cached := cache.Read[Ledger](s.store, transactionsCacheFile); cached != nil {
			s.original.transactions = exchange.DedupBy(cached.Data, transactionKey)
			log.WithField("transactions", len(s.original.transactions)).Info("loaded transaction history from cache")
		}
	}
	if len(s.original.trades) == 0 {
		if cached := cache.Read[Fill](s.store, tradesCacheFile); cached != nil {
			s.original.trades = exchange.DedupBy(cached.Data, tradeKey)
			log.WithField("trades", len(s.original.trades)).Info("loaded trade history from cache")
		}
	}
	transactions := s.original.transactions
	trades := s.original.trades
	gen := s.credGen
	s.mu.Unlock()

	transactions = exchange.DedupBy(s.rest.FetchTransactions(ctx, transactions), transactionKey)
	trades = exchange.DedupBy(s.rest.FetchTrades(ctx, trades), tradeKey)

	balance, err := s.rest.FetchBalance(ctx)
	if err != nil {
		log.WithError(err).Warn("balance fetch failed, keeping previous value")
	}
	positions, err := s.rest.FetchPositions(ctx)
	if err != nil {
		log.WithError(err).Warn("positions fetch failed, keeping previous value")
	}
	contracts, err := s.rest.FetchContracts(ctx)
	if err != nil {
		log.WithError(err).Warn("contracts fetch failed, keeping previous value")
	}

	s.mu.Lock()
	// Credentials swapped while this iteration was fetching: everything
	// gathered belongs to the old account and must not touch the new
	// partition or snapshot. The cache writes stay under the lock so they
	// cannot race a concurrent swap repointing the partition.
	if s.credGen != gen {
		s.mu.Unlock()
		log.Info("credentials changed mid refresh, discarding results")
		return
	}
	if err := cache.Write(s.store, transactionsCacheFile, transactions); err != nil {
		log.WithError(err).Warn("failed to persist transactions")
	}
	if err := cache.Write(s.store, tradesCacheFile, trades); err != nil {
		log.WithError(err).Warn("failed to persist trades")
	}
	s.original.transactions = transactions
	s.original.trades = trades
	s.data.transactions = TransformTransactions(transactions)
	s.data.trades = TransformTrades(trades)
	if balance != nil || s.data.balance == nil {
		s.data.balance = TransformBalance(balance)
	}
	if positions != nil {
		s.data.positions = TransformPositions(positions)
	}
	if contracts != nil {
		s.data.contracts = TransformContracts(contracts)
	}
	snapshot := s.data
	s.mu.Unlock()

	s.hub.Publish(models.NotifyMessage{Store: "kucoin.transactions", Transactions: snapshot.transactions})
	s.hub.Publish(models.NotifyMessage{Store: "kucoin.trades", Trades: snapshot.trades})
	s.hub.Publish(models.NotifyMessage{Store: "kucoin.balance", Balance: snapshot.balance})
	s.hub.Publish(models.NotifyMessage{Store: "kucoin.positions", Positions: snapshot.positions})
	s.hub.Publish(models.NotifyMessage{Store: "kucoin.contracts", Contracts: snapshot.contracts})

	log.WithFields(logger.Fields{
		"transactions": len(snapshot.transactions),
		"trades":       len(snapshot.trades),
		"positions":    len(snapshot.positions),
		"contracts":    len(snapshot.contracts),
	}).Info("refresh complete")
}

// LoadSymbolKLines seeds the candle series for a symbol via REST and
// subscribes the live candle topic. Symbols are exchange-native
// (e.g. XBTUSDTM).
func (s *Service) LoadSymbolKLines(ctx context.Context, symbol string, period models.Period) error {
	s.mu.Lock()
	series, ok := s.data.klines[symbol]
	if !ok {
		series = &klineSeries{}
		s.data.klines[symbol] = series
	}
	s.mu.Unlock()

	candles, err := s.rest.FetchKLines(ctx, symbol, granularity(period), exchange.MaxKLines)
	if err != nil {
		return fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	s.mu.Lock()
	series.period = period
	series.data = TransformKLines(candles)
	data := series.data
	s.mu.Unlock()

	s.hub.Publish(models.NotifyMessage{Store: "kucoin.klines", Symbol: symbol, Period: period, KLines: data})

	return s.ws.Subscribe(ctx, candleTopic(symbol, period))
}

// RemoveSymbolKLines drops the series and unsubscribes the candle topic.
func (s *Service) RemoveSymbolKLines(symbol string, period models.Period) {
	s.mu.Lock()
	_, ok := s.data.klines[symbol]
	if ok {
		delete(s.data.klines, symbol)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := s.ws.Unsubscribe(candleTopic(symbol, period)); err != nil {
		s.log.WithComponent("kucoin_service").WithError(err).Warn("unsubscribe failed")
	}
	s.hub.Publish(models.NotifyMessage{Store: "kucoin.klines", Symbol: symbol, Period: period, KLines: []models.KLine{}})
}

// handleMessage routes one data frame by topic.
func (s *Service) handleMessage(raw []byte) {
	log := s.log.WithComponent("kucoin_service")

	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.WithError(err).Debug("failed to decode stream frame")
		return
	}

	if strings.HasPrefix(msg.Topic, candleTopicPrefix) && msg.Subject == "candle.stick" {
		s.processWSEventKline(&msg)
		return
	}
	if msg.Topic != "" {
		log.WithField("topic", msg.Topic).Debug("unhandled stream topic")
	}
}

// processWSEventKline merges one streamed candle tick into the matching
// series and notifies. Symbols without a loaded series are skipped.
func (s *Service) processWSEventKline(msg *wsMessage) {
	log := s.log.WithComponent("kucoin_service")

	var data wsCandleData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		log.WithError(err).Debug("failed to decode candle tick")
		return
	}

	tick, ok := TransformWSKLine(&data)
	if !ok {
		log.WithField("topic", msg.Topic).Debug("malformed candle tick")
		return
	}

	s.mu.Lock()
	series, loaded := s.data.klines[data.Symbol]
	if !loaded {
		s.mu.Unlock()
		log.WithField("symbol", data.Symbol).Debug("candle tick for unloaded symbol")
		return
	}
	series.data = exchange.MergeTick(series.data, tick)
	period := series.period
	out := series.data
	s.mu.Unlock()

	s.hub.Publish(models.NotifyMessage{Store: "kucoin.klines", Symbol: data.Symbol, Period: period, KLines: out})
}

// Snapshot returns the current normalized state for inspection.
func (s *Service) Snapshot() ([]models.Transaction, []models.Trade, *models.Balance, []models.Position, []models.Contract) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.transactions, s.data.trades, s.data.balance, s.data.positions, s.data.contracts
}

// KLines returns the current series for a symbol, or nil when not loaded.
func (s *Service) KLines(symbol string) []models.KLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if series, ok := s.data.klines[symbol]; ok {
		return series.data
	}
	return nil
}
