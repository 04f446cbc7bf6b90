package bingx

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "accountflow/config"
	"accountflow/internal/cache"
	"accountflow/internal/exchange"
	"accountflow/internal/hub"
	"accountflow/internal/ratelimit"
	"accountflow/logger"
	"accountflow/models"
)

const (
	transactionsCacheFile = "bingx.transactions.json"
	tradesCacheFile       = "bingx.trades.json"
)

var klineChannelRegex = regexp.MustCompile(`^([A-Z0-9]+-[A-Z0-9]+)@kline_([0-9]+[mhdwM])$`)

func transactionKey(tx Transaction) string { return tx.TranID + "|" + tx.TradeID }
func tradeKey(tr Trade) string             { return tr.OrderID + "|" + tr.TradeID }

type klineSeries struct {
	socketID string
	period   models.Period
	data     []models.KLine
}

// Service orchestrates the BingX account sync: periodic REST refresh,
// disk-backed incremental history, live kline merge and notification fan-out.
type Service struct {
	cfg   appconfig.ExchangeConfig
	hub   *hub.Hub
	store *cache.Store
	rest  *Client
	ws    *WSClient

	ctx       context.Context
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	stopCh    chan struct{}
	refreshCh chan struct{}
	credGen   int

	original struct {
		transactions []Transaction
		trades       []Trade
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
// BingX account.
func NewService(cfg appconfig.ExchangeConfig, h *hub.Hub, cacheDir string) *Service {
	limiter := ratelimit.New("bingx", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
	s := &Service{
		cfg:       cfg,
		hub:       h,
		store:     cache.NewStore(cacheDir),
		rest:      NewClient(cfg.RestURL, cfg.Lookback, limiter),
		refreshCh: make(chan struct{}, 1),
		log:       logger.GetLogger(),
	}
	s.ws = NewWSClient(s.rest, cfg.WsURL, s.handleMessage)
	s.data.klines = make(map[string]*klineSeries)

	if cfg.APIKey != "" && cfg.APISecret != "" {
		s.SetCredentials(exchange.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret})
	}
	return s
}

func (s *Service) Name() string { return "bingx" }

// SetCredentials swaps the account, repoints the cache partition and drops
// all in-memory history so nothing leaks across accounts. While running it
// also forces a stream reconnect with a fresh listen key.
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
		if err := s.ws.UpdateListenKey(ctx); err != nil {
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
		return fmt.Errorf("bingx service already running")
	}
	if s.rest.Credentials().IsZero() {
		s.mu.Unlock()
		return fmt.Errorf("bingx service has no credentials")
	}
	s.running = true
	s.ctx = ctx
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	log := s.log.WithComponent("bingx_service")
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
	s.log.WithComponent("bingx_service").Info("stopped")
}

func (s *Service) refreshLoop(ctx context.Context) {
	defer s.wg.Done()
	log := s.log.WithComponent("bingx_service")

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
		case <-s.refreshCh:
			log.Debug("out-of-band refresh")
			s.loadData(ctx)
		}
	}
}

// triggerRefresh requests an out-of-band refresh without blocking. A refresh
// already pending is enough.
func (s *Service) triggerRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// loadData is one refresh iteration. Each category degrades independently: a
// failed fetch keeps the previous value and the notification still fires.
func (s *Service) loadData(ctx context.Context) {
	log := s.log.WithComponent("bingx_service").WithFields(logger.Fields{"operation": "loadData"})

	s.mu.Lock()
	if len(s.original.transactions) == 0 {
		if cached := cache.Read[Transaction](s.store, transactionsCacheFile); cached != nil {
			s.original.transactions = exchange.DedupBy(cached.Data, transactionKey)
			log.WithField("transactions", len(s.original.transactions)).Info("loaded transaction history from cache")
		}
	}
	if len(s.original.trades) == 0 {
		if cached := cache.Read[Trade](s.store, tradesCacheFile); cached != nil {
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

	s.hub.Publish(models.NotifyMessage{Store: "bingx.transactions", Transactions: snapshot.transactions})
	s.hub.Publish(models.NotifyMessage{Store: "bingx.trades", Trades: snapshot.trades})
	s.hub.Publish(models.NotifyMessage{Store: "bingx.balance", Balance: snapshot.balance})
	s.hub.Publish(models.NotifyMessage{Store: "bingx.positions", Positions: snapshot.positions})
	s.hub.Publish(models.NotifyMessage{Store: "bingx.contracts", Contracts: snapshot.contracts})

	log.WithFields(logger.Fields{
		"transactions": len(snapshot.transactions),
		"trades":       len(snapshot.trades),
		"positions":    len(snapshot.positions),
		"contracts":    len(snapshot.contracts),
	}).Info("refresh complete")
}

// LoadSymbolKLines seeds the candle series for a symbol via REST and
// subscribes the live channel. The per-symbol subscription id is generated
// once and reused across period changes.
func (s *Service) LoadSymbolKLines(ctx context.Context, symbol string, period models.Period) error {
	s.mu.Lock()
	series, ok := s.data.klines[symbol]
	if !ok {
		series = &klineSeries{socketID: uuid.NewString()}
		s.data.klines[symbol] = series
	}
	s.mu.Unlock()

	klines, err := s.rest.FetchKLines(ctx, symbol, string(period))
	if err != nil {
		return fmt.Errorf("failed to fetch klines for %s: %w", symbol, err)
	}

	s.mu.Lock()
	series.period = period
	series.data = TransformKLines(klines)
	data := series.data
	s.mu.Unlock()

	s.hub.Publish(models.NotifyMessage{Store: "bingx.klines", Symbol: symbol, Period: period, KLines: data})

	channel := fmt.Sprintf("%s@kline_%s", symbol, period)
	return s.ws.Subscribe(ctx, series.socketID, channel)
}

// RemoveSymbolKLines drops the series and unsubscribes the live channel.
func (s *Service) RemoveSymbolKLines(symbol string, period models.Period) {
	s.mu.Lock()
	series, ok := s.data.klines[symbol]
	if ok {
		delete(s.data.klines, symbol)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	channel := fmt.Sprintf("%s@kline_%s", symbol, period)
	if err := s.ws.Unsubscribe(series.socketID, channel); err != nil {
		s.log.WithComponent("bingx_service").WithError(err).Warn("unsubscribe failed")
	}
	s.hub.Publish(models.NotifyMessage{Store: "bingx.klines", Symbol: symbol, Period: period, KLines: []models.KLine{}})
}

// handleMessage routes one stream frame. Account events carry an "e" field;
// market data carries "dataType". Anything else is logged and ignored.
func (s *Service) handleMessage(raw []byte) {
	log := s.log.WithComponent("bingx_service")
	p := probe(raw)

	if p.Event != "" {
		switch p.Event {
		case "ORDER_TRADE_UPDATE":
			log.Debug("order update received, scheduling refresh")
			s.triggerRefresh()
		case "TRADE_UPDATE", "ACCOUNT_UPDATE", "SNAPSHOT", "ACCOUNT_CONFIG_UPDATE":
			log.WithField("event", p.Event).Debug("account event ignored")
		case "listenKeyExpired":
			log.Warn("listen key expired")
		default:
			log.WithField("event", p.Event).Debug("unhandled account event")
		}
		return
	}

	if p.DataType != "" {
		if klineChannelRegex.MatchString(p.DataType) {
			s.processWSEventKline(raw)
			return
		}
		log.WithField("dataType", p.DataType).Debug("unhandled market event")
		return
	}
}

// processWSEventKline merges streamed candle ticks into the matching series
// and notifies. Unknown channels or symbols without a loaded series are
// logged and skipped.
func (s *Service) processWSEventKline(raw []byte) {
	log := s.log.WithComponent("bingx_service")

	var evt wsKLineEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		log.WithError(err).Debug("failed to decode kline event")
		return
	}

	match := klineChannelRegex.FindStringSubmatch(evt.DataType)
	if match == nil {
		log.WithField("dataType", evt.DataType).Debug("unparsed kline channel")
		return
	}
	symbol := match[1]
	period := models.Period(match[2])

	ticks := TransformWSKLines(&evt)

	s.mu.Lock()
	series, ok := s.data.klines[symbol]
	if !ok {
		s.mu.Unlock()
		log.WithField("symbol", symbol).Debug("kline tick for unloaded symbol")
		return
	}
	for _, tick := range ticks {
		series.data = exchange.MergeTick(series.data, tick)
	}
	data := series.data
	s.mu.Unlock()

	s.hub.Publish(models.NotifyMessage{Store: "bingx.klines", Symbol: symbol, Period: period, KLines: data})
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
