package models

/////////////////////////////////////////////////////////////////////////////
/////////////////////////// NORMALIZED ENTITIES /////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Transaction is a single ledger event (funding fee, realized PnL, transfer)
// normalized across exchanges. Identity key is (TranID, TradeID); records are
// immutable and accumulate append-only per exchange.
type Transaction struct {
	Symbol     string  `json:"symbol"`
	IncomeType string  `json:"incomeType"`
	Income     float64 `json:"income"`
	Asset      string  `json:"asset"`
	Info       string  `json:"info"`
	Time       int64   `json:"time"`
	TranID     string  `json:"tranId"`
	TradeID    string  `json:"tradeId"`
}

// Trade is a normalized fill. Identity key is (OrderID, TradeID).
type Trade struct {
	Symbol          string  `json:"symbol"`
	Qty             float64 `json:"qty"`
	Price           float64 `json:"price"`
	QuoteQty        float64 `json:"quoteQty"`
	Commission      float64 `json:"commission"`
	CommissionAsset string  `json:"commissionAsset"`
	OrderID         string  `json:"orderId"`
	TradeID         string  `json:"tradeId"`
	FilledTime      int64   `json:"filledTime"`
	Side            string  `json:"side"` // BUY or SELL
	PositionSide    string  `json:"positionSide"`
	Role            string  `json:"role"`
	Total           float64 `json:"total"`
	RealisedPNL     float64 `json:"realisedPNL"`
}

// Balance is the current USDT-margin account snapshot for one exchange.
// It carries no history; each refresh fully replaces the previous value.
type Balance struct {
	Symbol          string  `json:"symbol"`
	Balance         float64 `json:"balance"`
	Equity          float64 `json:"equity"`
	UnrealizedPnl   float64 `json:"unrealizedPnl"`
	RealisedPnl     float64 `json:"realisedPnl"`
	AvailableMargin float64 `json:"availableMargin"`
	UsedMargin      float64 `json:"usedMargin"`
	FreezedMargin   float64 `json:"freezedMargin"`
}

// Position is one open position. The position list is fully replaced on each
// refresh cycle; there is no diffing against previous snapshots.
type Position struct {
	Symbol             string  `json:"symbol"`
	PositionID         string  `json:"positionId,omitempty"`
	PositionSide       string  `json:"positionSide"` // LONG or SHORT
	Isolated           bool    `json:"isolated"`
	PositionAmt        float64 `json:"positionAmt"`
	AvailableAmt       float64 `json:"availableAmt"`
	UnrealizedProfit   float64 `json:"unrealizedProfit"`
	RealisedProfit     float64 `json:"realisedProfit"`
	InitialMargin      float64 `json:"initialMargin,omitempty"`
	Margin             float64 `json:"margin"`
	AvgPrice           float64 `json:"avgPrice"`
	LiquidationPrice   float64 `json:"liquidationPrice"`
	Leverage           float64 `json:"leverage"`
	PositionValue      float64 `json:"positionValue,omitempty"`
	MarkPrice          float64 `json:"markPrice"`
	RiskRate           float64 `json:"riskRate,omitempty"`
	MaxMarginReduction float64 `json:"maxMarginReduction,omitempty"`
	PnlRatio           float64 `json:"pnlRatio,omitempty"`
	CreateTime         int64   `json:"createTime"`
	UpdateTime         int64   `json:"updateTime"`
}

// ContractStatus is the shared instrument lifecycle enum.
type ContractStatus string

const (
	ContractListed        ContractStatus = "listed"
	ContractNormal        ContractStatus = "normal"
	ContractMaintain      ContractStatus = "maintain"
	ContractLimitOpen     ContractStatus = "limit_open"
	ContractRestrictedAPI ContractStatus = "restrictedAPI"
	ContractPreOnline     ContractStatus = "preOnline"
	ContractOff           ContractStatus = "off"
	ContractUnknown       ContractStatus = "unknown"
)

// Contract is static/slow-changing instrument metadata, fully replaced on
// each refresh.
type Contract struct {
	ContractID        string         `json:"contractId"`
	Symbol            string         `json:"symbol"`
	QuantityPrecision int            `json:"quantityPrecision"`
	PricePrecision    int            `json:"pricePrecision"`
	TakerFeeRate      float64        `json:"takerFeeRate"`
	MakerFeeRate      float64        `json:"makerFeeRate"`
	TradeMinQuantity  float64        `json:"tradeMinQuantity"`
	TradeMinUSDT      float64        `json:"tradeMinUSDT"`
	Currency          string         `json:"currency"`
	Asset             string         `json:"asset"`
	Status            ContractStatus `json:"status"`
	APIStateOpen      bool           `json:"apiStateOpen"`
	APIStateClose     bool           `json:"apiStateClose"`
	EnsureTrigger     bool           `json:"ensureTrigger"`
	TriggerFeeRate    float64        `json:"triggerFeeRate"`
	BrokerState       bool           `json:"brokerState"`
	LaunchTime        int64          `json:"launchTime,omitempty"`
	MaintainTime      int64          `json:"maintainTime"`
	OffTime           int64          `json:"offTime"`
}

// KLine is one candle. Series are ordered newest-first; index 0 is the
// still-forming candle.
type KLine struct {
	Open      float64 `json:"open"`
	Close     float64 `json:"close"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"timestamp"`
}

// Period is a candle interval accepted by all exchange clients.
type Period string

const (
	Period1m  Period = "1m"
	Period3m  Period = "3m"
	Period5m  Period = "5m"
	Period15m Period = "15m"
	Period30m Period = "30m"
	Period1h  Period = "1h"
	Period2h  Period = "2h"
	Period4h  Period = "4h"
	Period6h  Period = "6h"
	Period8h  Period = "8h"
	Period12h Period = "12h"
	Period1d  Period = "1d"
	Period3d  Period = "3d"
	Period1w  Period = "1w"
	Period1M  Period = "1M"
)

// CachedData wraps a persisted history array together with its write time.
type CachedData[T any] struct {
	LastUpdated int64 `json:"lastUpdated"`
	Data        []T   `json:"data"`
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////// BOT PLATFORM /////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Bot is a normalized bot-platform record.
type Bot struct {
	ID            string  `json:"id"`
	SecurityToken string  `json:"securityToken,omitempty"`
	Symbol        string  `json:"symbol"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	Exchange      string  `json:"exchange"`
	Strategy      string  `json:"strategy"`
	PositionSide  string  `json:"positionSide"`
	Count         int     `json:"count"`
	Safe          bool    `json:"safe"`
	CreatedAt     int64   `json:"createdAt,omitempty"`
}

// Notification is a transient user-facing event (toast in the original UI).
type Notification struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // success or error
	Title   string `json:"title"`
	Action  string `json:"action"`
	Message string `json:"message"`
}
