package bingx

import "encoding/json"

// apiResponse is the envelope BingX wraps every REST payload in. A non-zero
// code inside a 200 body still counts as failure.
type apiResponse struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Transaction is one income record from /openApi/swap/v2/user/income.
type Transaction struct {
	Symbol     string `json:"symbol"`
	IncomeType string `json:"incomeType"`
	Income     string `json:"income"`
	Asset      string `json:"asset"`
	Info       string `json:"info"`
	Time       int64  `json:"time"`
	TranID     string `json:"tranId"`
	TradeID    string `json:"tradeId"`
}

// Trade is one fill from /openApi/swap/v2/trade/fillHistory.
type Trade struct {
	Symbol          string `json:"symbol"`
	Qty             string `json:"qty"`
	Price           string `json:"price"`
	QuoteQty        string `json:"quoteQty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	OrderID         string `json:"orderId"`
	TradeID         string `json:"tradeId"`
	FilledTime      int64  `json:"filledTime"`
	Side            string `json:"side"`
	PositionSide    string `json:"positionSide"`
	Role            string `json:"role"`
	Total           float64 `json:"total"`
	RealisedPNL     string `json:"realisedPNL"`
}

type fillHistoryResponse struct {
	FillHistoryOrders []Trade `json:"fill_history_orders"`
}

// Balance is one entry of the /openApi/swap/v3/user/balance array.
type Balance struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	Equity           string `json:"equity"`
	UnrealizedProfit string `json:"unrealizedProfit"`
	RealisedProfit   string `json:"realisedProfit"`
	AvailableMargin  string `json:"availableMargin"`
	UsedMargin       string `json:"usedMargin"`
	FreezedMargin    string `json:"freezedMargin"`
	ShortUID         string `json:"shortUid"`
}

// Position is one entry from /openApi/swap/v2/user/positions.
type Position struct {
	Symbol             string `json:"symbol"`
	PositionID         string `json:"positionId"`
	PositionSide       string `json:"positionSide"`
	Isolated           bool   `json:"isolated"`
	PositionAmt        string `json:"positionAmt"`
	AvailableAmt       string `json:"availableAmt"`
	UnrealizedProfit   string `json:"unrealizedProfit"`
	RealisedProfit     string `json:"realisedProfit"`
	InitialMargin      string `json:"initialMargin"`
	Margin             string `json:"margin"`
	AvgPrice           string `json:"avgPrice"`
	LiquidationPrice   float64 `json:"liquidationPrice"`
	Leverage           string `json:"leverage"`
	PositionValue      string `json:"positionValue"`
	MarkPrice          string `json:"markPrice"`
	RiskRate           string `json:"riskRate"`
	MaxMarginReduction string `json:"maxMarginReduction"`
	PnlRatio           string `json:"pnlRatio"`
	CreateTime         int64  `json:"createTime"`
	UpdateTime         int64  `json:"updateTime"`
}

// Contract is one entry from /openApi/swap/v2/quote/contracts.
type Contract struct {
	ContractID        string  `json:"contractId"`
	Symbol            string  `json:"symbol"`
	QuantityPrecision int     `json:"quantityPrecision"`
	PricePrecision    int     `json:"pricePrecision"`
	TakerFeeRate      float64 `json:"takerFeeRate"`
	MakerFeeRate      float64 `json:"makerFeeRate"`
	TradeMinQuantity  float64 `json:"tradeMinQuantity"`
	TradeMinUSDT      float64 `json:"tradeMinUSDT"`
	Currency          string  `json:"currency"`
	Asset             string  `json:"asset"`
	Status            int     `json:"status"`
	APIStateOpen      string  `json:"apiStateOpen"`
	APIStateClose     string  `json:"apiStateClose"`
	EnsureTrigger     bool    `json:"ensureTrigger"`
	TriggerFeeRate    string  `json:"triggerFeeRate"`
	BrokerState       bool    `json:"brokerState"`
	LaunchTime        int64   `json:"launchTime"`
	MaintainTime      int64   `json:"maintainTime"`
	OffTime           int64   `json:"offTime"`
}

// KLine is one candle from /openApi/swap/v3/quote/klines.
type KLine struct {
	Open   string `json:"open"`
	Close  string `json:"close"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Volume string `json:"volume"`
	Time   int64  `json:"time"`
}

type listenKeyResponse struct {
	ListenKey string `json:"listenKey"`
}

// accountEvent is the minimal shape of a private-stream payload. Only the
// event type is inspected; full order details stay in the raw message.
type accountEvent struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	ListenKey string `json:"listenKey"`
}

// wsKLineEvent is a market-data kline tick, dataType "SYM-BOL@kline_1m".
type wsKLineEvent struct {
	Code     int    `json:"code"`
	DataType string `json:"dataType"`
	Symbol   string `json:"s"`
	Data     []struct {
		Close  string `json:"c"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Open   string `json:"o"`
		Volume string `json:"v"`
		Time   int64  `json:"T"`
	} `json:"data"`
}
