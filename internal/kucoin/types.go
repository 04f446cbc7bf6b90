package kucoin

import "encoding/json"

// apiResponse is the KuCoin futures envelope. Success is code "200000".
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const successCode = "200000"

// Ledger is one record of /api/v1/transaction-history.
type Ledger struct {
	Time          int64   `json:"time"`
	Type          string  `json:"type"`
	Amount        float64 `json:"amount"`
	Fee           float64 `json:"fee"`
	AccountEquity float64 `json:"accountEquity"`
	Status        string  `json:"status"`
	Remark        string  `json:"remark"`
	Offset        int64   `json:"offset"`
	Currency      string  `json:"currency"`
}

type ledgerPage struct {
	HasMore  bool     `json:"hasMore"`
	DataList []Ledger `json:"dataList"`
}

// Fill is one record of /api/v1/fills. Timestamps: createdAt is milliseconds,
// tradeTime nanoseconds.
type Fill struct {
	Symbol         string `json:"symbol"`
	TradeID        string `json:"tradeId"`
	OrderID        string `json:"orderId"`
	Side           string `json:"side"`
	Liquidity      string `json:"liquidity"`
	Price          string `json:"price"`
	Size           int64  `json:"size"`
	Value          string `json:"value"`
	FeeCurrency    string `json:"feeCurrency"`
	Fee            string `json:"fee"`
	OrderType      string `json:"orderType"`
	CreatedAt      int64  `json:"createdAt"`
	SettleCurrency string `json:"settleCurrency"`
	TradeTime      int64  `json:"tradeTime"`
}

type fillPage struct {
	CurrentPage int    `json:"currentPage"`
	PageSize    int    `json:"pageSize"`
	TotalNum    int    `json:"totalNum"`
	TotalPage   int    `json:"totalPage"`
	Items       []Fill `json:"items"`
}

// Account is the /api/v1/account-overview payload.
type Account struct {
	AccountEquity    float64 `json:"accountEquity"`
	UnrealisedPNL    float64 `json:"unrealisedPNL"`
	MarginBalance    float64 `json:"marginBalance"`
	PositionMargin   float64 `json:"positionMargin"`
	OrderMargin      float64 `json:"orderMargin"`
	FrozenFunds      float64 `json:"frozenFunds"`
	AvailableBalance float64 `json:"availableBalance"`
	Currency         string  `json:"currency"`
	RiskRatio        float64 `json:"riskRatio"`
}

// Position is one entry of /api/v1/positions.
type Position struct {
	ID                string  `json:"id"`
	Symbol            string  `json:"symbol"`
	CrossMode         bool    `json:"crossMode"`
	CurrentQty        float64 `json:"currentQty"`
	UnrealisedPnl     float64 `json:"unrealisedPnl"`
	RealisedPnl       float64 `json:"realisedPnl"`
	PosInit           float64 `json:"posInit"`
	PosMargin         float64 `json:"posMargin"`
	AvgEntryPrice     float64 `json:"avgEntryPrice"`
	LiquidationPrice  float64 `json:"liquidationPrice"`
	Leverage          float64 `json:"leverage"`
	MarkValue         float64 `json:"markValue"`
	MarkPrice         float64 `json:"markPrice"`
	DelevPercentage   float64 `json:"delevPercentage"`
	UnrealisedRoePcnt float64 `json:"unrealisedRoePcnt"`
	IsOpen            bool    `json:"isOpen"`
	OpeningTimestamp  int64   `json:"openingTimestamp"`
	CurrentTimestamp  int64   `json:"currentTimestamp"`
}

// Contract is one entry of /api/v1/contracts/active.
type Contract struct {
	Symbol         string  `json:"symbol"`
	RootSymbol     string  `json:"rootSymbol"`
	BaseCurrency   string  `json:"baseCurrency"`
	QuoteCurrency  string  `json:"quoteCurrency"`
	SettleCurrency string  `json:"settleCurrency"`
	LotSize        float64 `json:"lotSize"`
	TickSize       float64 `json:"tickSize"`
	Multiplier     float64 `json:"multiplier"`
	MakerFeeRate   float64 `json:"makerFeeRate"`
	TakerFeeRate   float64 `json:"takerFeeRate"`
	IsDeleverage   bool    `json:"isDeleverage"`
	FirstOpenDate  int64   `json:"firstOpenDate"`
	ExpireDate     int64   `json:"expireDate"`
	Status         string  `json:"status"`
}

// Candle rows from /api/v1/kline/query are positional number arrays:
// [ts, open, high, low, close, volume].
type Candle []float64

// bulletToken is the /api/v1/bullet-private grant: connect token plus the
// stream endpoint and its keepalive interval.
type bulletToken struct {
	Token        string
	Endpoint     string
	PingInterval int64
}

type bulletResponse struct {
	Token           string `json:"token"`
	InstanceServers []struct {
		Endpoint     string `json:"endpoint"`
		Protocol     string `json:"protocol"`
		PingInterval int64  `json:"pingInterval"`
		PingTimeout  int64  `json:"pingTimeout"`
	} `json:"instanceServers"`
}

// wsMessage is one stream frame. Control frames carry type
// welcome/ack/pong/error; data frames carry type message plus topic/subject.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Subject string          `json:"subject,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// wsSubscribeRequest subscribes or unsubscribes one topic.
type wsSubscribeRequest struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Response bool   `json:"response"`
}

// wsCandleData is the candle.stick payload. Candle strings are positional:
// [ts seconds, open, close, high, low, volume].
type wsCandleData struct {
	Symbol  string   `json:"symbol"`
	Candles []string `json:"candles"`
	Time    int64    `json:"time"`
}
