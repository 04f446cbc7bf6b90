package bitget

import "encoding/json"

// apiResponse is the Bitget v2 envelope. Success is code "00000"; anything
// else inside a 200 body is a failure.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

const successCode = "00000"

// Bill is one account ledger record from /api/v2/mix/account/bill.
type Bill struct {
	BillID       string `json:"billId"`
	Symbol       string `json:"symbol"`
	Amount       string `json:"amount"`
	Fee          string `json:"fee"`
	BusinessType string `json:"businessType"`
	Coin         string `json:"coin"`
	CTime        string `json:"cTime"`
}

type billPage struct {
	Bills []Bill `json:"bills"`
	EndID string `json:"endId"`
}

// Fill is one trade fill from /api/v2/mix/order/fill-history.
type Fill struct {
	TradeID     string `json:"tradeId"`
	OrderID     string `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	BaseVolume  string `json:"baseVolume"`
	QuoteVolume string `json:"quoteVolume"`
	Profit      string `json:"profit"`
	TradeScope  string `json:"tradeScope"`
	PosMode     string `json:"posMode"`
	CTime       string `json:"cTime"`
	FeeDetail   []struct {
		FeeCoin  string `json:"feeCoin"`
		TotalFee string `json:"totalFee"`
	} `json:"feeDetail"`
}

type fillPage struct {
	FillList []Fill `json:"fillList"`
	EndID    string `json:"endId"`
}

// Account is one entry of /api/v2/mix/account/accounts.
type Account struct {
	MarginCoin          string `json:"marginCoin"`
	AccountEquity       string `json:"accountEquity"`
	Available           string `json:"available"`
	Locked              string `json:"locked"`
	UnrealizedPL        string `json:"unrealizedPL"`
	CrossedMaxAvailable string `json:"crossedMaxAvailable"`
}

// Position is one entry of /api/v2/mix/position/all-position.
type Position struct {
	Symbol           string `json:"symbol"`
	HoldSide         string `json:"holdSide"`
	MarginMode       string `json:"marginMode"`
	Total            string `json:"total"`
	Available        string `json:"available"`
	OpenPriceAvg     string `json:"openPriceAvg"`
	Leverage         string `json:"leverage"`
	AchievedProfits  string `json:"achievedProfits"`
	UnrealizedPL     string `json:"unrealizedPL"`
	LiquidationPrice string `json:"liquidationPrice"`
	MarkPrice        string `json:"markPrice"`
	MarginSize       string `json:"marginSize"`
	CTime            string `json:"cTime"`
	UTime            string `json:"uTime"`
}

// Contract is one entry of /api/v2/mix/market/contracts.
type Contract struct {
	Symbol       string `json:"symbol"`
	BaseCoin     string `json:"baseCoin"`
	QuoteCoin    string `json:"quoteCoin"`
	MakerFeeRate string `json:"makerFeeRate"`
	TakerFeeRate string `json:"takerFeeRate"`
	MinTradeNum  string `json:"minTradeNum"`
	PricePlace   string `json:"pricePlace"`
	VolumePlace  string `json:"volumePlace"`
	MinTradeUSDT string `json:"minTradeUSDT"`
	SymbolType   string `json:"symbolType"`
	SymbolStatus string `json:"symbolStatus"`
	LaunchTime   string `json:"launchTime"`
	MaintainTime string `json:"maintainTime"`
	OffTime      string `json:"offTime"`
}

// Candle rows come as positional string arrays:
// [ts, open, high, low, close, baseVolume, quoteVolume].
type Candle []string

// wsEvent is a public-stream data frame.
type wsEvent struct {
	Event  string `json:"event"`
	Action string `json:"action"`
	Arg    struct {
		InstType string `json:"instType"`
		Channel  string `json:"channel"`
		InstID   string `json:"instId"`
	} `json:"arg"`
	Data []Candle `json:"data"`
}
