package kucoin

import (
	"strconv"
	"strings"

	"accountflow/models"
)

// Pure mapping from KuCoin futures wire types to the normalized model.

func parseSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "USDTM", "")
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// decimalPlaces counts the fractional digits of a step size, so a tick size
// of 0.01 yields a precision of 2.
func decimalPlaces(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// granularityByPeriod maps a normalized period to the kline granularity in
// minutes.
var granularityByPeriod = map[models.Period]int{
	models.Period1m:  1,
	models.Period5m:  5,
	models.Period15m: 15,
	models.Period30m: 30,
	models.Period1h:  60,
	models.Period2h:  120,
	models.Period4h:  240,
	models.Period8h:  480,
	models.Period12h: 720,
	models.Period1d:  1440,
	models.Period1w:  10080,
}

func granularity(period models.Period) int {
	if g, ok := granularityByPeriod[period]; ok {
		return g
	}
	return 1
}

// topicType maps a normalized period to the candle topic suffix.
var topicTypeByPeriod = map[models.Period]string{
	models.Period1m:  "1min",
	models.Period5m:  "5min",
	models.Period15m: "15min",
	models.Period30m: "30min",
	models.Period1h:  "1hour",
	models.Period2h:  "2hour",
	models.Period4h:  "4hour",
	models.Period8h:  "8hour",
	models.Period12h: "12hour",
	models.Period1d:  "1day",
	models.Period1w:  "1week",
}

func topicType(period models.Period) string {
	if t, ok := topicTypeByPeriod[period]; ok {
		return t
	}
	return "1min"
}

// TransformTransactions maps ledger records. The ledger is account-wide and
// carries no symbol or trade linkage; the record offset doubles as the
// transaction id.
func TransformTransactions(ledgers []Ledger) []models.Transaction {
	out := make([]models.Transaction, 0, len(ledgers))
	for _, l := range ledgers {
		out = append(out, models.Transaction{
			IncomeType: l.Type,
			Income:     l.Amount,
			Asset:      l.Currency,
			Info:       l.Remark,
			Time:       l.Time,
			TranID:     strconv.FormatInt(l.Offset, 10),
		})
	}
	return out
}

func TransformTrades(fills []Fill) []models.Trade {
	out := make([]models.Trade, 0, len(fills))
	for _, f := range fills {
		side := strings.ToUpper(f.Side)
		positionSide := "SHORT"
		if side == "BUY" {
			positionSide = "LONG"
		}
		out = append(out, models.Trade{
			Symbol:          parseSymbol(f.Symbol),
			Qty:             float64(f.Size),
			Price:           parseFloat(f.Price),
			QuoteQty:        parseFloat(f.Value),
			Commission:      parseFloat(f.Fee),
			CommissionAsset: f.FeeCurrency,
			OrderID:         f.OrderID,
			TradeID:         f.TradeID,
			FilledTime:      f.CreatedAt,
			Side:            side,
			PositionSide:    positionSide,
			Role:            f.Liquidity,
			Total:           parseFloat(f.Value),
		})
	}
	return out
}

// TransformBalance maps the account overview. A nil input produces a zeroed
// balance rather than an error.
func TransformBalance(account *Account) *models.Balance {
	if account == nil {
		return &models.Balance{}
	}
	return &models.Balance{
		Symbol:          account.Currency,
		Balance:         account.MarginBalance,
		Equity:          account.AccountEquity,
		UnrealizedPnl:   account.UnrealisedPNL,
		AvailableMargin: account.AvailableBalance,
		UsedMargin:      account.PositionMargin + account.OrderMargin,
		FreezedMargin:   account.FrozenFunds,
	}
}

// TransformPositions maps positions. The side comes from the signed quantity;
// negative quantities are shorts.
func TransformPositions(positions []Position) []models.Position {
	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		side := "LONG"
		if p.CurrentQty < 0 {
			side = "SHORT"
		}
		out = append(out, models.Position{
			Symbol:           parseSymbol(p.Symbol),
			PositionID:       p.ID,
			PositionSide:     side,
			Isolated:         !p.CrossMode,
			PositionAmt:      p.CurrentQty,
			AvailableAmt:     p.CurrentQty,
			UnrealizedProfit: p.UnrealisedPnl,
			RealisedProfit:   p.RealisedPnl,
			InitialMargin:    p.PosInit,
			Margin:           p.PosMargin,
			AvgPrice:         p.AvgEntryPrice,
			LiquidationPrice: p.LiquidationPrice,
			Leverage:         p.Leverage,
			PositionValue:    p.MarkValue,
			MarkPrice:        p.MarkPrice,
			RiskRate:         p.DelevPercentage,
			PnlRatio:         p.UnrealisedRoePcnt,
			CreateTime:       p.OpeningTimestamp,
			UpdateTime:       p.CurrentTimestamp,
		})
	}
	return out
}

func contractStatus(status string) models.ContractStatus {
	switch status {
	case "Open":
		return models.ContractNormal
	case "Paused", "CancelOnly":
		return models.ContractRestrictedAPI
	case "Init":
		return models.ContractPreOnline
	case "Closed", "Settled":
		return models.ContractOff
	default:
		return models.ContractUnknown
	}
}

func TransformContracts(contracts []Contract) []models.Contract {
	out := make([]models.Contract, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, models.Contract{
			ContractID:        c.Symbol,
			Symbol:            parseSymbol(c.Symbol),
			QuantityPrecision: decimalPlaces(c.LotSize),
			PricePrecision:    decimalPlaces(c.TickSize),
			TakerFeeRate:      c.TakerFeeRate,
			MakerFeeRate:      c.MakerFeeRate,
			TradeMinQuantity:  c.LotSize,
			Currency:          c.SettleCurrency,
			Asset:             c.SettleCurrency,
			Status:            contractStatus(c.Status),
			APIStateOpen:      c.Status == "Open",
			APIStateClose:     c.Status == "Open" || c.Status == "CancelOnly",
			EnsureTrigger:     c.IsDeleverage,
			BrokerState:       c.Status == "Open",
			LaunchTime:        c.FirstOpenDate,
			OffTime:           c.ExpireDate,
		})
	}
	return out
}

// TransformKLines maps positional candle rows. The REST endpoint returns them
// oldest first; the normalized series is newest first, so the order flips.
func TransformKLines(candles []Candle) []models.KLine {
	out := make([]models.KLine, 0, len(candles))
	for i := len(candles) - 1; i >= 0; i-- {
		c := candles[i]
		if len(c) < 6 {
			continue
		}
		out = append(out, models.KLine{
			Timestamp: int64(c[0]),
			Open:      c[1],
			High:      c[2],
			Low:       c[3],
			Close:     c[4],
			Volume:    c[5],
		})
	}
	return out
}

// TransformWSKLine maps one candle.stick tick. Stream rows are strings with
// the timestamp in seconds and open/close before high/low.
func TransformWSKLine(data *wsCandleData) (models.KLine, bool) {
	if data == nil || len(data.Candles) < 6 {
		return models.KLine{}, false
	}
	c := data.Candles
	ts, err := strconv.ParseInt(c[0], 10, 64)
	if err != nil {
		return models.KLine{}, false
	}
	return models.KLine{
		Timestamp: ts * 1000,
		Open:      parseFloat(c[1]),
		Close:     parseFloat(c[2]),
		High:      parseFloat(c[3]),
		Low:       parseFloat(c[4]),
		Volume:    parseFloat(c[5]),
	}, true
}
