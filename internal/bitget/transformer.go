package bitget

import (
	"strconv"
	"strings"

	"accountflow/models"
)

// Pure mapping from Bitget v2 wire types to the normalized model. All numeric
// fields arrive as strings; garbage parses to zero.

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	i, _ := strconv.ParseInt(s, 10, 64)
	return i
}

// granularity maps a normalized period to the candle channel granularity.
// Minute intervals are lowercase, everything above is uppercase.
var granularityByPeriod = map[models.Period]string{
	models.Period1m:  "1m",
	models.Period3m:  "3m",
	models.Period5m:  "5m",
	models.Period15m: "15m",
	models.Period30m: "30m",
	models.Period1h:  "1H",
	models.Period4h:  "4H",
	models.Period6h:  "6H",
	models.Period12h: "12H",
	models.Period1d:  "1D",
	models.Period1w:  "1W",
	models.Period1M:  "1M",
}

func granularity(period models.Period) string {
	if g, ok := granularityByPeriod[period]; ok {
		return g
	}
	return string(period)
}

func periodFromGranularity(g string) models.Period {
	for p, v := range granularityByPeriod {
		if v == g {
			return p
		}
	}
	return models.Period(strings.ToLower(g))
}

// TransformTransactions maps ledger bills. The bill id doubles as the
// transaction id; bills carry no trade linkage.
func TransformTransactions(bills []Bill) []models.Transaction {
	out := make([]models.Transaction, 0, len(bills))
	for _, b := range bills {
		out = append(out, models.Transaction{
			Symbol:     b.Symbol,
			IncomeType: b.BusinessType,
			Income:     parseFloat(b.Amount),
			Asset:      b.Coin,
			Time:       parseInt(b.CTime),
			TranID:     b.BillID,
		})
	}
	return out
}

func TransformTrades(fills []Fill) []models.Trade {
	out := make([]models.Trade, 0, len(fills))
	for _, f := range fills {
		var commission float64
		var commissionAsset string
		for _, fee := range f.FeeDetail {
			commission += parseFloat(fee.TotalFee)
			commissionAsset = fee.FeeCoin
		}
		out = append(out, models.Trade{
			Symbol:          f.Symbol,
			Qty:             parseFloat(f.BaseVolume),
			Price:           parseFloat(f.Price),
			QuoteQty:        parseFloat(f.QuoteVolume),
			Commission:      commission,
			CommissionAsset: commissionAsset,
			OrderID:         f.OrderID,
			TradeID:         f.TradeID,
			FilledTime:      parseInt(f.CTime),
			Side:            strings.ToUpper(f.Side),
			PositionSide:    positionSide(f.PosMode),
			Role:            f.TradeScope,
			Total:           parseFloat(f.QuoteVolume),
			RealisedPNL:     parseFloat(f.Profit),
		})
	}
	return out
}

func positionSide(holdSide string) string {
	if strings.EqualFold(holdSide, "long") {
		return "LONG"
	}
	return "SHORT"
}

// TransformBalance maps the USDT-margin account. A nil input produces a
// zeroed balance rather than an error.
func TransformBalance(account *Account) *models.Balance {
	if account == nil {
		return &models.Balance{}
	}
	available := parseFloat(account.Available)
	locked := parseFloat(account.Locked)
	return &models.Balance{
		Symbol:          account.MarginCoin,
		Balance:         available + locked,
		Equity:          parseFloat(account.AccountEquity),
		UnrealizedPnl:   parseFloat(account.UnrealizedPL),
		AvailableMargin: available,
		UsedMargin:      locked,
		FreezedMargin:   locked,
	}
}

func TransformPositions(positions []Position) []models.Position {
	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		amt := parseFloat(p.Total)
		out = append(out, models.Position{
			Symbol:           p.Symbol,
			PositionSide:     positionSide(p.HoldSide),
			Isolated:         strings.EqualFold(p.MarginMode, "isolated"),
			PositionAmt:      amt,
			AvailableAmt:     parseFloat(p.Available),
			UnrealizedProfit: parseFloat(p.UnrealizedPL),
			RealisedProfit:   parseFloat(p.AchievedProfits),
			Margin:           parseFloat(p.MarginSize),
			AvgPrice:         parseFloat(p.OpenPriceAvg),
			LiquidationPrice: parseFloat(p.LiquidationPrice),
			Leverage:         parseFloat(p.Leverage),
			PositionValue:    amt * parseFloat(p.MarkPrice),
			MarkPrice:        parseFloat(p.MarkPrice),
			CreateTime:       parseInt(p.CTime),
			UpdateTime:       parseInt(p.UTime),
		})
	}
	return out
}

func contractStatus(symbolStatus string) models.ContractStatus {
	switch symbolStatus {
	case "listed":
		return models.ContractListed
	case "normal":
		return models.ContractNormal
	case "maintain":
		return models.ContractMaintain
	case "limit_open":
		return models.ContractLimitOpen
	case "restrictedAPI":
		return models.ContractRestrictedAPI
	case "off":
		return models.ContractOff
	default:
		return models.ContractUnknown
	}
}

func TransformContracts(contracts []Contract) []models.Contract {
	out := make([]models.Contract, 0, len(contracts))
	for _, c := range contracts {
		status := contractStatus(c.SymbolStatus)
		tradable := status == models.ContractNormal || status == models.ContractLimitOpen
		out = append(out, models.Contract{
			Symbol:            c.Symbol,
			QuantityPrecision: int(parseInt(c.VolumePlace)),
			PricePrecision:    int(parseInt(c.PricePlace)),
			TakerFeeRate:      parseFloat(c.TakerFeeRate),
			MakerFeeRate:      parseFloat(c.MakerFeeRate),
			TradeMinQuantity:  parseFloat(c.MinTradeNum),
			TradeMinUSDT:      parseFloat(c.MinTradeUSDT),
			Currency:          c.QuoteCoin,
			Asset:             c.BaseCoin,
			Status:            status,
			APIStateOpen:      tradable,
			APIStateClose:     status != models.ContractOff,
			LaunchTime:        parseInt(c.LaunchTime),
			MaintainTime:      parseInt(c.MaintainTime),
			OffTime:           parseInt(c.OffTime),
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
			Timestamp: parseInt(c[0]),
			Open:      parseFloat(c[1]),
			High:      parseFloat(c[2]),
			Low:       parseFloat(c[3]),
			Close:     parseFloat(c[4]),
			Volume:    parseFloat(c[5]),
		})
	}
	return out
}

// TransformWSKLines maps streamed candle rows, which arrive newest-last like
// the REST rows.
func TransformWSKLines(evt *wsEvent) []models.KLine {
	if evt == nil {
		return nil
	}
	return TransformKLines(evt.Data)
}
