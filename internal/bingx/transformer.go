package bingx

import (
	"strconv"
	"strings"

	"accountflow/models"
)

// Pure mapping from BingX wire types to the normalized model. Numeric strings
// parse to zero on garbage, and nil input yields empty output so a failed
// fetch upstream never breaks the snapshot.

func parseSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "-", "")
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func TransformTransactions(transactions []Transaction) []models.Transaction {
	out := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		out = append(out, models.Transaction{
			Symbol:     parseSymbol(tx.Symbol),
			IncomeType: tx.IncomeType,
			Income:     parseFloat(tx.Income),
			Asset:      tx.Asset,
			Info:       tx.Info,
			Time:       tx.Time,
			TranID:     tx.TranID,
			TradeID:    tx.TradeID,
		})
	}
	return out
}

func TransformTrades(trades []Trade) []models.Trade {
	out := make([]models.Trade, 0, len(trades))
	for _, tr := range trades {
		out = append(out, models.Trade{
			Symbol:          parseSymbol(tr.Symbol),
			Qty:             parseFloat(tr.Qty),
			Price:           parseFloat(tr.Price),
			QuoteQty:        parseFloat(tr.QuoteQty),
			Commission:      parseFloat(tr.Commission),
			CommissionAsset: tr.CommissionAsset,
			OrderID:         tr.OrderID,
			TradeID:         tr.TradeID,
			FilledTime:      tr.FilledTime,
			Side:            tr.Side,
			PositionSide:    tr.PositionSide,
			Role:            tr.Role,
			Total:           tr.Total,
			RealisedPNL:     parseFloat(tr.RealisedPNL),
		})
	}
	return out
}

// TransformBalance maps the USDT balance entry. A nil input produces a zeroed
// balance rather than an error.
func TransformBalance(balance *Balance) *models.Balance {
	if balance == nil {
		return &models.Balance{}
	}
	return &models.Balance{
		Symbol:          parseSymbol(balance.Asset),
		Balance:         parseFloat(balance.Balance),
		Equity:          parseFloat(balance.Equity),
		UnrealizedPnl:   parseFloat(balance.UnrealizedProfit),
		RealisedPnl:     parseFloat(balance.RealisedProfit),
		AvailableMargin: parseFloat(balance.AvailableMargin),
		UsedMargin:      parseFloat(balance.UsedMargin),
		FreezedMargin:   parseFloat(balance.FreezedMargin),
	}
}

func TransformPositions(positions []Position) []models.Position {
	out := make([]models.Position, 0, len(positions))
	for _, p := range positions {
		side := "SHORT"
		if p.PositionSide == "LONG" {
			side = "LONG"
		}
		out = append(out, models.Position{
			Symbol:             parseSymbol(p.Symbol),
			PositionID:         p.PositionID,
			PositionSide:       side,
			Isolated:           p.Isolated,
			PositionAmt:        parseFloat(p.PositionAmt),
			AvailableAmt:       parseFloat(p.AvailableAmt),
			UnrealizedProfit:   parseFloat(p.UnrealizedProfit),
			RealisedProfit:     parseFloat(p.RealisedProfit),
			InitialMargin:      parseFloat(p.InitialMargin),
			Margin:             parseFloat(p.Margin),
			AvgPrice:           parseFloat(p.AvgPrice),
			LiquidationPrice:   p.LiquidationPrice,
			Leverage:           parseFloat(p.Leverage),
			PositionValue:      parseFloat(p.PositionValue),
			MarkPrice:          parseFloat(p.MarkPrice),
			RiskRate:           parseFloat(p.RiskRate),
			MaxMarginReduction: parseFloat(p.MaxMarginReduction),
			PnlRatio:           parseFloat(p.PnlRatio),
			CreateTime:         p.CreateTime,
			UpdateTime:         p.UpdateTime,
		})
	}
	return out
}

func contractStatus(status int) models.ContractStatus {
	switch status {
	case 1:
		return models.ContractNormal
	case 0:
		return models.ContractOff
	default:
		return models.ContractUnknown
	}
}

func TransformContracts(contracts []Contract) []models.Contract {
	out := make([]models.Contract, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, models.Contract{
			ContractID:        c.ContractID,
			Symbol:            parseSymbol(c.Symbol),
			QuantityPrecision: c.QuantityPrecision,
			PricePrecision:    c.PricePrecision,
			TakerFeeRate:      c.TakerFeeRate,
			MakerFeeRate:      c.MakerFeeRate,
			TradeMinQuantity:  c.TradeMinQuantity,
			TradeMinUSDT:      c.TradeMinUSDT,
			Currency:          c.Currency,
			Asset:             c.Asset,
			Status:            contractStatus(c.Status),
			APIStateOpen:      c.APIStateOpen == "true",
			APIStateClose:     c.APIStateClose == "true",
			EnsureTrigger:     c.EnsureTrigger,
			TriggerFeeRate:    parseFloat(c.TriggerFeeRate),
			BrokerState:       c.BrokerState,
			LaunchTime:        c.LaunchTime,
			MaintainTime:      c.MaintainTime,
			OffTime:           c.OffTime,
		})
	}
	return out
}

func TransformKLines(klines []KLine) []models.KLine {
	out := make([]models.KLine, 0, len(klines))
	for _, k := range klines {
		out = append(out, models.KLine{
			Open:      parseFloat(k.Open),
			Close:     parseFloat(k.Close),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Volume:    parseFloat(k.Volume),
			Timestamp: k.Time,
		})
	}
	return out
}

func TransformWSKLines(evt *wsKLineEvent) []models.KLine {
	if evt == nil {
		return nil
	}
	out := make([]models.KLine, 0, len(evt.Data))
	for _, k := range evt.Data {
		out = append(out, models.KLine{
			Open:      parseFloat(k.Open),
			Close:     parseFloat(k.Close),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Volume:    parseFloat(k.Volume),
			Timestamp: k.Time,
		})
	}
	return out
}
