package kucoin

import (
	"testing"

	"accountflow/models"
)

func TestTransformTransactions(t *testing.T) {
	out := TransformTransactions([]Ledger{
		{Time: 5000, Type: "RealisedPNL", Amount: -0.25, Currency: "USDT", Remark: "settle", Offset: 42},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(out))
	}
	tx := out[0]
	if tx.TranID != "42" || tx.IncomeType != "RealisedPNL" || tx.Income != -0.25 || tx.Info != "settle" {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestTransformTradesStripsContractSuffix(t *testing.T) {
	out := TransformTrades([]Fill{{
		Symbol:      "XBTUSDTM",
		TradeID:     "t1",
		OrderID:     "o1",
		Side:        "buy",
		Liquidity:   "taker",
		Price:       "50000",
		Size:        3,
		Value:       "1500",
		Fee:         "0.75",
		FeeCurrency: "USDT",
		CreatedAt:   7000,
	}})
	if len(out) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(out))
	}
	tr := out[0]
	if tr.Symbol != "XBT" {
		t.Errorf("expected contract suffix stripped, got %s", tr.Symbol)
	}
	if tr.Side != "BUY" || tr.PositionSide != "LONG" || tr.Qty != 3 || tr.Commission != 0.75 {
		t.Errorf("unexpected trade: %+v", tr)
	}
}

func TestTransformBalanceNil(t *testing.T) {
	b := TransformBalance(nil)
	if b == nil {
		t.Fatal("expected zeroed balance for nil input")
	}
	if b.Balance != 0 || b.Equity != 0 {
		t.Errorf("expected zeroed fields, got %+v", b)
	}
}

func TestTransformBalanceValues(t *testing.T) {
	b := TransformBalance(&Account{
		Currency:       "USDT",
		AccountEquity:  101.2,
		MarginBalance:  100.5,
		PositionMargin: 20,
		OrderMargin:    5.5,
		FrozenFunds:    1,
		UnrealisedPNL:  -2.3,
	})
	if b.Symbol != "USDT" || b.Balance != 100.5 || b.Equity != 101.2 {
		t.Errorf("unexpected balance: %+v", b)
	}
	if b.UsedMargin != 25.5 || b.FreezedMargin != 1 || b.UnrealizedPnl != -2.3 {
		t.Errorf("unexpected margins: %+v", b)
	}
}

func TestTransformPositionsSideFromQty(t *testing.T) {
	out := TransformPositions([]Position{
		{Symbol: "ETHUSDTM", CurrentQty: 2, CrossMode: true},
		{Symbol: "ETHUSDTM", CurrentQty: -1, CrossMode: false},
	})
	if out[0].PositionSide != "LONG" || out[1].PositionSide != "SHORT" {
		t.Errorf("unexpected sides: %s %s", out[0].PositionSide, out[1].PositionSide)
	}
	if out[0].Isolated || !out[1].Isolated {
		t.Errorf("unexpected margin modes: %+v", out)
	}
	if out[0].Symbol != "ETH" {
		t.Errorf("expected contract suffix stripped, got %s", out[0].Symbol)
	}
}

func TestTransformContractsStatus(t *testing.T) {
	out := TransformContracts([]Contract{
		{Symbol: "XBTUSDTM", Status: "Open", TickSize: 0.01, LotSize: 1},
		{Symbol: "OLDUSDTM", Status: "Closed"},
		{Symbol: "NEWUSDTM", Status: "Init"},
		{Symbol: "PAUSEDUSDTM", Status: "Paused"},
		{Symbol: "ODDUSDTM", Status: "BeingSettled"},
	})
	if out[0].Status != models.ContractNormal || !out[0].APIStateOpen {
		t.Errorf("unexpected open contract: %+v", out[0])
	}
	if out[0].PricePrecision != 2 || out[0].ContractID != "XBTUSDTM" {
		t.Errorf("unexpected precision or id: %+v", out[0])
	}
	if out[1].Status != models.ContractOff {
		t.Errorf("expected off status, got %s", out[1].Status)
	}
	if out[2].Status != models.ContractPreOnline {
		t.Errorf("expected preOnline status, got %s", out[2].Status)
	}
	if out[3].Status != models.ContractRestrictedAPI {
		t.Errorf("expected restrictedAPI status, got %s", out[3].Status)
	}
	if out[4].Status != models.ContractUnknown {
		t.Errorf("expected unknown status, got %s", out[4].Status)
	}
}

func TestTransformKLinesReversesOrder(t *testing.T) {
	out := TransformKLines([]Candle{
		{1000, 1, 3, 1, 2, 10},
		{2000, 2, 4, 2, 3, 20},
		{3000, 3, 5, 3, 4, 30},
	})
	if len(out) != 3 {
		t.Fatalf("expected 3 klines, got %d", len(out))
	}
	if out[0].Timestamp != 3000 || out[2].Timestamp != 1000 {
		t.Errorf("expected newest-first order, got %+v", out)
	}
	if out[0].Open != 3 || out[0].High != 5 || out[0].Low != 3 || out[0].Close != 4 || out[0].Volume != 30 {
		t.Errorf("unexpected head candle: %+v", out[0])
	}
}

func TestTransformWSKLine(t *testing.T) {
	tick, ok := TransformWSKLine(&wsCandleData{
		Symbol:  "XBTUSDTM",
		Candles: []string{"1700000000", "1", "2", "3", "0.5", "10"},
	})
	if !ok {
		t.Fatal("expected valid tick")
	}
	if tick.Timestamp != 1700000000000 {
		t.Errorf("expected seconds scaled to milliseconds, got %d", tick.Timestamp)
	}
	if tick.Open != 1 || tick.Close != 2 || tick.High != 3 || tick.Low != 0.5 || tick.Volume != 10 {
		t.Errorf("unexpected tick: %+v", tick)
	}

	if _, ok := TransformWSKLine(&wsCandleData{Candles: []string{"1", "2"}}); ok {
		t.Error("expected truncated row rejected")
	}
	if _, ok := TransformWSKLine(nil); ok {
		t.Error("expected nil input rejected")
	}
}

func TestGranularityMapping(t *testing.T) {
	if granularity(models.Period1m) != 1 || granularity(models.Period1h) != 60 || granularity(models.Period1d) != 1440 {
		t.Error("unexpected granularity mapping")
	}
	if topicType(models.Period1m) != "1min" || topicType(models.Period1h) != "1hour" || topicType(models.Period1w) != "1week" {
		t.Error("unexpected topic type mapping")
	}
}

func TestDecimalPlaces(t *testing.T) {
	cases := map[float64]int{0.01: 2, 0.1: 1, 1: 0, 0.0001: 4}
	for in, want := range cases {
		if got := decimalPlaces(in); got != want {
			t.Errorf("decimalPlaces(%v) = %d, want %d", in, got, want)
		}
	}
}
