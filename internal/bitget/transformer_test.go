package bitget

import (
	"testing"

	"accountflow/models"
)

func TestTransformTransactions(t *testing.T) {
	out := TransformTransactions([]Bill{
		{BillID: "b1", Symbol: "BTCUSDT", Amount: "-0.25", BusinessType: "contract_settle_fee", Coin: "USDT", CTime: "5000"},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(out))
	}
	tx := out[0]
	if tx.TranID != "b1" || tx.IncomeType != "contract_settle_fee" || tx.Income != -0.25 || tx.Time != 5000 {
		t.Errorf("unexpected transaction: %+v", tx)
	}
}

func TestTransformTradesSumsFees(t *testing.T) {
	out := TransformTrades([]Fill{{
		TradeID:     "t1",
		OrderID:     "o1",
		Symbol:      "ETHUSDT",
		Side:        "buy",
		Price:       "2000",
		BaseVolume:  "0.5",
		QuoteVolume: "1000",
		Profit:      "12.5",
		TradeScope:  "taker",
		PosMode:     "long",
		CTime:       "7000",
		FeeDetail: []struct {
			FeeCoin  string `json:"feeCoin"`
			TotalFee string `json:"totalFee"`
		}{
			{FeeCoin: "USDT", TotalFee: "-0.4"},
			{FeeCoin: "USDT", TotalFee: "-0.1"},
		},
	}})
	if len(out) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(out))
	}
	tr := out[0]
	if tr.Commission != -0.5 || tr.CommissionAsset != "USDT" {
		t.Errorf("unexpected commission: %f %s", tr.Commission, tr.CommissionAsset)
	}
	if tr.Side != "BUY" || tr.PositionSide != "LONG" || tr.RealisedPNL != 12.5 {
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
		MarginCoin:    "USDT",
		AccountEquity: "101.2",
		Available:     "75",
		Locked:        "25.5",
		UnrealizedPL:  "1.5",
	})
	if b.Symbol != "USDT" || b.Balance != 100.5 || b.Equity != 101.2 {
		t.Errorf("unexpected balance: %+v", b)
	}
	if b.AvailableMargin != 75 || b.UsedMargin != 25.5 {
		t.Errorf("unexpected margins: %+v", b)
	}
}

func TestTransformPositionsSide(t *testing.T) {
	out := TransformPositions([]Position{
		{Symbol: "ETHUSDT", HoldSide: "long", MarginMode: "isolated", Total: "2", MarkPrice: "2000"},
		{Symbol: "ETHUSDT", HoldSide: "short", MarginMode: "crossed", Total: "1"},
	})
	if out[0].PositionSide != "LONG" || out[1].PositionSide != "SHORT" {
		t.Errorf("unexpected sides: %s %s", out[0].PositionSide, out[1].PositionSide)
	}
	if !out[0].Isolated || out[1].Isolated {
		t.Errorf("unexpected margin modes: %+v", out)
	}
	if out[0].PositionValue != 4000 {
		t.Errorf("expected position value 4000, got %f", out[0].PositionValue)
	}
}

func TestTransformContractsStatus(t *testing.T) {
	out := TransformContracts([]Contract{
		{Symbol: "BTCUSDT", SymbolStatus: "normal", PricePlace: "1", VolumePlace: "3"},
		{Symbol: "OLDUSDT", SymbolStatus: "off"},
		{Symbol: "NEWUSDT", SymbolStatus: "limit_open"},
		{Symbol: "ODDUSDT", SymbolStatus: "something_else"},
	})
	if out[0].Status != models.ContractNormal || !out[0].APIStateOpen {
		t.Errorf("unexpected first contract: %+v", out[0])
	}
	if out[0].PricePrecision != 1 || out[0].QuantityPrecision != 3 {
		t.Errorf("unexpected precisions: %+v", out[0])
	}
	if out[1].Status != models.ContractOff || out[1].APIStateClose {
		t.Errorf("unexpected off contract: %+v", out[1])
	}
	if out[2].Status != models.ContractLimitOpen || !out[2].APIStateOpen {
		t.Errorf("unexpected limit_open contract: %+v", out[2])
	}
	if out[3].Status != models.ContractUnknown {
		t.Errorf("expected unknown status, got %s", out[3].Status)
	}
}

func TestTransformKLinesReversesOrder(t *testing.T) {
	out := TransformKLines([]Candle{
		{"1000", "1", "3", "1", "2", "10", "20"},
		{"2000", "2", "4", "2", "3", "20", "60"},
		{"3000", "3", "5", "3", "4", "30", "120"},
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

func TestTransformKLinesSkipsShortRows(t *testing.T) {
	out := TransformKLines([]Candle{{"1000", "1"}})
	if len(out) != 0 {
		t.Errorf("expected truncated row skipped, got %+v", out)
	}
}

func TestGranularityMapping(t *testing.T) {
	cases := map[models.Period]string{
		models.Period1m:  "1m",
		models.Period30m: "30m",
		models.Period1h:  "1H",
		models.Period4h:  "4H",
		models.Period1d:  "1D",
		models.Period1w:  "1W",
		models.Period1M:  "1M",
	}
	for period, want := range cases {
		if got := granularity(period); got != want {
			t.Errorf("granularity(%s) = %q, want %q", period, got, want)
		}
		if got := periodFromGranularity(want); got != period {
			t.Errorf("periodFromGranularity(%q) = %s, want %s", want, got, period)
		}
	}
}
