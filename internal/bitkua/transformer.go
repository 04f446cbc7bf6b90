package bitkua

import (
	"sort"
	"strings"
	"time"

	"accountflow/models"
)

const createdAtLayout = "2006-01-02 15:04:05"

// TransformBots normalizes the platform records. Symbols lose their dash
// (DOGE-USDT becomes DOGEUSDT) and the result is sorted by symbol so
// subscribers render a stable list.
func TransformBots(bots []Bot) []models.Bot {
	out := make([]models.Bot, 0, len(bots))
	for _, b := range bots {
		out = append(out, models.Bot{
			ID:            b.ID.String(),
			SecurityToken: b.SecurityToken,
			Symbol:        strings.ReplaceAll(b.Symbol, "-", ""),
			Amount:        b.Amount,
			Status:        b.Active,
			Exchange:      b.Exchange,
			Strategy:      b.Estrategia,
			PositionSide:  b.PositionSide,
			Count:         b.Count,
			Safe:          b.Safe == "yes",
			CreatedAt:     parseCreatedAt(b.CreatedAt),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func parseCreatedAt(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(createdAtLayout, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
