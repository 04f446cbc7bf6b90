package exchange

import "accountflow/models"

// MaxKLines caps every candle series. Series are newest-first; evictions
// drop the oldest tail element.
const MaxKLines = 1000

// MergeTick folds one streamed candle into a newest-first series. A tick
// carrying the head's timestamp overwrites the still-forming head in place;
// any other timestamp opens a new candle at the head and evicts the tail
// beyond the cap. The merged series is returned.
func MergeTick(series []models.KLine, tick models.KLine) []models.KLine {
	if len(series) > 0 && series[0].Timestamp == tick.Timestamp {
		series[0] = tick
		return series
	}
	series = append([]models.KLine{tick}, series...)
	if len(series) > MaxKLines {
		series = series[:MaxKLines]
	}
	return series
}
