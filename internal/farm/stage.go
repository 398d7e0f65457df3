package farm

import "github.com/shopspring/decimal"

// Stage is the gamified growth classification of a holding. Display only.
type Stage struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

var (
	stageNoPrice  = Stage{Name: "no price", Icon: "❔"}
	stageRotten   = Stage{Name: "rotten", Icon: "🪰"}
	stageWithered = Stage{Name: "withered", Icon: "🥀"}
	stageSprout   = Stage{Name: "sprout", Icon: "🌱"}
	stageBloom    = Stage{Name: "bloom", Icon: "🌸"}
)

var (
	stageLow  = decimal.NewFromInt(-10)
	stageHigh = decimal.NewFromInt(10)
)

// StageFor classifies a return percentage. nil means no current price is
// known. Boundaries: <= -10 rotten, (-10, 0) withered, [0, 10) sprout,
// >= 10 bloom.
func StageFor(returnPct *decimal.Decimal) Stage {
	if returnPct == nil {
		return stageNoPrice
	}
	switch {
	case returnPct.LessThanOrEqual(stageLow):
		return stageRotten
	case returnPct.IsNegative():
		return stageWithered
	case returnPct.LessThan(stageHigh):
		return stageSprout
	default:
		return stageBloom
	}
}

// ReturnPct is (current/buy - 1) * 100, defined as zero when the buy price
// is zero.
func ReturnPct(current, buy decimal.Decimal) decimal.Decimal {
	if buy.IsZero() {
		return decimal.Zero
	}
	return current.Div(buy).Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100))
}
