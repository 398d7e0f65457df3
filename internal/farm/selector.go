package farm

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Rule names a lot-selection ordering for sells.
type Rule string

const (
	RuleFIFO        Rule = "FIFO"
	RuleLIFO        Rule = "LIFO"
	RuleLongestHeld Rule = "LONGEST_HELD"
	RuleHighestGain Rule = "HIGHEST_GAIN"
	RuleLowestGain  Rule = "LOWEST_GAIN"
)

func (r Rule) String() string { return string(r) }

// ParseRule accepts the canonical rule names.
func ParseRule(s string) (Rule, error) {
	switch Rule(s) {
	case RuleFIFO, RuleLIFO, RuleLongestHeld, RuleHighestGain, RuleLowestGain:
		return Rule(s), nil
	default:
		return "", fmt.Errorf("unknown selection rule: %q", s)
	}
}

// SelectLots orders the open-lot set under the given rule and returns the lot
// ids. The input must already be in the ledger's natural order (buy time asc,
// id asc); an unknown rule, or a gain rule without a current price, keeps
// that order. Selection never mutates ledger state: callers truncate the
// result to the quantity they want to sell and pass the ids to RecordSell.
func SelectLots(open []Lot, rule Rule, currentPrice *decimal.Decimal) []int64 {
	ordered := make([]Lot, len(open))
	copy(ordered, open)

	switch rule {
	case RuleLIFO:
		// Exact reverse of natural order, not a re-sort.
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	case RuleHighestGain, RuleLowestGain:
		if currentPrice != nil {
			desc := rule == RuleHighestGain
			sort.SliceStable(ordered, func(i, j int) bool {
				gi := currentPrice.Sub(ordered[i].BuyPrice)
				gj := currentPrice.Sub(ordered[j].BuyPrice)
				if desc {
					return gi.GreaterThan(gj)
				}
				return gi.LessThan(gj)
			})
		}
	default:
		// FIFO, LONGEST_HELD and anything unrecognized keep natural order.
	}

	ids := make([]int64, len(ordered))
	for i, l := range ordered {
		ids[i] = l.ID
	}
	return ids
}
