package conversation

// Strategy selects which turns a history window returns. Stateful
// detectors use these to look at recent context, prior blocks, or both.
type Strategy string

const (
	// StrategyRecent returns the most recent turns.
	StrategyRecent Strategy = "recent"
	// StrategySuspicious returns only turns that carry a block marker.
	StrategySuspicious Strategy = "suspicious"
	// StrategyMixed returns recent turns with blocked turns folded in
	// even when they fall outside the recent window.
	StrategyMixed Strategy = "mixed"
)

// Window bounds a history query.
type Window struct {
	Strategy Strategy
	// Limit caps the number of returned turns; 0 means budget-bound only.
	Limit int
}

// selectTurns applies the window strategy over a turn snapshot, newest
// last, and trims the result to the conversation token budget.
func selectTurns(turns []Turn, w Window, tokenBudget int) []Turn {
	var picked []Turn
	switch w.Strategy {
	case StrategySuspicious:
		for _, t := range turns {
			if t.Blocked {
				picked = append(picked, t)
			}
		}
	case StrategyMixed:
		recent := tail(turns, w.Limit)
		inRecent := make(map[int]struct{}, len(recent))
		for _, t := range recent {
			inRecent[t.Seq] = struct{}{}
		}
		for _, t := range turns {
			_, seen := inRecent[t.Seq]
			if t.Blocked && !seen {
				picked = append(picked, t)
			}
		}
		picked = append(picked, recent...)
	default: // StrategyRecent
		picked = turns
	}

	if w.Limit > 0 && w.Strategy != StrategyMixed {
		picked = tail(picked, w.Limit)
	}

	return trimToBudget(picked, tokenBudget)
}

// tail returns the last n elements, or all when n <= 0 or n >= len.
func tail(turns []Turn, n int) []Turn {
	if n <= 0 || n >= len(turns) {
		out := make([]Turn, len(turns))
		copy(out, turns)
		return out
	}
	out := make([]Turn, n)
	copy(out, turns[len(turns)-n:])
	return out
}

// trimToBudget drops oldest turns until the estimated token cost of the
// window fits the budget. Turns are never deleted from the conversation;
// the budget only bounds what detectors see.
func trimToBudget(turns []Turn, budget int) []Turn {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	total := 0
	for _, t := range turns {
		total += turnTokens(t)
	}
	start := 0
	for total > budget && start < len(turns) {
		total -= turnTokens(turns[start])
		start++
	}
	return turns[start:]
}
