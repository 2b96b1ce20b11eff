// Package ledger owns the position model: the authoritative map of
// trade id -> position, its projections into the keyings consumers
// need, and the fallback resolution for trade results whose trade id
// drifted from the one the client stored.
package ledger

import "sort"

// Position is one placed wager against a contract. It is created on
// trade_confirmed, optionally flagged by verification_hit, and resolved
// exactly once by trade_result. Positions are never deleted during a
// session; resolved ones remain as history.
type Position struct {
	ContractID string
	TradeID    string
	Amount     float64
	Timestamp  int64
	Resolved   bool
	Won        bool
	Payout     float64
	Profit     float64
	VerifiedAt int64
	SettledAt  int64
}

// Open reports whether the position still awaits its result.
func (p Position) Open() bool {
	return !p.Resolved
}

// ByContract returns the current position per contract id. When a
// contract somehow carries more than one position, the one with the
// greatest timestamp wins; the game rules allow at most one open
// position per contract, so this is a tie-break, not an invariant.
func ByContract(positions map[string]Position) map[string]Position {
	out := make(map[string]Position, len(positions))
	for _, pos := range positions {
		current, ok := out[pos.ContractID]
		if !ok || pos.Timestamp > current.Timestamp {
			out[pos.ContractID] = pos
		}
	}
	return out
}

// History returns all positions ordered most recent first, for the
// bet-history view.
func History(positions map[string]Position) []Position {
	out := make([]Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].TradeID > out[j].TradeID
	})
	return out
}

// OpenCount reports how many positions still await a result.
func OpenCount(positions map[string]Position) int {
	n := 0
	for _, pos := range positions {
		if pos.Open() {
			n++
		}
	}
	return n
}

// ResolveTradeKey finds the ledger key a trade_result should apply to.
// An exact trade-id match wins. Otherwise a linear scan falls back to
// the contract id, but only when exactly one open position exists for
// that contract; ambiguous or absent matches resolve to nothing so a
// desynced result never corrupts an unrelated position.
func ResolveTradeKey(positions map[string]Position, tradeID, contractID string) (string, bool) {
	if _, ok := positions[tradeID]; ok {
		return tradeID, true
	}
	var key string
	matches := 0
	for id, pos := range positions {
		if pos.ContractID == contractID && pos.Open() {
			key = id
			matches++
		}
	}
	if matches == 1 {
		return key, true
	}
	return "", false
}
