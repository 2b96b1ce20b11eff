package engine

import (
	"boxhit-client/internal/ledger"
	"boxhit-client/internal/protocol"
)

// State is the aggregate engine-side view owned by the Session. All
// consumers receive deep copies; only the Session mutates the original.
type State struct {
	Status          Status
	UserID          string
	Username        string
	Balance         float64
	Locked          float64
	Timeframe       int64
	Prices          []protocol.PricePoint
	Contracts       []protocol.Contract
	Positions       map[string]ledger.Position
	SnapshotVersion uint64
	LastError       string
}

func (s State) clone() State {
	out := s
	out.Prices = append([]protocol.PricePoint(nil), s.Prices...)
	out.Contracts = append([]protocol.Contract(nil), s.Contracts...)
	out.Positions = make(map[string]ledger.Position, len(s.Positions))
	for id, pos := range s.Positions {
		out.Positions[id] = pos
	}
	return out
}

// TradeError is a scoped failure for one attempted trade, surfaced
// separately from the connection-level error string so the UI can tie
// it to the contract cell that triggered it.
type TradeError struct {
	ContractID string
	Message    string
}
