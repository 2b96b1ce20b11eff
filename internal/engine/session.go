package engine

import (
	"context"
	"sync"
	"time"

	"boxhit-client/internal/ledger"
	"boxhit-client/internal/metrics"
	"boxhit-client/internal/protocol"

	"go.uber.org/zap"
)

// Transport is the socket the session drives. The session owns all
// reconnect policy; the transport only dials, sends and closes.
type Transport interface {
	Dial(ctx context.Context) error
	Send(ctx context.Context, data []byte) error
	Close() error
	Open() bool
}

const (
	defaultReconnectDelay = time.Second
	sendTimeout           = 5 * time.Second
)

type Config struct {
	Username string
	// ReconnectDelay is the fixed wait between a transport close and
	// the next dial attempt.
	ReconnectDelay time.Duration
	// HeartbeatTimeout forces a transport close after this much inbound
	// silence. Zero disables the watchdog.
	HeartbeatTimeout time.Duration
	PriceCapacity    int
}

// Session is the engine-side state machine: it performs the handshake,
// ingests snapshots and incremental updates, tracks the trade
// lifecycle and schedules reconnects. State mutations happen
// synchronously inside transport callbacks; subscribers observe
// deep-copy snapshots after each transition completes.
type Session struct {
	cfg Config
	tr  Transport
	log *zap.Logger
	met *metrics.Metrics
	now func() int64

	mu            sync.Mutex
	st            State
	prices        *priceRing
	ctx           context.Context
	shouldConnect bool
	welcomed      bool
	subscribedTf  int64
	reconnect     *time.Timer
	watchdog      *time.Timer
	stateSubs     []func(State)
	tradeSubs     []func(TradeError)
}

func NewSession(cfg Config, tr Transport, log *zap.Logger, met *metrics.Metrics) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if met == nil {
		met = metrics.NewNoop()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		cfg:    cfg,
		tr:     tr,
		log:    log,
		met:    met,
		now:    func() int64 { return time.Now().UnixMilli() },
		st:     initialState(),
		prices: newPriceRing(cfg.PriceCapacity),
		ctx:    context.Background(),
	}
}

func initialState() State {
	return State{Status: StatusIdle, Positions: make(map[string]ledger.Position)}
}

// OnStateChange registers a subscriber invoked with a read-only state
// snapshot after every applied transition. Callbacks run outside the
// session lock, after the mutation is fully applied.
func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateSubs = append(s.stateSubs, fn)
}

// OnTradeError registers a subscriber for scoped trade failures.
func (s *Session) OnTradeError(fn func(TradeError)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tradeSubs = append(s.tradeSubs, fn)
}

// State returns a snapshot of the current engine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Connect starts the session. It returns immediately; progress is
// observed through the state subscription.
func (s *Session) Connect(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.shouldConnect {
		s.mu.Unlock()
		return
	}
	s.shouldConnect = true
	s.ctx = ctx
	s.st.Status = StatusConnecting
	s.st.LastError = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notifyState(snap)
	go s.dial(ctx)
}

// Disconnect is a hard reset: it cancels any pending reconnect, closes
// the transport and clears all engine-derived state. Safe to call when
// already disconnected.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.shouldConnect = false
	s.welcomed = false
	s.subscribedTf = 0
	s.stopTimersLocked()
	s.st = initialState()
	s.prices = newPriceRing(s.cfg.PriceCapacity)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	_ = s.tr.Close()
	s.notifyState(snap)
}

// Subscribe selects the contract stream for the given timeframe (ms).
// Before the handshake completes the request is queued and sent on
// welcome; afterwards it is sent immediately and the session drops
// back to awaiting_snapshot until the replacement snapshot lands.
func (s *Session) Subscribe(timeframe int64) {
	s.mu.Lock()
	s.subscribedTf = timeframe
	s.st.Timeframe = timeframe
	sendNow := s.welcomed && s.tr.Open()
	if sendNow && (s.st.Status == StatusLive || s.st.Status == StatusAwaitingSnapshot) {
		s.st.Status = StatusAwaitingSnapshot
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notifyState(snap)
	if sendNow {
		s.send(protocol.TypeSubscribe, protocol.Subscribe{Timeframe: timeframe})
	}
}

// PlaceTrade sends a place_trade command. No optimistic position is
// created; the authoritative position appears only on trade_confirmed.
func (s *Session) PlaceTrade(contractID string, amount float64) {
	if !s.tr.Open() {
		s.notifyTradeError(TradeError{ContractID: contractID, Message: "not connected"})
		return
	}
	s.met.TradesPlaced.Inc()
	s.send(protocol.TypePlaceTrade, protocol.PlaceTrade{ContractID: contractID, Amount: amount})
}

// HandleOpen is the transport open callback: it enters the handshake
// state, announces identity and requests the canonical position
// ledger so the server stays the single source of truth after any gap.
func (s *Session) HandleOpen() {
	s.mu.Lock()
	if !s.shouldConnect {
		s.mu.Unlock()
		return
	}
	s.welcomed = false
	s.st.Status = StatusHandshake
	s.st.LastError = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notifyState(snap)
	s.resetWatchdog()
	s.send(protocol.TypeHello, protocol.Hello{Username: s.cfg.Username})
	s.send(protocol.TypeGetPositions, protocol.GetPositions{})
}

// HandleClose is the transport close callback. While the caller still
// wants a connection it schedules exactly one reconnect attempt;
// after an explicit Disconnect it settles in idle.
func (s *Session) HandleClose(err error) {
	s.mu.Lock()
	s.stopWatchdogLocked()
	if !s.shouldConnect {
		s.st.Status = StatusIdle
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notifyState(snap)
		return
	}
	s.welcomed = false
	s.st.Status = StatusDisconnected
	if err != nil {
		s.st.LastError = err.Error()
	}
	s.scheduleReconnectLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.notifyState(snap)
}

// HandleMessage is the transport message callback. The transition is
// fully applied under the lock before any subscriber observes it.
func (s *Session) HandleMessage(data []byte) {
	s.resetWatchdog()
	msg, err := protocol.Decode(data)
	if err != nil {
		s.met.DecodeFailures.Inc()
		s.log.Warn("dropping malformed frame", zap.Error(err))
		s.mu.Lock()
		s.st.Status = StatusError
		s.st.LastError = "malformed payload"
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notifyState(snap)
		return
	}
	if msg == nil {
		return
	}
	if _, ok := msg.(*protocol.Heartbeat); ok {
		s.send(protocol.TypePong, protocol.Pong{Timestamp: s.now()})
		return
	}

	s.mu.Lock()
	changed, tradeErr := s.applyLocked(msg)
	snap := s.snapshotLocked()
	var sendSubscribe int64
	if _, ok := msg.(*protocol.Welcome); ok {
		sendSubscribe = s.subscribedTf
	}
	s.mu.Unlock()

	if sendSubscribe != 0 {
		s.send(protocol.TypeSubscribe, protocol.Subscribe{Timeframe: sendSubscribe})
	}
	if changed {
		s.notifyState(snap)
	}
	if tradeErr != nil {
		s.notifyTradeError(*tradeErr)
	}
}

func (s *Session) applyLocked(msg any) (bool, *TradeError) {
	switch m := msg.(type) {
	case *protocol.Welcome:
		s.welcomed = true
		s.st.UserID = m.UserID
		s.st.Username = m.Username
		s.st.Balance = m.Balance
		s.st.Locked = m.Locked
		s.st.Status = StatusAwaitingSnapshot
		return true, nil

	case *protocol.Snapshot:
		if s.subscribedTf != 0 && m.Timeframe != s.subscribedTf {
			s.log.Debug("discarding snapshot for stale timeframe", zap.Int64("timeframe", m.Timeframe))
			return false, nil
		}
		s.prices.Replace(m.PriceHistory)
		s.st.Prices = s.prices.Points()
		s.st.Contracts = append([]protocol.Contract(nil), m.Contracts...)
		s.st.Timeframe = m.Timeframe
		s.st.SnapshotVersion++
		s.st.Status = StatusLive
		s.st.LastError = ""
		s.met.SnapshotsApplied.Inc()
		return true, nil

	case *protocol.PriceTick:
		if !s.prices.Append(protocol.PricePoint{Price: m.Price, Timestamp: m.Timestamp}) {
			s.met.TicksDropped.Inc()
			return false, nil
		}
		s.st.Prices = s.prices.Points()
		return true, nil

	case *protocol.ContractUpdate:
		if s.subscribedTf != 0 && m.Timeframe != s.subscribedTf {
			s.log.Debug("discarding contract update for stale timeframe", zap.Int64("timeframe", m.Timeframe))
			return false, nil
		}
		s.st.Contracts = append([]protocol.Contract(nil), m.Contracts...)
		return true, nil

	case *protocol.TradeConfirmed:
		s.st.Positions[m.TradeID] = ledger.Position{
			ContractID: m.ContractID,
			TradeID:    m.TradeID,
			Amount:     m.Amount,
			Timestamp:  m.Timestamp,
		}
		s.st.Balance = m.Balance
		return true, nil

	case *protocol.VerificationHit:
		key, ok := ledger.ResolveTradeKey(s.st.Positions, m.TradeID, m.ContractID)
		if !ok {
			return false, nil
		}
		pos := s.st.Positions[key]
		if pos.Resolved {
			return false, nil
		}
		pos.VerifiedAt = m.TriggerTs
		s.st.Positions[key] = pos
		return true, nil

	case *protocol.TradeResult:
		key, ok := ledger.ResolveTradeKey(s.st.Positions, m.TradeID, m.ContractID)
		if !ok {
			s.met.UnmatchedResults.Inc()
			s.log.Warn("trade result matches no known position",
				zap.String("trade_id", m.TradeID), zap.String("contract_id", m.ContractID))
			return false, nil
		}
		pos := s.st.Positions[key]
		if pos.Resolved {
			return false, nil
		}
		pos.Resolved = true
		pos.Won = m.Won
		pos.Payout = m.Payout
		pos.Profit = m.Profit
		pos.SettledAt = m.Timestamp
		s.st.Positions[key] = pos
		s.st.Balance = m.Balance
		return true, nil

	case *protocol.BalanceUpdate:
		s.st.Balance = m.Balance
		if m.Locked != nil {
			s.st.Locked = *m.Locked
		}
		return true, nil

	case *protocol.PositionsSnapshot:
		positions := make(map[string]ledger.Position, len(m.OpenPositions)+len(m.History))
		for _, wp := range append(append([]protocol.WirePosition(nil), m.OpenPositions...), m.History...) {
			pos := ledger.Position{
				ContractID: wp.ContractID,
				TradeID:    wp.TradeID,
				Amount:     wp.Amount,
				Timestamp:  wp.Timestamp,
				Payout:     wp.Payout,
				Profit:     wp.Profit,
			}
			if wp.Won != nil {
				pos.Resolved = true
				pos.Won = *wp.Won
			}
			positions[wp.TradeID] = pos
		}
		s.st.Positions = positions
		s.st.Balance = m.Balance
		s.st.Locked = m.Locked
		return true, nil

	case *protocol.Ack:
		if m.OK {
			return false, nil
		}
		if m.Command == protocol.TypePlaceTrade {
			s.met.TradesRejected.Inc()
			return false, &TradeError{ContractID: m.Context, Message: m.Error}
		}
		s.st.LastError = m.Error
		return true, nil

	case *protocol.EngineError:
		s.st.Status = StatusError
		s.st.LastError = m.Message
		return true, nil

	case *protocol.EngineStatus:
		s.log.Info("engine status", zap.String("status", m.Status), zap.String("message", m.Message))
		return false, nil
	}
	return false, nil
}

func (s *Session) dial(ctx context.Context) {
	err := s.tr.Dial(ctx)
	if err == nil {
		return
	}
	s.mu.Lock()
	if !s.shouldConnect {
		s.mu.Unlock()
		return
	}
	s.st.Status = StatusDisconnected
	s.st.LastError = err.Error()
	s.scheduleReconnectLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.log.Warn("dial failed", zap.Error(err))
	s.notifyState(snap)
}

func (s *Session) scheduleReconnectLocked() {
	if s.reconnect != nil {
		return
	}
	s.met.Reconnects.Inc()
	s.reconnect = time.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.mu.Lock()
		s.reconnect = nil
		if !s.shouldConnect {
			s.mu.Unlock()
			return
		}
		s.st.Status = StatusConnecting
		ctx := s.ctx
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notifyState(snap)
		go s.dial(ctx)
	})
}

func (s *Session) resetWatchdog() {
	if s.cfg.HeartbeatTimeout <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchdogLocked()
	if !s.shouldConnect {
		return
	}
	s.watchdog = time.AfterFunc(s.cfg.HeartbeatTimeout, func() {
		s.met.HeartbeatTimeouts.Inc()
		s.log.Warn("no heartbeat within timeout, forcing reconnect",
			zap.Duration("timeout", s.cfg.HeartbeatTimeout))
		_ = s.tr.Close()
	})
}

func (s *Session) stopTimersLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	s.stopWatchdogLocked()
}

func (s *Session) stopWatchdogLocked() {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}

func (s *Session) send(msgType string, msg any) {
	data, err := protocol.Encode(msgType, msg)
	if err != nil {
		s.log.Error("encode failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(s.baseCtx(), sendTimeout)
	defer cancel()
	if err := s.tr.Send(ctx, data); err != nil {
		s.log.Warn("send failed", zap.String("type", msgType), zap.Error(err))
	}
}

func (s *Session) baseCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Session) snapshotLocked() State {
	return s.st.clone()
}

func (s *Session) notifyState(snap State) {
	s.mu.Lock()
	var subs []func(State)
	subs = append(subs, s.stateSubs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Session) notifyTradeError(te TradeError) {
	s.mu.Lock()
	var subs []func(TradeError)
	subs = append(subs, s.tradeSubs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(te)
	}
}
