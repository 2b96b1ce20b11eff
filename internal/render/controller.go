package render

import (
	"sync"
	"time"

	"boxhit-client/internal/engine"
	"boxhit-client/internal/grid"
	"boxhit-client/internal/ledger"
	"boxhit-client/internal/protocol"

	"go.uber.org/zap"
)

// View is what the DOM-facing layer should show around the canvas.
type View string

const (
	ViewPlaceholder  View = "placeholder"
	ViewLoading      View = "loading"
	ViewLive         View = "live"
	ViewError        View = "error"
	ViewReconnecting View = "reconnecting"
)

const defaultTradeErrorTTL = 4 * time.Second

type ControllerConfig struct {
	Grid grid.Config
	// Stake is the amount wagered when a square is selected.
	Stake float64
	// TradeErrorTTL bounds how long a per-contract failure banner
	// stays up before auto-dismissing.
	TradeErrorTTL time.Duration
}

// Controller orchestrates session, mapper and renderer into the
// lifecycle the UI layer needs: start/stop, timeframe switches and
// view selection. Derived work (ledger projection, coordinate mapping)
// runs only in response to the state subscription, never inside the
// transport's message handler.
type Controller struct {
	cfg     ControllerConfig
	session *engine.Session
	log     *zap.Logger

	mu          sync.Mutex
	renderer    Renderer
	anchor      grid.AnchorState
	lastFedTs   int64
	started     bool
	stopped     bool
	view        View
	banner      string
	tradeErrors map[string]string
	dismissals  map[string]*time.Timer
}

func NewController(cfg ControllerConfig, session *engine.Session, renderer Renderer, log *zap.Logger) *Controller {
	if cfg.TradeErrorTTL <= 0 {
		cfg.TradeErrorTTL = defaultTradeErrorTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		cfg:         cfg,
		session:     session,
		renderer:    renderer,
		log:         log,
		view:        ViewPlaceholder,
		tradeErrors: make(map[string]string),
		dismissals:  make(map[string]*time.Timer),
	}
}

// Start wires the controller into the session and renderer. Calling it
// again after Stop is not supported; a new rendering session gets a
// new controller with a fresh anchor state.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.anchor.Reset(c.cfg.Grid.Timeframe)
	renderer := c.renderer
	c.mu.Unlock()

	renderer.SetGridScale(0, c.cfg.Grid.PriceStep)
	renderer.OnSquareSelected(func(squareID string) {
		c.session.PlaceTrade(squareID, c.cfg.Stake)
	})
	renderer.OnCameraFollowingChanged(func(following bool) {
		c.log.Debug("camera following changed", zap.Bool("following", following))
	})
	c.session.OnStateChange(c.handleState)
	c.session.OnTradeError(c.handleTradeError)
	c.session.Subscribe(c.cfg.Grid.Timeframe)
}

// Stop releases the renderer and cancels pending banner timers. It is
// idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	for id, timer := range c.dismissals {
		timer.Stop()
		delete(c.dismissals, id)
	}
	c.tradeErrors = make(map[string]string)
	renderer := c.renderer
	c.renderer = nil
	c.mu.Unlock()
	if renderer != nil {
		renderer.Destroy()
	}
}

// SwitchTimeframe re-subscribes the session and resets the anchor
// state; pixel anchors measured under the old column width are never
// reused.
func (c *Controller) SwitchTimeframe(timeframe int64) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.cfg.Grid.Timeframe = timeframe
	c.anchor.Reset(timeframe)
	c.lastFedTs = 0
	c.mu.Unlock()
	c.session.Subscribe(timeframe)
}

// View returns what the surrounding UI should currently display.
func (c *Controller) View() (View, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view, c.banner
}

// TradeErrors returns the live per-contract failure banners.
func (c *Controller) TradeErrors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.tradeErrors))
	for id, msg := range c.tradeErrors {
		out[id] = msg
	}
	return out
}

func (c *Controller) handleState(st engine.State) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.view, c.banner = viewFor(st)
	renderer := c.renderer
	fresh := advancingSince(st.Prices, c.lastFedTs)
	if len(fresh) > 0 {
		c.lastFedTs = fresh[len(fresh)-1].Timestamp
	}
	c.mu.Unlock()
	if renderer == nil {
		return
	}

	for _, p := range fresh {
		renderer.AddPriceData(p)
	}
	if st.Status != engine.StatusLive || len(st.Prices) == 0 {
		return
	}
	tick := st.Prices[len(st.Prices)-1]

	c.mu.Lock()
	geometry := grid.Map(c.cfg.Grid, &c.anchor, st.Contracts, tick.Timestamp, tick.Price, renderer)
	columnWidth := c.anchor.ColumnWidth
	var anchorX float64
	if c.anchor.Anchor != nil {
		anchorX = *c.anchor.Anchor
	}
	c.mu.Unlock()

	byContract := ledger.ByContract(st.Positions)
	cells := make(map[string]Cell, len(geometry))
	for _, contract := range st.Contracts {
		geo, ok := geometry[contract.ContractID]
		if !ok {
			continue
		}
		_, hasPos := byContract[contract.ContractID]
		cells[contract.ContractID] = Cell{
			Geometry:         geo,
			ReturnMultiplier: contract.ReturnMultiplier,
			TotalVolume:      contract.TotalVolume,
			Expired:          contract.Status == protocol.ContractExpired,
			HasPosition:      hasPos,
		}
	}

	renderer.SetGridScale(columnWidth, c.cfg.Grid.PriceStep)
	renderer.SetGridOrigin(anchorX, tick.Price)
	renderer.UpdateMultipliers(cells)
}

func (c *Controller) handleTradeError(te engine.TradeError) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.tradeErrors[te.ContractID] = te.Message
	if old, ok := c.dismissals[te.ContractID]; ok {
		old.Stop()
	}
	contractID := te.ContractID
	c.dismissals[contractID] = time.AfterFunc(c.cfg.TradeErrorTTL, func() {
		c.mu.Lock()
		delete(c.tradeErrors, contractID)
		delete(c.dismissals, contractID)
		c.mu.Unlock()
	})
	c.mu.Unlock()
	c.log.Warn("trade rejected", zap.String("contract_id", te.ContractID), zap.String("reason", te.Message))
}

// advancingSince filters the series down to points strictly newer than
// the last one fed to the renderer, guarding against replays around
// snapshot boundaries.
func advancingSince(points []protocol.PricePoint, lastTs int64) []protocol.PricePoint {
	out := make([]protocol.PricePoint, 0, len(points))
	last := lastTs
	for _, p := range points {
		if p.Timestamp <= last {
			continue
		}
		out = append(out, p)
		last = p.Timestamp
	}
	return out
}

func viewFor(st engine.State) (View, string) {
	switch st.Status {
	case engine.StatusIdle:
		return ViewPlaceholder, ""
	case engine.StatusConnecting, engine.StatusHandshake, engine.StatusAwaitingSnapshot:
		return ViewLoading, ""
	case engine.StatusLive:
		return ViewLive, ""
	case engine.StatusError:
		return ViewError, st.LastError
	case engine.StatusDisconnected:
		return ViewReconnecting, st.LastError
	}
	return ViewPlaceholder, ""
}
