package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"boxhit-client/internal/alerts"
	"boxhit-client/internal/config"
	"boxhit-client/internal/engine"
	"boxhit-client/internal/grid"
	"boxhit-client/internal/ledger"
	"boxhit-client/internal/metrics"
	"boxhit-client/internal/recorder"
	"boxhit-client/internal/render"
	"boxhit-client/internal/state"
	"boxhit-client/internal/state/sqlite"
	"boxhit-client/internal/transport"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const wsURLEnv = "BOXHIT_WS_URL"

// App wires the engine client together: store, metrics, transport,
// session, controller and the optional recorder and alert sinks.
type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      state.Store
	prom       *metrics.Prometheus
	sock       *transport.Socket
	session    *engine.Session
	renderer   *render.Headless
	controller *render.Controller
	recorder   *recorder.Writer
	telegram   *alerts.Telegram

	user string

	mu        sync.Mutex
	notified  map[string]struct{}
	lastTick  int64
	timeframe int64
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	username := cfg.Session.Username
	timeframe := cfg.Session.Timeframe.Milliseconds()
	if prefs, ok, err := state.LoadPrefs(context.Background(), store); err != nil {
		log.Warn("loading prefs failed", zap.Error(err))
	} else if ok {
		if username == "" {
			username = prefs.Username
		}
		if prefs.TimeframeMs > 0 && cfg.Session.Timeframe == 2*time.Second {
			// Config left at the default: prefer what the player last
			// watched.
			timeframe = prefs.TimeframeMs
		}
	}
	if username == "" {
		username = "guest-" + uuid.NewString()[:8]
	}

	override := os.Getenv(wsURLEnv)
	if override == "" {
		override = cfg.WS.URL
	}
	endpoint, err := config.ResolveEndpoint(override, cfg.WS.Origin)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	met := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.ListenAddr != "" {
		prom = metrics.NewPrometheus()
		met = prom.Metrics
	}

	rec, err := recorder.New(cfg.Recorder, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sock := transport.New(endpoint, log)
	session := engine.NewSession(engine.Config{
		Username:         username,
		ReconnectDelay:   cfg.WS.ReconnectDelay,
		HeartbeatTimeout: cfg.WS.HeartbeatTimeout,
		PriceCapacity:    cfg.Session.PriceCapacity,
	}, sock, log, met)
	sock.SetHandlers(transport.Handlers{
		OnOpen:    session.HandleOpen,
		OnMessage: session.HandleMessage,
		OnClose:   session.HandleClose,
	})

	renderer := render.NewHeadless()
	controller := render.NewController(render.ControllerConfig{
		Grid: grid.Config{
			Timeframe:      timeframe,
			PriceStep:      cfg.Grid.PriceStep,
			MsPerPoint:     cfg.Grid.MsPerPoint.Milliseconds(),
			PixelsPerPoint: cfg.Grid.PixelsPerPoint,
			CellHeight:     cfg.Grid.CellHeight,
			VisibleColumns: cfg.Grid.VisibleColumns,
			VisibleRows:    cfg.Grid.VisibleRows,
			ColumnsBehind:  cfg.Grid.ColumnsBehind,
		},
		Stake: cfg.Session.Stake,
	}, session, renderer, log)

	a := &App{
		cfg:        cfg,
		log:        log.With(zap.String("endpoint", endpoint), zap.String("username", username)),
		store:      store,
		prom:       prom,
		sock:       sock,
		session:    session,
		renderer:   renderer,
		controller: controller,
		recorder:   rec,
		telegram:   alerts.NewTelegram(cfg.Telegram, log),
		user:       username,
		notified:   make(map[string]struct{}),
		timeframe:  timeframe,
	}
	session.OnStateChange(a.observeState)
	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	defer a.recorder.Close()

	if a.prom != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.prom.Handler())
		server := &http.Server{Addr: a.cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer server.Close()
	}

	a.recorder.Start(ctx)
	a.controller.Start()
	a.session.Connect(ctx)
	a.log.Info("client started", zap.Int64("timeframe_ms", a.timeframe))

	<-ctx.Done()

	a.controller.Stop()
	a.session.Disconnect()

	saveCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := state.SavePrefs(saveCtx, a.store, state.Prefs{
		Username:    a.user,
		TimeframeMs: a.timeframe,
		UpdatedAtMs: time.Now().UnixMilli(),
	}); err != nil {
		a.log.Warn("saving prefs failed", zap.Error(err))
	}
	return ctx.Err()
}

// SwitchTimeframe re-subscribes the stream and remembers the choice
// for the next run.
func (a *App) SwitchTimeframe(timeframeMs int64) {
	a.mu.Lock()
	a.timeframe = timeframeMs
	a.mu.Unlock()
	a.controller.SwitchTimeframe(timeframeMs)
}

// observeState feeds the passive sinks: the recorder gets new ticks
// and contract offers, telegram gets newly settled positions.
func (a *App) observeState(st engine.State) {
	if a.recorder != nil && st.Status == engine.StatusLive {
		a.mu.Lock()
		lastTick := a.lastTick
		if n := len(st.Prices); n > 0 && st.Prices[n-1].Timestamp > lastTick {
			a.lastTick = st.Prices[n-1].Timestamp
		}
		a.mu.Unlock()
		for _, p := range st.Prices {
			if p.Timestamp > lastTick {
				a.recorder.EnqueueTick(st.Timeframe, p)
			}
		}
		for _, c := range st.Contracts {
			a.recorder.EnqueueContract(c)
		}
	}

	for _, pos := range ledger.History(st.Positions) {
		if pos.Open() {
			continue
		}
		a.mu.Lock()
		_, seen := a.notified[pos.TradeID]
		if !seen {
			a.notified[pos.TradeID] = struct{}{}
		}
		a.mu.Unlock()
		if seen {
			continue
		}
		a.log.Info("trade settled",
			zap.String("trade_id", pos.TradeID),
			zap.String("contract_id", pos.ContractID),
			zap.Bool("won", pos.Won),
			zap.Float64("profit", pos.Profit))
		notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.telegram.NotifyTradeResult(notifyCtx, pos); err != nil {
			a.log.Warn("telegram notify failed", zap.Error(err))
		}
		cancel()
	}
}
