package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	WS       WSConfig       `yaml:"ws"`
	Session  SessionConfig  `yaml:"session"`
	Grid     GridConfig     `yaml:"grid"`
	State    StateConfig    `yaml:"state"`
	Recorder RecorderConfig `yaml:"recorder"`
	Telegram TelegramConfig `yaml:"telegram"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type WSConfig struct {
	// URL is the engine endpoint. Empty means derive it from Origin;
	// the BOXHIT_WS_URL environment variable overrides both.
	URL    string `yaml:"url"`
	Origin string `yaml:"origin"`
	// ReconnectDelay is the fixed wait between a close and the next
	// dial attempt.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// HeartbeatTimeout forces a reconnect after that much inbound
	// silence; zero disables the watchdog.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
}

type SessionConfig struct {
	Username      string        `yaml:"username"`
	Timeframe     time.Duration `yaml:"timeframe"`
	Stake         float64       `yaml:"stake"`
	PriceCapacity int           `yaml:"price_capacity"`
}

type GridConfig struct {
	PriceStep      float64       `yaml:"price_step"`
	MsPerPoint     time.Duration `yaml:"ms_per_point"`
	PixelsPerPoint float64       `yaml:"pixels_per_point"`
	CellHeight     float64       `yaml:"cell_height"`
	VisibleColumns int           `yaml:"visible_columns"`
	VisibleRows    int           `yaml:"visible_rows"`
	ColumnsBehind  int           `yaml:"columns_behind"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type RecorderConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Schema  string `yaml:"schema"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type MetricsConfig struct {
	// ListenAddr serves /metrics when set, e.g. ":9090".
	ListenAddr string `yaml:"listen_addr"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.WS.Origin == "" {
		cfg.WS.Origin = "http://localhost:5173"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = time.Second
	}
	if cfg.Session.Timeframe == 0 {
		cfg.Session.Timeframe = 2 * time.Second
	}
	if cfg.Session.Stake == 0 {
		cfg.Session.Stake = 10
	}
	if cfg.Session.PriceCapacity == 0 {
		cfg.Session.PriceCapacity = 600
	}
	if cfg.Grid.PriceStep == 0 {
		cfg.Grid.PriceStep = 0.5
	}
	if cfg.Grid.MsPerPoint == 0 {
		cfg.Grid.MsPerPoint = 500 * time.Millisecond
	}
	if cfg.Grid.PixelsPerPoint == 0 {
		cfg.Grid.PixelsPerPoint = 5
	}
	if cfg.Grid.CellHeight == 0 {
		cfg.Grid.CellHeight = 40
	}
	if cfg.Grid.VisibleColumns == 0 {
		cfg.Grid.VisibleColumns = 20
	}
	if cfg.Grid.VisibleRows == 0 {
		cfg.Grid.VisibleRows = 20
	}
	if cfg.Grid.ColumnsBehind == 0 {
		cfg.Grid.ColumnsBehind = 2
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/boxhit-client.db"
	}
	if cfg.Recorder.Schema == "" {
		cfg.Recorder.Schema = "public"
	}
}

func validate(cfg *Config) error {
	if cfg.Session.Timeframe < 500*time.Millisecond || cfg.Session.Timeframe > 10*time.Second {
		return errors.New("session.timeframe must be between 500ms and 10s")
	}
	if cfg.Session.Stake <= 0 {
		return errors.New("session.stake must be > 0")
	}
	if cfg.Grid.PriceStep <= 0 {
		return errors.New("grid.price_step must be > 0")
	}
	if cfg.Recorder.Enabled && cfg.Recorder.DSN == "" {
		return errors.New("recorder.dsn is required when recorder is enabled")
	}
	return nil
}
