package state

import (
	"context"

	"github.com/vmihailenco/msgpack/v5"
)

const prefsKey = "session:prefs"

// Prefs is what the client remembers between runs: who the player was
// and which timeframe they last watched.
type Prefs struct {
	Username    string `msgpack:"username"`
	TimeframeMs int64  `msgpack:"timeframe_ms"`
	UpdatedAtMs int64  `msgpack:"updated_at_ms"`
}

func LoadPrefs(ctx context.Context, store Store) (Prefs, bool, error) {
	if store == nil {
		return Prefs{}, false, nil
	}
	raw, ok, err := store.Get(ctx, prefsKey)
	if err != nil || !ok {
		return Prefs{}, false, err
	}
	var prefs Prefs
	if err := msgpack.Unmarshal(raw, &prefs); err != nil {
		return Prefs{}, false, err
	}
	return prefs, true, nil
}

func SavePrefs(ctx context.Context, store Store, prefs Prefs) error {
	if store == nil {
		return nil
	}
	raw, err := msgpack.Marshal(prefs)
	if err != nil {
		return err
	}
	return store.Set(ctx, prefsKey, raw)
}
