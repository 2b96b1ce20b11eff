// Command probe dials a Box Hit engine, completes the handshake,
// waits for the first snapshot and prints a one-line summary. Exit
// status 0 means the engine is reachable and serving the requested
// timeframe.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"boxhit-client/internal/config"
	"boxhit-client/internal/engine"
	"boxhit-client/internal/transport"

	"go.uber.org/zap"
)

func main() {
	urlFlag := flag.String("url", "", "engine websocket url (overrides -origin)")
	origin := flag.String("origin", "http://localhost:5173", "page origin to derive the endpoint from")
	timeframe := flag.Duration("timeframe", 2*time.Second, "timeframe to subscribe")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to wait for a snapshot")
	flag.Parse()

	endpoint, err := config.ResolveEndpoint(*urlFlag, *origin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "probe: %v\n", err)
		os.Exit(2)
	}

	log := zap.NewNop()
	sock := transport.New(endpoint, log)
	session := engine.NewSession(engine.Config{
		Username:       "probe",
		ReconnectDelay: time.Second,
	}, sock, log, nil)
	sock.SetHandlers(transport.Handlers{
		OnOpen:    session.HandleOpen,
		OnMessage: session.HandleMessage,
		OnClose:   session.HandleClose,
	})

	live := make(chan engine.State, 1)
	session.OnStateChange(func(st engine.State) {
		if st.Status == engine.StatusLive {
			select {
			case live <- st:
			default:
			}
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	session.Subscribe(timeframe.Milliseconds())
	session.Connect(ctx)
	defer session.Disconnect()

	select {
	case st := <-live:
		fmt.Printf("ok: %s balance=%.2f prices=%d contracts=%d snapshot_version=%d\n",
			endpoint, st.Balance, len(st.Prices), len(st.Contracts), st.SnapshotVersion)
	case <-ctx.Done():
		st := session.State()
		fmt.Fprintf(os.Stderr, "probe: no snapshot within %s (status=%s last_error=%q)\n",
			*timeout, st.Status, st.LastError)
		os.Exit(1)
	}
}
