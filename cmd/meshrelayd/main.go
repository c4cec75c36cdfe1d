// Meshrelayd — offline mesh relay daemon for short emergency alerts.
//
// It advertises and discovers peers on the local network, floods
// alerts across whatever mesh forms, and exposes a local WebSocket
// bridge a UI process can attach to. It can be launched interactively
// (no flags) or non-interactively via CLI flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/meshrelay/internal/config"
	"github.com/1ureka/meshrelay/internal/engine"
	"github.com/1ureka/meshrelay/internal/eventbus"
	"github.com/1ureka/meshrelay/internal/hostapi"
	"github.com/1ureka/meshrelay/internal/transport"
	"github.com/1ureka/meshrelay/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	serviceID := flag.String("service", "", "Service id peers must share to mesh together")
	localName := flag.String("name", "", "This node's advertised name")
	bridgeAddr := flag.String("bridge", "", "Host bridge listen address (host:port, empty for an ephemeral local port)")
	initialAlert := flag.String("alert", "", "Alert text to send immediately on start-up")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("meshrelayd — v%s", version))
	pterm.Println()

	cfg := config.Default()
	if *serviceID == "" && *localName == "" && *bridgeAddr == "" && *initialAlert == "" && flag.NFlag() == 0 {
		cfg = runInteractive(cfg)
	} else {
		if *serviceID != "" {
			cfg.ServiceID = *serviceID
		}
		if *localName != "" {
			cfg.LocalName = *localName
		}
	}

	addr := *bridgeAddr
	if addr == "" {
		addr = "127.0.0.1:0"
	}

	eng, bridge := run(ctx, cfg, addr)
	defer bridge.Close()
	defer eng.Shutdown()

	if *initialAlert != "" {
		if err := eng.SendAlert(*initialAlert); err != nil {
			util.LogWarning("initial alert rejected: %v", err)
		}
	}

	reportStats(ctx, eng)
	<-ctx.Done()
	util.LogInfo("shutting down")
}

// run wires config, the LAN transport, the relay engine, and the host
// bridge together, resolving the engine/adapter circular construction
// with a two-phase build: the engine is created first (no adapter),
// then the transport is created with the engine as its Callbacks, then
// the adapter is wired back into the engine before Start.
func run(ctx context.Context, cfg config.Config, bridgeAddr string) (*engine.Engine, *hostapi.Bridge) {
	bus := eventbus.New()
	eng := engine.New(cfg, bus)

	adapter, err := transport.New(eng)
	if err != nil {
		util.LogError("failed to start transport: %v", err)
		os.Exit(1)
	}
	eng.SetAdapter(adapter)

	if err := eng.Start(ctx); err != nil {
		util.LogError("failed to start engine: %v", err)
		os.Exit(1)
	}

	bridge := hostapi.New(eng, bus)
	port, err := bridge.Start(ctx, bridgeAddr)
	if err != nil {
		util.LogError("failed to start host bridge: %v", err)
		os.Exit(1)
	}

	util.LogSuccess("relay running as %q on service %q", cfg.LocalName, cfg.ServiceID)
	util.LogInfo("host bridge listening on ws://127.0.0.1:%d/events", port)

	return eng, bridge
}

// reportStats logs a one-line engine snapshot every 10 seconds so a
// terminal-only deployment still shows mesh health without a UI
// attached, mirroring the teacher's own periodic stats reporter.
func reportStats(ctx context.Context, eng *engine.Engine) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s := eng.Stats()
				pterm.DefaultLogger.Info(fmt.Sprintf(
					"peers=%d lost=%d seen=%d forwarded=%d dropped=%d",
					s.PeersConnected, s.PeersLost, s.AlertsSeen, s.AlertsForwarded, s.AlertsDroppedDuplicate,
				))
			case <-ctx.Done():
				return
			}
		}
	}()
}

// runInteractive falls back to prompts when no flags are given, in the
// same shape as the teacher's own interactive fallback.
func runInteractive(cfg config.Config) config.Config {
	serviceID, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(fmt.Sprintf("Service id (default %q)", cfg.ServiceID)).
		Show()
	if s := strings.TrimSpace(serviceID); s != "" {
		cfg.ServiceID = s
	}

	name, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(fmt.Sprintf("This node's name (default %q)", cfg.LocalName)).
		Show()
	if s := strings.TrimSpace(name); s != "" {
		cfg.LocalName = s
	}

	pterm.Println()
	return cfg
}
