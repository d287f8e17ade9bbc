// Command evolve is a minimal driver over the Orchestration Façade (spec
// §4.12): it parses flags, runs exactly one evolve_step, prints the JSON
// envelope, and exits with the canonical code. It carries no CLI skin of
// its own (no subcommands, no interactive mode) — grounded on
// cmd/nerd/main.go's logger-init-then-exit-code shape, thinned to flag
// parsing plus the exit-code mapping since the rest of that shape (cobra
// command tree, chat UI, campaign management) is out of scope here.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"symbiogen/internal/checkpoint"
	"symbiogen/internal/config"
	"symbiogen/internal/drift"
	"symbiogen/internal/eventstore"
	"symbiogen/internal/evaluator"
	"symbiogen/internal/llm"
	"symbiogen/internal/logging"
	"symbiogen/internal/orchestrator"
	"symbiogen/internal/router"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("evolve", flag.ContinueOnError)
	lineageID := fs.String("lineage", "", "lineage id to step (required)")
	seedPath := fs.String("seed", "", "seed YAML path (required on a lineage's first call)")
	serverCmd := fs.String("server-command", "", "override the tool-invocation server command for this call")
	workspace := fs.String("workspace", "", "workspace root for .evolve/ state (default: current directory)")
	configPath := fs.String("config", "", "optional config YAML overriding the documented defaults")
	verbose := fs.Bool("verbose", false, "enable debug-level file logging under .evolve/logs")
	if err := fs.Parse(args); err != nil {
		return orchestrator.ExitFailed
	}
	if *lineageID == "" {
		fmt.Fprintln(os.Stderr, "evolve: -lineage is required")
		return orchestrator.ExitFailed
	}

	ws := *workspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "evolve: resolving workspace: %v\n", err)
			return orchestrator.ExitFailed
		}
	}

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	if err := logging.Initialize(ws, *verbose, level); err != nil {
		fmt.Fprintf(os.Stderr, "evolve: logging init: %v\n", err)
	}
	defer logging.Get(logging.CategoryBoot).Info("evolve exiting for lineage=%s", *lineageID)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evolve: %v\n", err)
		return orchestrator.ExitFailed
	}

	stateDir := filepath.Join(ws, ".evolve")
	events, err := eventstore.OpenSQLiteStore(filepath.Join(stateDir, "events.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "evolve: opening event store: %v\n", err)
		return orchestrator.ExitFailed
	}
	defer events.Close()

	driftStore, err := drift.NewStore(stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evolve: opening drift store: %v\n", err)
		return orchestrator.ExitFailed
	}

	r := router.New(
		router.Weights{Tokens: cfg.Router.Weights.Tokens, Tools: cfg.Router.Weights.Tools, Depth: cfg.Router.Weights.Depth},
		router.Thresholds{Low: cfg.Router.Thresholds[0], High: cfg.Router.Thresholds[1]},
		events,
	)

	client := llm.NewCircuitBreakerClient("evolve-step", llm.NewRateLimitedClient(llm.NoopClient{}, 2, 4))
	ev := evaluator.New(client)
	deps := orchestrator.Dependencies{
		Phases:     ev,
		Validator:  ev,
		Compressor: nil,
		Runner:     evaluator.NoopRunner{},
		Strategy:   nil,
		Evaluator:  ev,
	}
	metrics := orchestrator.NewMetrics(prometheus.DefaultRegisterer)
	o := orchestrator.New(cfg, events, checkpoint.NewStore(events), driftStore, r, deps, metrics)

	result := o.EvolveStep(context.Background(), *lineageID, *seedPath, *serverCmd)
	out, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "evolve: encoding result: %v\n", err)
		return orchestrator.ExitFailed
	}
	fmt.Println(string(out))
	return result.ExitCode()
}
