package main

import (
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ducminhle1904/risk-engine/internal/config"
	"github.com/ducminhle1904/risk-engine/internal/events"
	"github.com/ducminhle1904/risk-engine/internal/gate"
	"github.com/ducminhle1904/risk-engine/internal/logger"
	"github.com/ducminhle1904/risk-engine/internal/monitoring"
	"github.com/ducminhle1904/risk-engine/pkg/reporting"
	"github.com/ducminhle1904/risk-engine/pkg/types"
)

// staticExchange supplies fixed exchange constraints for the simulation. In
// live runs the exchange layer provides these.
type staticExchange struct{}

func (staticExchange) MinOrderSize(string) float64 { return 0.0001 }
func (staticExchange) LotStep(string) float64      { return 0.0001 }

func main() {
	var (
		configFile  = flag.String("config", "", "Session config file (JSON). Defaults when empty.")
		envFile     = flag.String("env", ".env", "Environment file")
		xlsxPath    = flag.String("xlsx", "", "Optional path for the Excel session report")
		ticks       = flag.Int("ticks", 500, "Number of simulated price ticks")
		metricsAddr = flag.String("metrics", "", "Optional listen address for Prometheus metrics (e.g. :9090)")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err == nil {
		fmt.Printf("✅ Loaded environment from %s\n", *envFile)
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Printf("❌ Failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log := logger.New(cfg.Engine.LogLevel)
	g := gate.New(cfg, staticExchange{}, nil, log)
	defer g.Close()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", monitoring.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Printf("❌ Metrics server stopped: %v\n", err)
			}
		}()
		fmt.Printf("📡 Serving metrics on %s/metrics\n", *metricsAddr)
	}

	// Collect risk events off the engine stream while the simulation runs.
	var riskEvents []events.RiskLimitBreached
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range g.Events() {
			if b, ok := e.(events.RiskLimitBreached); ok {
				riskEvents = append(riskEvents, b)
			}
		}
	}()

	runSimulation(g, *ticks)

	report := reporting.SessionReport{
		Final:      g.Ledger().Snapshot(),
		Closed:     g.Ledger().ClosedPositions(""),
		RiskEvents: nil,
	}
	g.Close()
	<-done
	report.RiskEvents = riskEvents

	reporting.PrintSummary(report)
	if *xlsxPath != "" {
		if err := reporting.WriteSessionXLSX(report, *xlsxPath); err != nil {
			fmt.Printf("❌ Failed to write report: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("📊 Session report written to %s\n", *xlsxPath)
	}
}

// runSimulation replays a deterministic price path through the gate: an
// intent every 50 ticks, stop/take-profit directives confirmed immediately.
func runSimulation(g *gate.Gate, ticks int) {
	const symbol = "BTCUSDT"
	const fees = 0.50

	base := 50000.0
	start := time.Now().UTC().Add(-time.Duration(ticks) * time.Minute)

	for i := 0; i < ticks; i++ {
		price := base * (1 + 0.03*math.Sin(float64(i)/40) + 0.0001*float64(i))
		ts := start.Add(time.Duration(i) * time.Minute)

		directives := g.OnPriceTick(types.PriceTick{Symbol: symbol, Price: price, Timestamp: ts})
		for _, d := range directives {
			if _, err := g.ConfirmClose(d.PositionID, d.Price, fees); err != nil {
				fmt.Printf("❌ Close confirmation failed: %v\n", err)
			}
		}

		if i%50 == 25 {
			intent := types.TradeIntent{
				Symbol:         symbol,
				Side:           types.SideLong,
				RequestedEntry: price,
				Strategy:       "sim-trend",
			}
			if order, rej := g.RequestOpen(intent, gate.MarketSnapshot{}); rej != nil {
				fmt.Printf("🚫 Intent rejected: %s\n", rej)
			} else {
				fmt.Printf("✅ Opened %s %s qty=%.6f entry=%.2f stop=%.2f\n",
					order.Side, order.Symbol, order.Quantity, order.EntryPrice, order.StopPrice)
			}
		}
	}
}
