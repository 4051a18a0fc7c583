package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"

	"github.com/ShenMuyuan/networkgym/core"
	"github.com/ShenMuyuan/networkgym/internal/logging"
	"github.com/ShenMuyuan/networkgym/internal/observability"
	"github.com/ShenMuyuan/networkgym/telemetry"
	"github.com/ShenMuyuan/networkgym/timectrl"
)

func main() {
	scenarioPath := flag.String("scenario", "", "path to a JSON scenario config (defaults apply when empty)")
	envPath := flag.String("env-config", "", "path to env-configure.json (defaults apply when empty)")
	controllerURL := flag.String(
		"controller",
		"",
		"websocket URL of the telemetry controller; empty runs in loopback mode",
	)
	metricsAddr := flag.String("metrics-addr", "", "listen address for /metrics; empty disables the endpoint")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	scenarioCfg := loadScenario(*scenarioPath)
	envCfg := loadEnv(*envPath)

	_, shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv())
	if err != nil {
		panic(fmt.Errorf("failed to initialise tracing: %w", err))
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: tracing shutdown: %v\n", err)
		}
	}()

	collector, err := observability.NewSimCollector(nil)
	if err != nil {
		panic(fmt.Errorf("failed to register metrics: %w", err))
	}
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "warning: metrics listener: %v\n", err)
			}
		}()
		fmt.Printf("Serving metrics on %s/metrics\n", *metricsAddr)
	}

	rng := rand.New(rand.NewSource(scenarioCfg.Seed))
	scenario := core.BuildScenario(scenarioCfg, rng)
	fmt.Printf("Built scenario: %d BSS, %d nodes, %s at %.1f GHz / %d MHz\n",
		scenarioCfg.BssCount, len(scenario.Nodes),
		scenarioCfg.Standard, scenarioCfg.FrequencyGHz, scenarioCfg.ChannelWidthMHz)

	sched := timectrl.NewScheduler()
	engine := core.NewEngine(scenario, sched, log)
	engine.OnTransmission = func(outcome string) {
		collector.Transmissions.WithLabelValues(outcome).Inc()
	}
	engine.OnSnrObserved = func(snrDb float64) { collector.ObservedSnrDb.Observe(snrDb) }
	engine.OnRateChange = func(bps uint64) { collector.SelectedRateBps.Set(float64(bps)) }
	engine.OnMeasurement = func(records int) { collector.Measurements.Add(float64(records)) }
	engine.OnAction = func(applied bool) {
		if applied {
			collector.ActionsApplied.Inc()
		} else {
			collector.ActionWaitExpiry.Inc()
		}
	}

	bridge := dialBridge(*controllerURL, envCfg, log)
	defer bridge.Close()

	engine.Start()
	engine.ScheduleTelemetry(bridge, envCfg)

	fmt.Printf("Starting simulation: end=%s, measurement interval=%s\n",
		envCfg.EnvEnd(), envCfg.MeasurementInterval())
	sched.Run(envCfg.EnvEnd())

	for _, sta := range scenario.Stations() {
		fmt.Printf("↳ %-16s delivered=%-8d mcs=%d\n",
			sta.Name, engine.SuccessCount(sta.ID), engine.NodeMcs(sta.ID))
	}
	fmt.Println("Simulation complete.")
}

func loadScenario(path string) core.ScenarioConfig {
	if path == "" {
		return core.DefaultScenarioConfig()
	}
	f, err := os.Open(path)
	if err != nil {
		panic(fmt.Errorf("failed to open scenario config %q: %w", path, err))
	}
	defer f.Close()
	cfg, err := core.LoadScenarioConfig(f)
	if err != nil {
		panic(fmt.Errorf("failed to load scenario config: %w", err))
	}
	return cfg
}

func loadEnv(path string) telemetry.EnvConfig {
	if path == "" {
		return telemetry.DefaultEnvConfig()
	}
	f, err := os.Open(path)
	if err != nil {
		panic(fmt.Errorf("failed to open env config %q: %w", path, err))
	}
	defer f.Close()
	cfg, err := telemetry.LoadEnvConfig(f)
	if err != nil {
		panic(fmt.Errorf("failed to load env config: %w", err))
	}
	return cfg
}

func dialBridge(url string, envCfg telemetry.EnvConfig, log logging.Logger) *telemetry.Bridge {
	if url == "" {
		fmt.Println("No controller configured; telemetry runs in loopback mode")
		return telemetry.NewLoopback(0, log)
	}
	bridge, err := telemetry.Dial(url, envCfg.MaxActionWait(), log)
	if err != nil {
		panic(fmt.Errorf("failed to connect to controller: %w", err))
	}
	return bridge
}
