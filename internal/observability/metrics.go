package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimCollector bundles Prometheus metrics for the link-adaptation
// engine and the simulation around it.
type SimCollector struct {
	gatherer prometheus.Gatherer

	RateSearches     prometheus.Counter
	RateCacheHits    prometheus.Counter
	TableRebuilds    prometheus.Gauge
	SelectedRateBps  prometheus.Gauge
	Transmissions    *prometheus.CounterVec
	ObservedSnrDb    prometheus.Histogram
	Measurements     prometheus.Counter
	ActionsApplied   prometheus.Counter
	ActionWaitExpiry prometheus.Counter
}

// NewSimCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	searches, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_searches_total",
		Help: "Exhaustive mode searches performed during the warm-up phase.",
	}), "rate_searches_total")
	if err != nil {
		return nil, err
	}
	cacheHits, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rate_cache_hits_total",
		Help: "Data-vector selections served from the per-link decision cache.",
	}), "rate_cache_hits_total")
	if err != nil {
		return nil, err
	}
	rebuilds, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snr_threshold_rebuilds",
		Help: "Times the SNR threshold table has been (re)built.",
	}), "snr_threshold_rebuilds")
	if err != nil {
		return nil, err
	}
	rate, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "selected_rate_bps",
		Help: "Data rate of the most recent rate selection in bit/s.",
	}), "selected_rate_bps")
	if err != nil {
		return nil, err
	}
	transmissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "transmissions_total",
		Help: "Simulated data transmissions, labeled by outcome.",
	}, []string{"outcome"})
	transmissions, err = registerCounterVec(reg, transmissions, "transmissions_total")
	if err != nil {
		return nil, err
	}
	snr, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "observed_snr_db",
		Help:    "SNR observed on successful transmissions, in dB.",
		Buckets: prometheus.LinearBuckets(0, 10, 10),
	}), "observed_snr_db")
	if err != nil {
		return nil, err
	}
	measurements, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "measurements_emitted_total",
		Help: "Measurement records handed to the telemetry bridge.",
	}), "measurements_emitted_total")
	if err != nil {
		return nil, err
	}
	actions, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "actions_applied_total",
		Help: "Actions received from the telemetry bridge and applied.",
	}), "actions_applied_total")
	if err != nil {
		return nil, err
	}
	waits, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "action_wait_timeouts_total",
		Help: "Bounded waits for an external action that expired with no action.",
	}), "action_wait_timeouts_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:         gatherer,
		RateSearches:     searches,
		RateCacheHits:    cacheHits,
		TableRebuilds:    rebuilds,
		SelectedRateBps:  rate,
		Transmissions:    transmissions,
		ObservedSnrDb:    snr,
		Measurements:     measurements,
		ActionsApplied:   actions,
		ActionWaitExpiry: waits,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, g prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(g); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return g, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}
