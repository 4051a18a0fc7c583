package core

import (
	"context"
	"math"
	"time"

	"github.com/ShenMuyuan/networkgym/internal/logging"
	"github.com/ShenMuyuan/networkgym/telemetry"
	"github.com/ShenMuyuan/networkgym/timectrl"
)

// shadowSamples is how many shadowed draws are averaged per link when
// building the received-power matrix for telemetry.
const shadowSamples = 100

// MeasurementGroup tags every record the engine emits.
const MeasurementGroup = "MultiBss"

// CcaActionName is the action that retunes the CCA sensitivity of
// every BSS-0 node.
const CcaActionName = "MultiBss::Py2Cpp::CcaNew"

type successRecord struct {
	txStart time.Duration
	ackTime time.Duration
}

// Engine runs the multi-BSS uplink simulation: every station sends
// periodic bursts to its AP, each burst going through control and data
// rate selection, the residential propagation model and a threshold
// check at the receiver. Outcomes feed back into the per-link
// adaptation state, and periodic measurement events ship the link
// matrix, per-node MCS and throughput to the telemetry bridge.
type Engine struct {
	scenario *Scenario
	sched    *timectrl.Scheduler
	prop     *TgaxResidentialModel
	log      logging.Logger

	// managers holds one uplink rate manager per station node,
	// keyed by node ID; links holds the matching per-peer state.
	managers map[int]RateManager
	links    map[int]*Station

	succCount  map[int]uint64
	succAtMark map[int]uint64
	records    map[int][]successRecord
	nodeMcs    map[int]int

	// Instrumentation hooks, optional. Wired up by the caller so the
	// engine stays free of any metrics dependency.
	OnTransmission func(outcome string)
	OnSnrObserved  func(snrDb float64)
	OnRateChange   func(bps uint64)
	OnMeasurement  func(records int)
	OnAction       func(applied bool)
}

// NewEngine builds the engine for a scenario. Each station gets its own
// adaptive rate manager driven by the scheduler clock, with the AP as
// its single peer.
func NewEngine(s *Scenario, sched *timectrl.Scheduler, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Noop()
	}
	e := &Engine{
		scenario:   s,
		sched:      sched,
		prop:       NewTgaxResidentialModel(s.Config.FrequencyGHz*1e9, s.Config.Seed),
		log:        log,
		managers:   make(map[int]RateManager),
		links:      make(map[int]*Station),
		succCount:  make(map[int]uint64),
		succAtMark: make(map[int]uint64),
		records:    make(map[int][]successRecord),
		nodeMcs:    make(map[int]int),
	}
	for _, sta := range s.Stations() {
		ap := s.AP(sta.BSS)
		cfg := AutoMcsConfig{
			TargetBer:        s.Config.TargetBer,
			FixedControlRate: s.Config.FixedControlRate,
			ConvergeAfter:    DefaultAutoMcsConfig().ConvergeAfter,
		}
		mgr := NewAutoMcsManager(sta.Phy, sched, cfg, log)
		mgr.OnRateChange = func(bps uint64) {
			if e.OnRateChange != nil {
				e.OnRateChange(bps)
			}
		}
		e.managers[sta.ID] = mgr
		e.links[sta.ID] = mgr.CreateStation(ap.Name, ap.Phy.Capabilities())
	}
	return e
}

// Propagation exposes the propagation model, shared with telemetry.
func (e *Engine) Propagation() *TgaxResidentialModel { return e.prop }

// Manager returns the rate manager driving the given station node.
func (e *Engine) Manager(nodeID int) RateManager { return e.managers[nodeID] }

// Start schedules the first uplink burst of every station. Stations are
// staggered by a fraction of the packet interval so bursts do not all
// land on the same instant.
func (e *Engine) Start() {
	interval := e.packetInterval()
	stations := e.scenario.Stations()
	for i, sta := range stations {
		offset := interval * time.Duration(i) / time.Duration(len(stations)+1)
		node := sta
		e.sched.Schedule(offset, func() { e.uplinkBurst(node) })
	}
}

func (e *Engine) packetInterval() time.Duration {
	us := e.scenario.Config.PacketIntervalUs
	if us <= 0 {
		us = 5000
	}
	return time.Duration(us) * time.Microsecond
}

// uplinkBurst runs one station's transmission opportunity: optional RTS
// exchange, data vector selection, outcome determination and reporting,
// then schedules the next burst.
func (e *Engine) uplinkBurst(sta *Node) {
	defer e.sched.Schedule(e.packetInterval(), func() { e.uplinkBurst(sta) })

	ap := e.scenario.AP(sta.BSS)
	mgr := e.managers[sta.ID]
	st := e.links[sta.ID]

	if e.scenario.Config.UseRtsCts {
		if !e.rtsExchange(sta, ap, mgr, st) {
			return
		}
	}

	vec, err := mgr.SelectDataVector(st, e.scenario.Config.ChannelWidthMHz)
	if err != nil {
		e.log.Error(context.Background(), "data vector selection failed",
			logging.String("node", sta.Name), logging.Any("error", err))
		return
	}
	e.nodeMcs[sta.ID] = vec.Mode.McsValue()

	retries := e.scenario.Config.RetryLimit
	for attempt := 0; ; attempt++ {
		snr, ok := e.attemptData(sta, ap, vec)
		if ok {
			e.deliver(sta, mgr, st, vec, snr)
			return
		}
		e.countOutcome("failed")
		if attempt >= retries {
			mgr.ReportFinalDataFailed(st)
			e.countOutcome("dropped")
			return
		}
	}
}

// rtsExchange runs the RTS/CTS handshake with its own retry budget.
func (e *Engine) rtsExchange(sta, ap *Node, mgr RateManager, st *Station) bool {
	vec, err := mgr.SelectControlVector(st)
	if err != nil {
		e.log.Error(context.Background(), "control vector selection failed",
			logging.String("node", sta.Name), logging.Any("error", err))
		return false
	}
	for attempt := 0; attempt <= e.scenario.Config.RetryLimit; attempt++ {
		snr, ok := e.attemptData(sta, ap, vec)
		if ok {
			mgr.ReportRtsOk(st, snr)
			return true
		}
	}
	mgr.ReportFinalRtsFailed(st)
	e.countOutcome("rts_dropped")
	return false
}

// attemptData decides whether one frame at the given vector is
// received: the deterministic received power must clear the receiver's
// CCA sensitivity and the per-stream SNR must clear the vector's
// required SNR. A blocked link (zero received power) never succeeds.
func (e *Engine) attemptData(tx, rx *Node, vec TxVector) (float64, bool) {
	rxPower := e.prop.ReceivedPowerDbm(vec.PowerDbm, tx.Position, rx.Position, tx.Bldg, rx.Bldg)
	if rxPower == 0 {
		return 0, false
	}
	if rxPower < rx.Phy.CcaSensitivity {
		return 0, false
	}
	snr := rxPower - rx.Phy.NoiseFloorDbm(vec.ChannelWidth)
	perStream := snr
	if vec.Nss > 1 {
		perStream -= 10 * math.Log10(float64(vec.Nss))
	}
	required := tx.Phy.CalculateRequiredSnr(vec, e.scenario.Config.TargetBer)
	if perStream <= required {
		return snr, false
	}
	return snr, true
}

// deliver books a successful data burst: the A-MPDU (or single-MPDU)
// report to the manager, the success counters and the timing record
// used for access-delay telemetry.
func (e *Engine) deliver(sta *Node, mgr RateManager, st *Station, vec TxVector, snr float64) {
	mpdus := e.scenario.Config.MaxMpdus
	if mpdus < 1 {
		mpdus = 1
	}
	if mpdus > 1 {
		mgr.ReportAmpduTxStatus(st, mpdus, 0, snr, vec.ChannelWidth, vec.Nss)
	} else {
		mgr.ReportDataOk(st, snr, vec.ChannelWidth, vec.Nss)
	}

	e.succCount[sta.ID] += uint64(mpdus)
	e.countOutcome("ok")
	if e.OnSnrObserved != nil {
		e.OnSnrObserved(snr)
	}

	now := e.sched.Now()
	bits := float64(e.scenario.Config.PacketSizeBytes*8) * float64(mpdus)
	airtime := time.Duration(bits / float64(vec.DataRate()) * float64(time.Second))
	e.records[sta.ID] = append(e.records[sta.ID], successRecord{
		txStart: now,
		ackTime: now + airtime,
	})
}

func (e *Engine) countOutcome(outcome string) {
	if e.OnTransmission != nil {
		e.OnTransmission(outcome)
	}
}

// ScheduleTelemetry arms the measurement loop: starting at the
// configured offset, every interval the engine batches a fresh set of
// records, flushes the bridge and blocks (bounded) for an action. The
// CCA retune action is registered before the first event fires.
func (e *Engine) ScheduleTelemetry(bridge *telemetry.Bridge, cfg telemetry.EnvConfig) {
	bridge.RegisterActionCallback(CcaActionName, e.applyBss0Cca)
	e.sched.Schedule(cfg.MeasurementStart(), func() {
		e.measurementEvent(bridge, cfg)
	})
}

func (e *Engine) measurementEvent(bridge *telemetry.Bridge, cfg telemetry.EnvConfig) {
	n := e.generateMeasurement(bridge, cfg)
	if err := bridge.Flush(); err != nil {
		e.log.Error(context.Background(), "measurement flush failed",
			logging.Any("error", err))
	}
	if e.OnMeasurement != nil {
		e.OnMeasurement(n)
	}
	applied := bridge.AwaitAction()
	if e.OnAction != nil {
		e.OnAction(applied)
	}
	e.sched.Schedule(cfg.MeasurementInterval(), func() {
		e.measurementEvent(bridge, cfg)
	})
}

// generateMeasurement builds one batch of records and queues them on
// the bridge, returning the record count. Matrix record IDs pack the
// receiver's index within BSS 0 into the high bits and the transmitter
// node ID into the low five; per-node records use the node's index
// within BSS 0 or its raw node ID.
func (e *Engine) generateMeasurement(bridge *telemetry.Bridge, cfg telemetry.EnvConfig) int {
	now := e.sched.Now()
	ts := now.Milliseconds()
	bssCount := e.scenario.Config.BssCount
	n := 0

	// Received-power matrix into BSS 0, averaged over shadowed draws.
	for _, rx := range e.scenario.Nodes {
		if rx.BSS != 0 {
			continue
		}
		for _, tx := range e.scenario.Nodes {
			if tx.ID == rx.ID {
				continue
			}
			sum := 0.0
			for i := 0; i < shadowSamples; i++ {
				sum += e.prop.SampleReceivedPowerDbm(
					tx.Phy.TxPowerDbm, tx.Position, rx.Position, tx.Bldg, rx.Bldg)
			}
			m := telemetry.Measurement{
				Group:       MeasurementGroup,
				ID:          (rx.ID/bssCount)<<5 | tx.ID&0x1f,
				TimestampMs: ts,
			}
			m.Append("RxPowerDbmMatrix", sum/shadowSamples)
			bridge.AppendMeasurement(m)
			n++
		}
	}

	// Per-node MCS for BSS 0.
	for _, node := range e.scenario.Nodes {
		if node.BSS != 0 || node.Kind != NodeStation {
			continue
		}
		m := telemetry.Measurement{
			Group:       MeasurementGroup,
			ID:          node.ID / bssCount,
			TimestampMs: ts,
		}
		m.Append("McsIndex", float64(e.nodeMcs[node.ID]))
		bridge.AppendMeasurement(m)
		n++
	}

	// Per-station uplink throughput over the last interval.
	intervalSec := cfg.MeasurementInterval().Seconds()
	for _, sta := range e.scenario.Stations() {
		delta := e.succCount[sta.ID] - e.succAtMark[sta.ID]
		e.succAtMark[sta.ID] = e.succCount[sta.ID]
		mbps := float64(delta) * float64(e.scenario.Config.PacketSizeBytes*8) / intervalSec / 1e6
		m := telemetry.Measurement{
			Group:       MeasurementGroup,
			ID:          sta.ID,
			TimestampMs: ts,
		}
		m.Append("UplinkThptMbps", mbps)
		bridge.AppendMeasurement(m)
		n++
	}

	// Access delay for the first station, mean gap between one burst's
	// acknowledgement and the next burst's start. Defaults to the full
	// interval when fewer than two bursts landed.
	vr := e.scenario.Nodes[bssCount]
	m := telemetry.Measurement{
		Group:       MeasurementGroup,
		ID:          vr.ID,
		TimestampMs: ts,
	}
	m.Append("AccessDelayMs", e.accessDelayMs(vr.ID, cfg))
	bridge.AppendMeasurement(m)
	n++

	// Node positions, once per node per batch.
	for _, node := range e.scenario.Nodes {
		m := telemetry.Measurement{
			Group:       MeasurementGroup,
			ID:          node.ID,
			TimestampMs: ts,
		}
		m.Append("NodeX", node.Position.X)
		m.Append("NodeY", node.Position.Y)
		bridge.AppendMeasurement(m)
		n++
	}
	return n
}

func (e *Engine) accessDelayMs(nodeID int, cfg telemetry.EnvConfig) float64 {
	recs := e.records[nodeID]
	if len(recs) < 2 {
		return float64(cfg.MeasurementIntervalMs)
	}
	total := time.Duration(0)
	count := 0
	for i := 1; i < len(recs); i++ {
		gap := recs[i].txStart - recs[i-1].ackTime
		if gap < 0 {
			gap = 0
		}
		total += gap
		count++
	}
	e.records[nodeID] = recs[len(recs)-1:]
	return float64(total.Milliseconds()) / float64(count)
}

// applyBss0Cca retunes the CCA sensitivity of every node in BSS 0.
func (e *Engine) applyBss0Cca(value float64) {
	for _, node := range e.scenario.Nodes {
		if node.BSS == 0 {
			node.Phy.CcaSensitivity = value
		}
	}
	e.log.Info(context.Background(), "applied cca action to bss 0",
		logging.Any("cca_dbm", value))
}

// SuccessCount returns how many MPDUs the node has delivered so far.
func (e *Engine) SuccessCount(nodeID int) uint64 { return e.succCount[nodeID] }

// NodeMcs returns the MCS of the node's most recent data selection.
func (e *Engine) NodeMcs(nodeID int) int { return e.nodeMcs[nodeID] }
