package core

import (
	"context"
	"math"
	"time"

	"github.com/ShenMuyuan/networkgym/internal/logging"
)

// SimClock provides the elapsed simulation time. The rate selector
// never reads the wall clock; the scheduler that drives the simulation
// supplies this.
type SimClock interface {
	Now() time.Duration
}

// RateManager is the link-adaptation strategy surface: estimating SNR
// for a candidate shape, choosing data-frame parameters and choosing
// control-frame parameters. The concrete strategy is picked at
// configuration time.
type RateManager interface {
	CreateStation(id string, caps Capabilities) *Station
	EstimateSnr(st *Station, width, nss int) float64
	SelectDataVector(st *Station, allowedWidth int) (TxVector, error)
	SelectControlVector(st *Station) (TxVector, error)

	ReportDataOk(st *Station, dataSnrDb float64, width, nss int)
	ReportAmpduTxStatus(st *Station, nSuccess, nFailed int, dataSnrDb float64, width, nss int)
	ReportRtsOk(st *Station, rtsSnrDb float64)
	ReportFinalDataFailed(st *Station)
	ReportFinalRtsFailed(st *Station)
}

// AutoMcsConfig configures the adaptive manager.
type AutoMcsConfig struct {
	// TargetBer is the maximum acceptable bit error rate at any
	// transmission mode.
	TargetBer float64

	// FixedControlRate switches control frames from the robust-search
	// policy to a fixed 6 Mb/s OFDM vector.
	FixedControlRate bool

	// ConvergeAfter is the simulation time at which the manager stops
	// searching and locks every link to the historical mean MCS.
	ConvergeAfter time.Duration
}

// DefaultAutoMcsConfig returns the defaults used by the multi-BSS
// scenario: BER 1e-7 and a 10 second warm-up phase.
func DefaultAutoMcsConfig() AutoMcsConfig {
	return AutoMcsConfig{
		TargetBer:     1e-7,
		ConvergeAfter: 10 * time.Second,
	}
}

// AutoMcsManager selects, for every outgoing frame, the fastest
// (mode, NSS, width) combination whose SNR threshold the link still
// clears. It runs a two-phase state machine: during Warm-up it searches
// the capability space (with a per-link decision cache) and records
// every successful transmission's MCS; once the simulation clock passes
// ConvergeAfter it goes to Converged and uses the rounded-up mean of the
// recorded MCS indices as an HE mode for all links, with no further
// searches.
type AutoMcsManager struct {
	phy   *Phy
	cfg   AutoMcsConfig
	clock SimClock
	table *ThresholdTable
	log   logging.Logger

	stations map[string]*Station
	history  []int // chosen MCS per successfully delivered (sub-)frame

	currentRateBps uint64
	searches       int
	cacheHits      int

	// OnRateChange fires whenever the selected data rate changes.
	OnRateChange func(bps uint64)
}

// NewAutoMcsManager wires the manager to a PHY and simulation clock.
func NewAutoMcsManager(phy *Phy, clock SimClock, cfg AutoMcsConfig, log logging.Logger) *AutoMcsManager {
	if log == nil {
		log = logging.Noop()
	}
	return &AutoMcsManager{
		phy:      phy,
		cfg:      cfg,
		clock:    clock,
		table:    NewThresholdTable(phy, cfg.TargetBer),
		log:      log,
		stations: make(map[string]*Station),
	}
}

// Table exposes the threshold table, shared read-mostly across links.
func (m *AutoMcsManager) Table() *ThresholdTable { return m.table }

// CreateStation registers per-link state for a new peer.
func (m *AutoMcsManager) CreateStation(id string, caps Capabilities) *Station {
	st := &Station{ID: id, Caps: caps}
	st.reset(m.phy.DefaultMode())
	m.stations[id] = st
	return st
}

// EstimateSnr rescales the station's last observation to the given
// width and stream count.
func (m *AutoMcsManager) EstimateSnr(st *Station, width, nss int) float64 {
	return st.EstimateSnrFor(width, nss)
}

// Converged reports whether the manager has left the Warm-up phase.
// The transition is one-way and purely time-driven.
func (m *AutoMcsManager) Converged() bool {
	return m.clock.Now() >= m.cfg.ConvergeAfter
}

// SelectDataVector picks the transmission parameters for a data frame
// to the station, honouring the allowed channel width.
func (m *AutoMcsManager) SelectDataVector(st *Station, allowedWidth int) (TxVector, error) {
	width := st.Caps.ChannelWidth
	if allowedWidth < width {
		width = allowedWidth
	}

	maxMode := m.phy.DefaultMode()
	selectedNss := 1

	if !m.Converged() {
		if st.lastSnrCached != cacheInitialSnr &&
			st.lastSnrObserved == st.lastSnrCached &&
			width == st.lastChannelWidth {
			// Observation unchanged since the cached decision; skip the search.
			maxMode = st.lastMode
			selectedNss = st.lastNss
			m.cacheHits++
			m.log.Debug(context.Background(), "using cached mode",
				logging.String("station", st.ID),
				logging.String("mode", maxMode.Name),
				logging.Int("nss", selectedNss),
			)
		} else {
			var err error
			maxMode, selectedNss, err = m.search(st, width)
			if err != nil {
				return TxVector{}, err
			}
			st.lastSnrCached = st.lastSnrObserved
			st.lastMode = maxMode
			st.lastNss = selectedNss
		}
	} else {
		maxMode = m.convergedMode()
	}

	st.lastChannelWidth = width

	v := TxVector{
		Mode:            maxMode,
		Nss:             selectedNss,
		ChannelWidth:    width,
		GuardIntervalNs: m.guardIntervalFor(maxMode, st),
		PowerDbm:        m.phy.TxPowerDbm,
	}
	if rate := v.DataRate(); rate != m.currentRateBps {
		m.currentRateBps = rate
		if m.OnRateChange != nil {
			m.OnRateChange(rate)
		}
	}
	return v, nil
}

// search walks the capability space allowed by both endpoints in a
// fixed enumeration order and returns the highest-rate candidate whose
// threshold is strictly below the link's rescaled SNR estimate. First
// found wins ties. When nothing qualifies the default mode is returned
// so the link is never left without a usable selection.
func (m *AutoMcsManager) search(st *Station, width int) (Mode, int, error) {
	m.searches++

	bestRate := uint64(0)
	maxMode := m.phy.DefaultMode()
	selectedNss := 1

	if !m.phy.HtSupported() || !st.Caps.HtSupported {
		for _, mode := range m.phy.ModeList() {
			w := mode.NonHtChannelWidth()
			threshold, err := m.table.Lookup(TxVector{Mode: mode, Nss: 1, ChannelWidth: w})
			if err != nil {
				return Mode{}, 0, err
			}
			rate := mode.DataRate(w, 800, 1)
			snr := st.EstimateSnrFor(w, 1)
			if rate > bestRate && threshold < snr {
				bestRate = rate
				maxMode = mode
			}
		}
		return maxMode, selectedNss, nil
	}

	maxStreams := m.phy.MaxTxStreams
	if st.Caps.Streams < maxStreams {
		maxStreams = st.Caps.Streams
	}

	for _, mode := range m.phy.McsList() {
		switch mode.Class {
		case ModClassHt:
			// If both sides are VHT or HE capable, only the newer
			// class is searched.
			if m.phy.VhtSupported() && st.Caps.VhtSupported {
				continue
			}
			if m.phy.HeSupported() && st.Caps.HeSupported {
				continue
			}
			gi := htGuardInterval(m.phy.ShortGuardInt, st.Caps.ShortGuardInterval)
			// NSS is derived from the MCS index: one mode per stream count.
			nss := mode.Mcs/8 + 1
			if !mode.IsAllowed(width, nss) || nss > maxStreams {
				continue
			}
			rate, err := m.consider(st, mode, width, gi, nss, &bestRate)
			if err != nil {
				return Mode{}, 0, err
			}
			if rate {
				maxMode = mode
				selectedNss = nss
			}
		case ModClassVht:
			if m.phy.HeSupported() && st.Caps.HeSupported {
				continue
			}
			if !m.phy.VhtSupported() || !st.Caps.VhtSupported {
				continue
			}
			gi := htGuardInterval(m.phy.ShortGuardInt, st.Caps.ShortGuardInterval)
			for nss := 1; nss <= maxStreams; nss++ {
				if !mode.IsAllowed(width, nss) {
					continue
				}
				rate, err := m.consider(st, mode, width, gi, nss, &bestRate)
				if err != nil {
					return Mode{}, 0, err
				}
				if rate {
					maxMode = mode
					selectedNss = nss
				}
			}
		case ModClassHe:
			if !m.phy.HeSupported() || !st.Caps.HeSupported {
				continue
			}
			gi := m.heGuardInterval(st)
			for nss := 1; nss <= maxStreams; nss++ {
				if !mode.IsAllowed(width, nss) {
					continue
				}
				rate, err := m.consider(st, mode, width, gi, nss, &bestRate)
				if err != nil {
					return Mode{}, 0, err
				}
				if rate {
					maxMode = mode
					selectedNss = nss
				}
			}
		}
	}
	return maxMode, selectedNss, nil
}

// consider tests one candidate against the feasibility rule
// (threshold strictly below the rescaled SNR estimate) and the current
// best rate, updating bestRate when the candidate wins.
func (m *AutoMcsManager) consider(st *Station, mode Mode, width, gi, nss int, bestRate *uint64) (bool, error) {
	threshold, err := m.table.Lookup(TxVector{Mode: mode, Nss: nss, ChannelWidth: width})
	if err != nil {
		return false, err
	}
	rate := mode.DataRate(width, gi, nss)
	snr := st.EstimateSnrFor(width, nss)
	if rate > *bestRate && threshold < snr {
		m.log.Debug(context.Background(), "candidate mode",
			logging.String("mode", mode.Name),
			logging.Int("nss", nss),
			logging.Int("width", width),
			logging.Any("rate", rate),
			logging.Any("threshold", threshold),
			logging.Any("snr", snr),
		)
		*bestRate = rate
		return true, nil
	}
	return false, nil
}

// convergedMode returns the HE mode at the rounded-up mean of all
// recorded MCS choices. An empty history falls back to HE MCS 0.
func (m *AutoMcsManager) convergedMode() Mode {
	if len(m.history) == 0 {
		return HeMode(0)
	}
	sum := 0.0
	for _, mcs := range m.history {
		sum += float64(mcs)
	}
	return HeMode(int(math.Ceil(sum / float64(len(m.history)))))
}

// SelectControlVector picks the parameters for control frames such as
// RTS. Under the robust-search policy it returns the basic mode with
// the highest SNR threshold still below the last observed SNR; under
// the fixed policy it always returns 6 Mb/s OFDM.
func (m *AutoMcsManager) SelectControlVector(st *Station) (TxVector, error) {
	if m.cfg.FixedControlRate {
		mode := OfdmMode(6)
		return TxVector{
			Mode:            mode,
			Nss:             1,
			ChannelWidth:    mode.NonHtChannelWidth(),
			GuardIntervalNs: 800,
			PowerDbm:        m.phy.TxPowerDbm,
		}, nil
	}

	maxThreshold := 0.0
	maxMode := m.phy.DefaultMode()
	for _, mode := range m.phy.BasicModes() {
		w := mode.NonHtChannelWidth()
		threshold, err := m.table.Lookup(TxVector{Mode: mode, Nss: 1, ChannelWidth: w})
		if err != nil {
			return TxVector{}, err
		}
		if threshold > maxThreshold && threshold < st.lastSnrObserved {
			maxThreshold = threshold
			maxMode = mode
		}
	}
	return TxVector{
		Mode:            maxMode,
		Nss:             1,
		ChannelWidth:    maxMode.NonHtChannelWidth(),
		GuardIntervalNs: 800,
		PowerDbm:        m.phy.TxPowerDbm,
	}, nil
}

// ReportDataOk records a successful data transmission: the raw SNR
// observation (zero is discarded as "no usable sample") and, once the
// link has left the default mode, the chosen MCS in the selection
// history.
func (m *AutoMcsManager) ReportDataOk(st *Station, dataSnrDb float64, width, nss int) {
	if dataSnrDb == 0 {
		m.log.Warn(context.Background(), "data snr reported as zero; not saving this report",
			logging.String("station", st.ID))
		return
	}
	st.RecordObservation(dataSnrDb, width, nss)
	if st.lastMode.Name != m.phy.DefaultMode().Name {
		m.history = append(m.history, st.lastMode.McsValue())
	}
}

// ReportAmpduTxStatus records an aggregated transmission: one history
// entry per successfully delivered MPDU, then the observation.
func (m *AutoMcsManager) ReportAmpduTxStatus(st *Station, nSuccess, nFailed int, dataSnrDb float64, width, nss int) {
	if dataSnrDb == 0 {
		m.log.Warn(context.Background(), "data snr reported as zero; not saving this report",
			logging.String("station", st.ID))
		return
	}
	for i := 0; i < nSuccess; i++ {
		m.history = append(m.history, st.lastMode.McsValue())
	}
	st.RecordObservation(dataSnrDb, width, nss)
}

// ReportRtsOk records the SNR observed from a CTS response. RTS frames
// are non-HT, so the observed width is at most 20 MHz and NSS is 1.
func (m *AutoMcsManager) ReportRtsOk(st *Station, rtsSnrDb float64) {
	width := m.phy.ChannelWidth
	if width >= 40 {
		width = 20
	}
	st.RecordObservation(rtsSnrDb, width, 1)
}

// ReportFinalDataFailed resets the station after the retry budget for a
// data frame is exhausted, forcing a fresh search on the next request.
// Once Converged, selection ignores per-station state, so the reset has
// no further effect there.
func (m *AutoMcsManager) ReportFinalDataFailed(st *Station) {
	st.reset(m.phy.DefaultMode())
}

// ReportFinalRtsFailed resets the station after a terminal RTS failure.
func (m *AutoMcsManager) ReportFinalRtsFailed(st *Station) {
	st.reset(m.phy.DefaultMode())
}

// Searches returns how many exhaustive searches have run.
func (m *AutoMcsManager) Searches() int { return m.searches }

// CacheHits returns how many selections reused a cached decision.
func (m *AutoMcsManager) CacheHits() int { return m.cacheHits }

// HistoryLen returns the number of recorded MCS choices.
func (m *AutoMcsManager) HistoryLen() int { return len(m.history) }

// CurrentRate returns the data rate of the latest selection in bit/s.
func (m *AutoMcsManager) CurrentRate() uint64 { return m.currentRateBps }

func htGuardInterval(localShortGi, peerShortGi bool) int {
	if localShortGi && peerShortGi {
		return 400
	}
	return 800
}

func (m *AutoMcsManager) heGuardInterval(st *Station) int {
	gi := m.phy.HeGuardIntNs
	if st.Caps.HeGuardIntervalNs > gi {
		gi = st.Caps.HeGuardIntervalNs
	}
	return gi
}

// guardIntervalFor applies the per-class guard interval rules to the
// final vector.
func (m *AutoMcsManager) guardIntervalFor(mode Mode, st *Station) int {
	switch mode.Class {
	case ModClassHe:
		return m.heGuardInterval(st)
	case ModClassHt, ModClassVht:
		return htGuardInterval(m.phy.ShortGuardInt, st.Caps.ShortGuardInterval)
	default:
		return 800
	}
}

// ConstantRateManager is the trivial strategy variant: a fixed data
// vector and a fixed control vector, independent of observed SNR.
// Observations are still recorded so telemetry stays meaningful.
type ConstantRateManager struct {
	phy         *Phy
	DataMode    Mode
	ControlMode Mode
	stations    map[string]*Station
}

// NewConstantRateManager builds the fixed-rate strategy.
func NewConstantRateManager(phy *Phy, dataMode, controlMode Mode) *ConstantRateManager {
	return &ConstantRateManager{
		phy:         phy,
		DataMode:    dataMode,
		ControlMode: controlMode,
		stations:    make(map[string]*Station),
	}
}

func (m *ConstantRateManager) CreateStation(id string, caps Capabilities) *Station {
	st := &Station{ID: id, Caps: caps}
	st.reset(m.phy.DefaultMode())
	m.stations[id] = st
	return st
}

func (m *ConstantRateManager) EstimateSnr(st *Station, width, nss int) float64 {
	return st.EstimateSnrFor(width, nss)
}

func (m *ConstantRateManager) SelectDataVector(st *Station, allowedWidth int) (TxVector, error) {
	width := m.phy.ChannelWidth
	if allowedWidth < width {
		width = allowedWidth
	}
	if !m.DataMode.IsAllowed(width, 1) {
		width = m.DataMode.NonHtChannelWidth()
	}
	gi := 800
	if m.DataMode.Class == ModClassHe {
		gi = m.phy.HeGuardIntNs
	}
	return TxVector{
		Mode:            m.DataMode,
		Nss:             1,
		ChannelWidth:    width,
		GuardIntervalNs: gi,
		PowerDbm:        m.phy.TxPowerDbm,
	}, nil
}

func (m *ConstantRateManager) SelectControlVector(st *Station) (TxVector, error) {
	return TxVector{
		Mode:            m.ControlMode,
		Nss:             1,
		ChannelWidth:    m.ControlMode.NonHtChannelWidth(),
		GuardIntervalNs: 800,
		PowerDbm:        m.phy.TxPowerDbm,
	}, nil
}

func (m *ConstantRateManager) ReportDataOk(st *Station, dataSnrDb float64, width, nss int) {
	st.RecordObservation(dataSnrDb, width, nss)
}

func (m *ConstantRateManager) ReportAmpduTxStatus(st *Station, nSuccess, nFailed int, dataSnrDb float64, width, nss int) {
	st.RecordObservation(dataSnrDb, width, nss)
}

func (m *ConstantRateManager) ReportRtsOk(st *Station, rtsSnrDb float64) {
	st.RecordObservation(rtsSnrDb, 20, 1)
}

func (m *ConstantRateManager) ReportFinalDataFailed(st *Station) {
	st.reset(m.phy.DefaultMode())
}

func (m *ConstantRateManager) ReportFinalRtsFailed(st *Station) {
	st.reset(m.phy.DefaultMode())
}
