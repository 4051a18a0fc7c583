package core

import (
	"testing"
	"time"
)

// fakeClock is a hand-advanced simulation clock.
type fakeClock struct{ now time.Duration }

func (c *fakeClock) Now() time.Duration { return c.now }

func newWarmupManager() (*AutoMcsManager, *Station, *fakeClock) {
	phy := NewPhy(Standard80211ax, 5e9)
	clock := &fakeClock{}
	mgr := NewAutoMcsManager(phy, clock, DefaultAutoMcsConfig(), nil)
	st := mgr.CreateStation("ap-0", phy.Capabilities())
	return mgr, st, clock
}

// TestSelectFastestFeasible verifies the warm-up search picks the
// highest-rate HE candidate whose threshold is strictly below the SNR
// estimate, with every faster candidate infeasible.
func TestSelectFastestFeasible(t *testing.T) {
	mgr, st, _ := newWarmupManager()
	const snr = 30.0
	mgr.ReportDataOk(st, snr, 20, 1)

	v, err := mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("SelectDataVector: %v", err)
	}
	if v.Mode.Class != ModClassHe {
		t.Fatalf("selected class %s, want HE on an HE-capable link", v.Mode.Class)
	}
	threshold, err := mgr.Table().Lookup(v)
	if err != nil {
		t.Fatalf("Lookup(selected): %v", err)
	}
	if threshold >= snr {
		t.Errorf("selected %s has threshold %.2f >= snr %.2f", v.Mode, threshold, snr)
	}

	rate := v.DataRate()
	mgr.Table().Entries(func(mode Mode, nss, width int, minSnrDb float64) {
		if width != 20 || nss != 1 || mode.Class != ModClassHe {
			return
		}
		if mode.DataRate(20, 800, 1) > rate && minSnrDb < snr {
			t.Errorf("faster feasible candidate %s (threshold %.2f) was skipped", mode, minSnrDb)
		}
	})
}

// TestSelectWithoutObservationFallsBack verifies a link with no usable
// observation gets the default (most robust) mode rather than an error.
func TestSelectWithoutObservationFallsBack(t *testing.T) {
	mgr, st, _ := newWarmupManager()
	v, err := mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("SelectDataVector: %v", err)
	}
	if v.Mode.Name != mgr.phy.DefaultMode().Name {
		t.Errorf("selected %s with no observation, want default %s", v.Mode, mgr.phy.DefaultMode())
	}
}

// TestDecisionCache verifies a repeat selection with an unchanged
// observation and width is served from the cache, and a fresh
// observation forces a new search.
func TestDecisionCache(t *testing.T) {
	mgr, st, _ := newWarmupManager()
	mgr.ReportDataOk(st, 28, 20, 1)

	first, err := mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("first SelectDataVector: %v", err)
	}
	if mgr.Searches() != 1 || mgr.CacheHits() != 0 {
		t.Fatalf("after first selection: searches=%d hits=%d, want 1/0", mgr.Searches(), mgr.CacheHits())
	}

	second, err := mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("second SelectDataVector: %v", err)
	}
	if mgr.Searches() != 1 || mgr.CacheHits() != 1 {
		t.Fatalf("after repeat selection: searches=%d hits=%d, want 1/1", mgr.Searches(), mgr.CacheHits())
	}
	if second.Mode.Name != first.Mode.Name || second.Nss != first.Nss {
		t.Errorf("cached decision diverged: %s/%d vs %s/%d",
			second.Mode, second.Nss, first.Mode, first.Nss)
	}

	mgr.ReportDataOk(st, 14, 20, 1)
	if _, err := mgr.SelectDataVector(st, 20); err != nil {
		t.Fatalf("third SelectDataVector: %v", err)
	}
	if mgr.Searches() != 2 {
		t.Errorf("new observation did not trigger a search: searches=%d, want 2", mgr.Searches())
	}
}

// TestConvergedLockIn verifies the two-phase behaviour: a stable run of
// one MCS during warm-up makes the converged phase lock every selection
// to that HE MCS with no further searches, surviving even a terminal
// failure reset.
func TestConvergedLockIn(t *testing.T) {
	mgr, st, clock := newWarmupManager()

	// 25 dB makes HE MCS7 the fastest feasible candidate at 20 MHz.
	mgr.ReportDataOk(st, 25, 20, 1)
	v, err := mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("warm-up SelectDataVector: %v", err)
	}
	if v.Mode.Name != "HeMcs7" {
		t.Fatalf("warm-up selected %s, want HeMcs7", v.Mode)
	}

	for i := 0; i < 50; i++ {
		mgr.ReportDataOk(st, 25, 20, 1)
	}
	if mgr.HistoryLen() != 50 {
		t.Fatalf("history length %d, want 50", mgr.HistoryLen())
	}

	searchesBefore := mgr.Searches()
	clock.now = 10 * time.Second

	for i := 0; i < 5; i++ {
		v, err := mgr.SelectDataVector(st, 20)
		if err != nil {
			t.Fatalf("converged SelectDataVector: %v", err)
		}
		if v.Mode.Name != "HeMcs7" {
			t.Fatalf("converged selection %d: got %s, want HeMcs7", i, v.Mode)
		}
	}
	if mgr.Searches() != searchesBefore {
		t.Errorf("converged phase ran %d extra searches", mgr.Searches()-searchesBefore)
	}

	mgr.ReportFinalDataFailed(st)
	v, err = mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("post-reset SelectDataVector: %v", err)
	}
	if v.Mode.Name != "HeMcs7" {
		t.Errorf("converged selection after reset: got %s, want HeMcs7", v.Mode)
	}
}

// TestConvergedEmptyHistory verifies the converged phase with no
// recorded choices falls back to HE MCS0.
func TestConvergedEmptyHistory(t *testing.T) {
	mgr, st, clock := newWarmupManager()
	clock.now = 10 * time.Second
	v, err := mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("SelectDataVector: %v", err)
	}
	if v.Mode.Name != "HeMcs0" {
		t.Errorf("got %s, want HeMcs0", v.Mode)
	}
}

// TestConvergedMeanRoundsUp verifies the converged MCS is the
// rounded-up mean of the history.
func TestConvergedMeanRoundsUp(t *testing.T) {
	mgr, _, _ := newWarmupManager()
	mgr.history = []int{3, 4}
	if mode := mgr.convergedMode(); mode.Name != "HeMcs4" {
		t.Errorf("mean of {3,4}: got %s, want HeMcs4", mode)
	}
	mgr.history = []int{6, 6, 6}
	if mode := mgr.convergedMode(); mode.Name != "HeMcs6" {
		t.Errorf("mean of {6,6,6}: got %s, want HeMcs6", mode)
	}
}

// TestZeroSnrReportDiscarded verifies a zero-SNR success report is
// dropped entirely: no observation update and no history entry.
func TestZeroSnrReportDiscarded(t *testing.T) {
	mgr, st, _ := newWarmupManager()
	mgr.ReportDataOk(st, 25, 20, 1)
	if _, err := mgr.SelectDataVector(st, 20); err != nil {
		t.Fatalf("SelectDataVector: %v", err)
	}

	before := mgr.HistoryLen()
	mgr.ReportDataOk(st, 0, 20, 1)
	if mgr.HistoryLen() != before {
		t.Error("zero-SNR report appended to history")
	}
	if st.LastSnrObserved() != 25 {
		t.Errorf("zero-SNR report overwrote observation: %.2f", st.LastSnrObserved())
	}
}

// TestAmpduReportCountsSubframes verifies an aggregate report appends
// one history entry per delivered MPDU.
func TestAmpduReportCountsSubframes(t *testing.T) {
	mgr, st, _ := newWarmupManager()
	mgr.ReportDataOk(st, 25, 20, 1)
	if _, err := mgr.SelectDataVector(st, 20); err != nil {
		t.Fatalf("SelectDataVector: %v", err)
	}

	before := mgr.HistoryLen()
	mgr.ReportAmpduTxStatus(st, 5, 2, 25, 20, 1)
	if got := mgr.HistoryLen() - before; got != 5 {
		t.Errorf("A-MPDU report appended %d entries, want 5", got)
	}
}

// TestFinalFailureResets verifies exhausting the retry budget clears
// the link state: the next warm-up selection searches again from a
// blank observation.
func TestFinalFailureResets(t *testing.T) {
	mgr, st, _ := newWarmupManager()
	mgr.ReportDataOk(st, 28, 20, 1)
	if _, err := mgr.SelectDataVector(st, 20); err != nil {
		t.Fatalf("SelectDataVector: %v", err)
	}

	mgr.ReportFinalDataFailed(st)
	if st.LastSnrObserved() != 0 {
		t.Errorf("observation survived reset: %.2f", st.LastSnrObserved())
	}

	searches := mgr.Searches()
	v, err := mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("post-reset SelectDataVector: %v", err)
	}
	if mgr.Searches() != searches+1 {
		t.Error("post-reset selection did not search")
	}
	if v.Mode.Name != mgr.phy.DefaultMode().Name {
		t.Errorf("post-reset selection %s, want default %s", v.Mode, mgr.phy.DefaultMode())
	}
}

// TestControlVectorRobustSearch verifies the control selector returns
// the basic mode with the highest threshold still below the last
// observation, and falls back to the default mode when nothing clears.
func TestControlVectorRobustSearch(t *testing.T) {
	mgr, st, _ := newWarmupManager()

	st.RecordObservation(15, 20, 1)
	v, err := mgr.SelectControlVector(st)
	if err != nil {
		t.Fatalf("SelectControlVector: %v", err)
	}
	if v.Mode.Name != "OfdmRate24Mbps" {
		t.Errorf("at 15 dB: got %s, want OfdmRate24Mbps", v.Mode)
	}

	st.RecordObservation(8, 20, 1)
	v, err = mgr.SelectControlVector(st)
	if err != nil {
		t.Fatalf("SelectControlVector: %v", err)
	}
	if v.Mode.Name != "OfdmRate12Mbps" {
		t.Errorf("at 8 dB: got %s, want OfdmRate12Mbps", v.Mode)
	}

	st.RecordObservation(1, 20, 1)
	v, err = mgr.SelectControlVector(st)
	if err != nil {
		t.Fatalf("SelectControlVector: %v", err)
	}
	if v.Mode.Name != mgr.phy.DefaultMode().Name {
		t.Errorf("at 1 dB: got %s, want default %s", v.Mode, mgr.phy.DefaultMode())
	}
}

// TestControlVectorFixedPolicy verifies the fixed policy always yields
// 6 Mb/s OFDM regardless of link quality.
func TestControlVectorFixedPolicy(t *testing.T) {
	phy := NewPhy(Standard80211ax, 5e9)
	cfg := DefaultAutoMcsConfig()
	cfg.FixedControlRate = true
	mgr := NewAutoMcsManager(phy, &fakeClock{}, cfg, nil)
	st := mgr.CreateStation("ap-0", phy.Capabilities())

	st.RecordObservation(40, 20, 1)
	v, err := mgr.SelectControlVector(st)
	if err != nil {
		t.Fatalf("SelectControlVector: %v", err)
	}
	if v.Mode.Name != "OfdmRate6Mbps" {
		t.Errorf("fixed policy: got %s, want OfdmRate6Mbps", v.Mode)
	}
}

// TestRtsObservationWidth verifies the CTS observation is recorded at
// non-HT width: 20 MHz when the channel is 40 MHz or wider.
func TestRtsObservationWidth(t *testing.T) {
	phy := NewPhy(Standard80211ax, 5e9)
	phy.ChannelWidth = 40
	mgr := NewAutoMcsManager(phy, &fakeClock{}, DefaultAutoMcsConfig(), nil)
	st := mgr.CreateStation("ap-0", phy.Capabilities())

	mgr.ReportRtsOk(st, 18)
	// An estimate back at 20 MHz must return the raw observation.
	if got := st.EstimateSnrFor(20, 1); got != 18 {
		t.Errorf("estimate at 20 MHz after RTS: got %.2f, want 18", got)
	}
}

// TestConstantRateManager verifies the fixed-rate strategy ignores
// observations for selection while still recording them.
func TestConstantRateManager(t *testing.T) {
	phy := NewPhy(Standard80211ax, 5e9)
	mgr := NewConstantRateManager(phy, HeMode(5), OfdmMode(6))
	st := mgr.CreateStation("ap-0", phy.Capabilities())

	mgr.ReportDataOk(st, 3, 20, 1)
	v, err := mgr.SelectDataVector(st, 20)
	if err != nil {
		t.Fatalf("SelectDataVector: %v", err)
	}
	if v.Mode.Name != "HeMcs5" {
		t.Errorf("data vector: got %s, want HeMcs5", v.Mode)
	}
	c, err := mgr.SelectControlVector(st)
	if err != nil {
		t.Fatalf("SelectControlVector: %v", err)
	}
	if c.Mode.Name != "OfdmRate6Mbps" {
		t.Errorf("control vector: got %s, want OfdmRate6Mbps", c.Mode)
	}
	if st.LastSnrObserved() != 3 {
		t.Errorf("observation not recorded: %.2f", st.LastSnrObserved())
	}
}
