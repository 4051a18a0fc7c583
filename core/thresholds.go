package core

import (
	"errors"
	"fmt"
)

// ErrThresholdMiss reports a (mode, NSS, width) lookup that failed even
// after a rebuild. Proceeding past it would void the BER guarantee, so
// callers abort the decision instead of substituting a default.
var ErrThresholdMiss = errors.New("snr threshold not found after rebuild")

type thresholdEntry struct {
	minSnrDb float64
	mode     Mode
	nss      int
	width    int
}

// ThresholdTable maps every supported (mode, NSS, width) combination to
// the minimum SNR meeting the target BER. It is a pure function of the
// PHY capability set: a lookup miss means the capability set changed at
// runtime, so the table rebuilds itself once before giving up.
type ThresholdTable struct {
	phy       *Phy
	targetBer float64
	entries   []thresholdEntry
	rebuilds  int
}

// NewThresholdTable builds the table for a PHY and BER target.
func NewThresholdTable(phy *Phy, targetBer float64) *ThresholdTable {
	t := &ThresholdTable{phy: phy, targetBer: targetBer}
	t.Rebuild()
	return t
}

// Rebuild re-enumerates the capability set from scratch. Non-HT modes
// come first at their non-HT width with a single stream; if HT is
// supported every MCS is crossed with every width from 20 MHz up to the
// configured channel width (doubling), with NSS derived from the MCS
// index for HT and enumerated from 1 for VHT/HE. Disallowed
// combinations are skipped.
func (t *ThresholdTable) Rebuild() {
	t.entries = t.entries[:0]
	t.rebuilds++

	for _, mode := range t.phy.ModeList() {
		width := mode.NonHtChannelWidth()
		v := TxVector{Mode: mode, Nss: 1, ChannelWidth: width, GuardIntervalNs: 800}
		t.add(mode, 1, width, t.phy.CalculateRequiredSnr(v, t.targetBer))
	}
	if !t.phy.HtSupported() {
		return
	}
	for _, mode := range t.phy.McsList() {
		for width := 20; width <= t.phy.ChannelWidth; width *= 2 {
			switch mode.Class {
			case ModClassHt:
				gi := 800
				if t.phy.ShortGuardInt {
					gi = 400
				}
				nss := mode.Mcs/8 + 1
				if !mode.IsAllowed(width, nss) {
					continue
				}
				v := TxVector{Mode: mode, Nss: nss, ChannelWidth: width, GuardIntervalNs: gi}
				t.add(mode, nss, width, t.phy.CalculateRequiredSnr(v, t.targetBer))
			default: // VHT or HE
				gi := 800
				if mode.Class == ModClassVht && t.phy.ShortGuardInt {
					gi = 400
				}
				if mode.Class == ModClassHe {
					gi = t.phy.HeGuardIntNs
				}
				for nss := 1; nss <= t.phy.MaxTxStreams; nss++ {
					if !mode.IsAllowed(width, nss) {
						continue
					}
					v := TxVector{Mode: mode, Nss: nss, ChannelWidth: width, GuardIntervalNs: gi}
					t.add(mode, nss, width, t.phy.CalculateRequiredSnr(v, t.targetBer))
				}
			}
		}
	}
}

func (t *ThresholdTable) add(mode Mode, nss, width int, minSnrDb float64) {
	t.entries = append(t.entries, thresholdEntry{
		minSnrDb: minSnrDb,
		mode:     mode,
		nss:      nss,
		width:    width,
	})
}

// Lookup returns the minimum SNR for the vector's mode, NSS and width.
// Guard interval does not participate in matching: entries are keyed by
// the combination the BER constraint actually depends on. A first miss
// triggers a rebuild; a second miss is a consistency violation.
func (t *ThresholdTable) Lookup(v TxVector) (float64, error) {
	if snr, ok := t.find(v); ok {
		return snr, nil
	}
	// Capabilities may have changed at runtime; rebuild once.
	t.Rebuild()
	if snr, ok := t.find(v); ok {
		return snr, nil
	}
	return 0, fmt.Errorf("%w: mode %s nss %d width %d", ErrThresholdMiss, v.Mode, v.Nss, v.ChannelWidth)
}

func (t *ThresholdTable) find(v TxVector) (float64, bool) {
	for _, e := range t.entries {
		if e.mode.Name == v.Mode.Name && e.nss == v.Nss && e.width == v.ChannelWidth {
			return e.minSnrDb, true
		}
	}
	return 0, false
}

// Len returns the number of table entries.
func (t *ThresholdTable) Len() int { return len(t.entries) }

// Rebuilds returns how many times the table has been (re)built.
func (t *ThresholdTable) Rebuilds() int { return t.rebuilds }

// Entries yields (mode, nss, width, minSnrDb) tuples in enumeration
// order, for tests and diagnostics.
func (t *ThresholdTable) Entries(fn func(mode Mode, nss, width int, minSnrDb float64)) {
	for _, e := range t.entries {
		fn(e.mode, e.nss, e.width, e.minSnrDb)
	}
}
