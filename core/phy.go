package core

import "math"

// Standard selects the PHY generation a device operates with.
type Standard int

const (
	Standard80211a Standard = iota
	Standard80211n
	Standard80211ac
	Standard80211ax
)

func (s Standard) String() string {
	switch s {
	case Standard80211a:
		return "802.11a"
	case Standard80211n:
		return "802.11n"
	case Standard80211ac:
		return "802.11ac"
	case Standard80211ax:
		return "802.11ax"
	default:
		return "unknown"
	}
}

// TxVector carries every transmission parameter the rate selectors
// decide on for one frame.
type TxVector struct {
	Mode            Mode
	Nss             int
	ChannelWidth    int // MHz
	GuardIntervalNs int
	PowerDbm        float64
	Aggregation     bool
}

// DataRate returns the PHY rate of the vector in bit/s.
func (v TxVector) DataRate() uint64 {
	return v.Mode.DataRate(v.ChannelWidth, v.GuardIntervalNs, v.Nss)
}

// IsValid reports whether the mode/width/NSS combination exists in the
// rate tables.
func (v TxVector) IsValid() bool {
	return v.Mode.IsAllowed(v.ChannelWidth, v.Nss)
}

// Capabilities is the subset of PHY configuration a peer advertises,
// used by the selectors to constrain the search space.
type Capabilities struct {
	HtSupported        bool
	VhtSupported       bool
	HeSupported        bool
	ShortGuardInterval bool
	HeGuardIntervalNs  int
	ChannelWidth       int
	Streams            int
}

// Phy models one device's physical layer: its capability set, radio
// parameters, and the BER-vs-SNR relationship the threshold table is
// built from.
type Phy struct {
	Standard       Standard
	FrequencyHz    float64
	ChannelWidth   int // MHz
	MaxTxStreams   int
	MaxRxStreams   int
	ShortGuardInt  bool
	HeGuardIntNs   int // 800, 1600 or 3200
	TxPowerDbm     float64
	CcaSensitivity float64 // dBm; receiver detection threshold
	NoiseFigureDb  float64
}

// NewPhy builds a Phy with the defaults the multi-BSS scenario uses:
// 20 MHz channel, one spatial stream, 800 ns HE guard interval, 16 dBm
// transmit power, -82 dBm CCA sensitivity and a 7 dB noise figure.
func NewPhy(standard Standard, frequencyHz float64) *Phy {
	return &Phy{
		Standard:       standard,
		FrequencyHz:    frequencyHz,
		ChannelWidth:   20,
		MaxTxStreams:   1,
		MaxRxStreams:   1,
		HeGuardIntNs:   800,
		TxPowerDbm:     16,
		CcaSensitivity: -82,
		NoiseFigureDb:  7,
	}
}

// HtSupported reports whether the device can use HT or newer MCS sets.
func (p *Phy) HtSupported() bool { return p.Standard >= Standard80211n }

// VhtSupported reports VHT capability; VHT only exists above 3 GHz.
func (p *Phy) VhtSupported() bool {
	return p.Standard >= Standard80211ac && p.FrequencyHz > 3e9
}

// HeSupported reports HE (802.11ax) capability.
func (p *Phy) HeSupported() bool { return p.Standard >= Standard80211ax }

// ModeList returns the supported non-high-throughput modes in
// enumeration order: the mandatory DSSS set first in the 2.4 GHz band,
// then the OFDM set.
func (p *Phy) ModeList() []Mode {
	var modes []Mode
	if p.FrequencyHz < 3e9 {
		modes = append(modes,
			DsssMode(1), DsssMode(2), DsssMode(5.5), DsssMode(11))
		for _, r := range []int{6, 9, 12, 18, 24, 36, 48, 54} {
			modes = append(modes, ErpOfdmMode(r))
		}
		return modes
	}
	for _, r := range []int{6, 9, 12, 18, 24, 36, 48, 54} {
		modes = append(modes, OfdmMode(r))
	}
	return modes
}

// McsList returns every supported MCS-parameterised mode in ascending
// index order per modulation class: HT first, then VHT, then HE.
func (p *Phy) McsList() []Mode {
	var modes []Mode
	if p.HtSupported() {
		for mcs := 0; mcs < 8*p.MaxTxStreams; mcs++ {
			modes = append(modes, HtMode(mcs))
		}
	}
	if p.VhtSupported() {
		for mcs := 0; mcs <= 9; mcs++ {
			modes = append(modes, VhtMode(mcs))
		}
	}
	if p.HeSupported() {
		for mcs := 0; mcs <= 11; mcs++ {
			modes = append(modes, HeMode(mcs))
		}
	}
	return modes
}

// BasicModes returns the mandatory rate set control frames are chosen
// from; every entry also appears in ModeList.
func (p *Phy) BasicModes() []Mode {
	if p.FrequencyHz < 3e9 {
		return []Mode{
			DsssMode(1), DsssMode(2), DsssMode(5.5), DsssMode(11),
			ErpOfdmMode(6), ErpOfdmMode(12), ErpOfdmMode(24),
		}
	}
	return []Mode{OfdmMode(6), OfdmMode(12), OfdmMode(24)}
}

// DefaultMode returns the most robust supported mode, used before any
// observation exists and after a terminal failure reset.
func (p *Phy) DefaultMode() Mode {
	return p.ModeList()[0]
}

// Capabilities returns what this PHY advertises to its peers.
func (p *Phy) Capabilities() Capabilities {
	return Capabilities{
		HtSupported:        p.HtSupported(),
		VhtSupported:       p.VhtSupported(),
		HeSupported:        p.HeSupported(),
		ShortGuardInterval: p.ShortGuardInt,
		HeGuardIntervalNs:  p.HeGuardIntNs,
		ChannelWidth:       p.ChannelWidth,
		Streams:            p.MaxRxStreams,
	}
}

// CalculateRequiredSnr returns the minimum SNR (dB) at which the
// vector meets the target BER. The relationship is a Shannon-gap
// approximation of the coded error model: the per-stream spectral
// efficiency sets the base requirement and the BER target sets the gap
// to capacity. Monotone in data rate for a fixed width and NSS.
func (p *Phy) CalculateRequiredSnr(v TxVector, targetBer float64) float64 {
	rate := v.DataRate()
	if rate == 0 {
		return math.Inf(1)
	}
	bandwidthHz := float64(v.ChannelWidth) * 1e6
	specEff := float64(rate) / (bandwidthHz * float64(v.Nss))
	gap := -math.Log(5*targetBer) / 1.5
	snrLinear := (math.Pow(2, specEff) - 1) * gap
	return 10 * math.Log10(snrLinear)
}

// NoiseFloorDbm returns thermal noise plus noise figure for a channel
// width in MHz.
func (p *Phy) NoiseFloorDbm(width int) float64 {
	return -174 + 10*math.Log10(float64(width)*1e6) + p.NoiseFigureDb
}
