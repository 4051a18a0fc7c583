package core

import "fmt"

// ModulationClass groups transmission modes by PHY family. The class
// decides which guard-interval rules apply and which search branch a
// mode participates in during rate selection.
type ModulationClass int

const (
	ModClassUnknown ModulationClass = iota
	ModClassDsss
	ModClassHrDsss
	ModClassErpOfdm
	ModClassOfdm
	ModClassHt
	ModClassVht
	ModClassHe
)

func (c ModulationClass) String() string {
	switch c {
	case ModClassDsss:
		return "DSSS"
	case ModClassHrDsss:
		return "HR-DSSS"
	case ModClassErpOfdm:
		return "ERP-OFDM"
	case ModClassOfdm:
		return "OFDM"
	case ModClassHt:
		return "HT"
	case ModClassVht:
		return "VHT"
	case ModClassHe:
		return "HE"
	default:
		return "unknown"
	}
}

// Mode is one modulation-and-coding scheme. Non-HT modes carry a fixed
// data rate; HT/VHT/HE modes are parameterised by MCS index and derive
// their rate from channel width, guard interval and spatial streams.
type Mode struct {
	Name    string
	Class   ModulationClass
	Mcs     int    // MCS index for HT/VHT/HE, -1 for non-HT modes
	rateBps uint64 // fixed rate for non-HT modes, 0 otherwise
}

// mcsParams maps an MCS index to modulation bits per subcarrier and
// coding rate. HT indices wrap modulo 8 (one block per spatial stream).
var mcsParams = []struct {
	bits    float64
	codeNum float64
	codeDen float64
}{
	{1, 1, 2},  // BPSK 1/2
	{2, 1, 2},  // QPSK 1/2
	{2, 3, 4},  // QPSK 3/4
	{4, 1, 2},  // 16-QAM 1/2
	{4, 3, 4},  // 16-QAM 3/4
	{6, 2, 3},  // 64-QAM 2/3
	{6, 3, 4},  // 64-QAM 3/4
	{6, 5, 6},  // 64-QAM 5/6
	{8, 3, 4},  // 256-QAM 3/4
	{8, 5, 6},  // 256-QAM 5/6
	{10, 3, 4}, // 1024-QAM 3/4
	{10, 5, 6}, // 1024-QAM 5/6
}

// Data subcarrier counts per channel width (MHz).
var (
	htDataSubcarriers  = map[int]float64{20: 52, 40: 108}
	vhtDataSubcarriers = map[int]float64{20: 52, 40: 108, 80: 234, 160: 468}
	heDataSubcarriers  = map[int]float64{20: 234, 40: 468, 80: 980, 160: 1960}
)

func nonHtMode(name string, class ModulationClass, rateBps uint64) Mode {
	return Mode{Name: name, Class: class, Mcs: -1, rateBps: rateBps}
}

// DsssMode returns the given 802.11b rate (1, 2 Mb/s DSSS; 5.5, 11 Mb/s
// HR-DSSS).
func DsssMode(rateMbps float64) Mode {
	class := ModClassDsss
	if rateMbps > 2 {
		class = ModClassHrDsss
	}
	name := fmt.Sprintf("DsssRate%gMbps", rateMbps)
	return nonHtMode(name, class, uint64(rateMbps*1e6))
}

// OfdmMode returns the given 802.11a rate.
func OfdmMode(rateMbps int) Mode {
	return nonHtMode(fmt.Sprintf("OfdmRate%dMbps", rateMbps), ModClassOfdm, uint64(rateMbps)*1e6)
}

// ErpOfdmMode returns the given 802.11g rate.
func ErpOfdmMode(rateMbps int) Mode {
	return nonHtMode(fmt.Sprintf("ErpOfdmRate%dMbps", rateMbps), ModClassErpOfdm, uint64(rateMbps)*1e6)
}

// HtMode returns the HT mode at the given MCS index (0..31).
func HtMode(mcs int) Mode {
	return Mode{Name: fmt.Sprintf("HtMcs%d", mcs), Class: ModClassHt, Mcs: mcs}
}

// VhtMode returns the VHT mode at the given MCS index (0..9).
func VhtMode(mcs int) Mode {
	return Mode{Name: fmt.Sprintf("VhtMcs%d", mcs), Class: ModClassVht, Mcs: mcs}
}

// HeMode returns the HE mode at the given MCS index, clamped to the
// valid 0..11 range.
func HeMode(mcs int) Mode {
	if mcs < 0 {
		mcs = 0
	} else if mcs > 11 {
		mcs = 11
	}
	return Mode{Name: fmt.Sprintf("HeMcs%d", mcs), Class: ModClassHe, Mcs: mcs}
}

// McsValue returns the MCS index, or 0 for non-HT modes so the
// selection history stays well defined before HT lock-in.
func (m Mode) McsValue() int {
	if m.Mcs < 0 {
		return 0
	}
	return m.Mcs
}

// IsMcs reports whether the mode is MCS-parameterised (HT/VHT/HE).
func (m Mode) IsMcs() bool { return m.Mcs >= 0 }

// NonHtChannelWidth returns the channel width used when the mode is
// sent as a non-HT (control) frame: 22 MHz for DSSS, 20 MHz otherwise.
func (m Mode) NonHtChannelWidth() int {
	if m.Class == ModClassDsss || m.Class == ModClassHrDsss {
		return 22
	}
	return 20
}

// DataRate returns the PHY data rate in bit/s for the given channel
// width (MHz), guard interval (ns) and spatial stream count.
func (m Mode) DataRate(width, giNs, nss int) uint64 {
	switch m.Class {
	case ModClassHt:
		sub, ok := htDataSubcarriers[width]
		if !ok {
			return 0
		}
		p := mcsParams[m.Mcs%8]
		return symbolRate(sub, p.bits*p.codeNum/p.codeDen, 3.2e-6, giNs, nss)
	case ModClassVht:
		sub, ok := vhtDataSubcarriers[width]
		if !ok || m.Mcs >= len(mcsParams) {
			return 0
		}
		p := mcsParams[m.Mcs]
		return symbolRate(sub, p.bits*p.codeNum/p.codeDen, 3.2e-6, giNs, nss)
	case ModClassHe:
		sub, ok := heDataSubcarriers[width]
		if !ok || m.Mcs >= len(mcsParams) {
			return 0
		}
		p := mcsParams[m.Mcs]
		return symbolRate(sub, p.bits*p.codeNum/p.codeDen, 12.8e-6, giNs, nss)
	default:
		return m.rateBps
	}
}

func symbolRate(subcarriers, bitsPerSubcarrier, symbolSeconds float64, giNs, nss int) uint64 {
	tSym := symbolSeconds + float64(giNs)*1e-9
	return uint64(subcarriers * bitsPerSubcarrier * float64(nss) / tSym)
}

// IsAllowed reports whether the standard permits this mode at the given
// channel width and NSS. Combinations outside the rate tables (for
// example VHT MCS 9 at 20 MHz for most stream counts) are skipped
// during both table construction and search.
func (m Mode) IsAllowed(width, nss int) bool {
	switch m.Class {
	case ModClassDsss, ModClassHrDsss:
		return width == 22 && nss == 1
	case ModClassOfdm, ModClassErpOfdm:
		return width == 20 && nss == 1
	case ModClassHt:
		return (width == 20 || width == 40) && m.Mcs >= 0 && m.Mcs < 32 && nss == m.Mcs/8+1
	case ModClassVht:
		if width != 20 && width != 40 && width != 80 && width != 160 {
			return false
		}
		if m.Mcs < 0 || m.Mcs > 9 || nss < 1 || nss > 8 {
			return false
		}
		// Holes in the VHT rate tables.
		if m.Mcs == 9 && width == 20 && nss != 3 && nss != 6 {
			return false
		}
		if m.Mcs == 6 && width == 80 && nss == 3 {
			return false
		}
		if m.Mcs == 9 && width == 80 && nss == 6 {
			return false
		}
		if m.Mcs == 9 && width == 160 && nss == 3 {
			return false
		}
		return true
	case ModClassHe:
		if width != 20 && width != 40 && width != 80 && width != 160 {
			return false
		}
		return m.Mcs >= 0 && m.Mcs <= 11 && nss >= 1 && nss <= 8
	default:
		return false
	}
}

func (m Mode) String() string { return m.Name }
