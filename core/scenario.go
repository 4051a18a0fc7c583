package core

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
)

// NodeKind distinguishes access points from stations.
type NodeKind int

const (
	NodeAP NodeKind = iota
	NodeStation
)

func (k NodeKind) String() string {
	if k == NodeAP {
		return "ap"
	}
	return "sta"
}

// Node is one device in the multi-BSS deployment.
type Node struct {
	ID       int
	Name     string
	BSS      int
	Kind     NodeKind
	Position Vec3
	Bldg     *BuildingInfo
	Phy      *Phy
}

// NodeOverride carries per-node radio settings from the scenario
// configuration. Nil fields keep the scenario-wide default.
type NodeOverride struct {
	CcaSensitivityDbm *float64 `json:"cca_sensitivity_dbm,omitempty"`
	TxPowerDbm        *float64 `json:"tx_power_dbm,omitempty"`
}

// ScenarioConfig describes the multi-BSS topology and radio settings.
type ScenarioConfig struct {
	Seed             int64   `json:"seed"`
	Standard         string  `json:"standard"` // "a", "n", "ac", "ax"
	FrequencyGHz     float64 `json:"frequency_ghz"`
	ChannelWidthMHz  int     `json:"channel_width_mhz"`
	GuardIntervalNs  int     `json:"guard_interval_ns"`
	TxPowerDbm       float64 `json:"tx_power_dbm"`
	MaxStreams       int     `json:"max_streams"`
	BssCount         int     `json:"bss_count"`
	StationsPerBss   int     `json:"stations_per_bss"`
	BoxSizeMetres    float64 `json:"box_size_m"`
	PacketSizeBytes  int     `json:"packet_size_bytes"`
	PacketIntervalUs int     `json:"packet_interval_us"`
	MaxMpdus         int     `json:"max_mpdus"`
	RetryLimit       int     `json:"retry_limit"`
	UseRtsCts        bool    `json:"use_rts_cts"`
	FixedControlRate bool    `json:"fixed_control_rate"`
	TargetBer        float64 `json:"target_ber"`

	NodeOverrides map[string]NodeOverride `json:"node_overrides,omitempty"`
}

// DefaultScenarioConfig returns the baseline 4-BSS residential layout:
// 802.11ax at 5 GHz, 20 MHz channels, 16 dBm, four stations per BSS in
// 25 m rooms.
func DefaultScenarioConfig() ScenarioConfig {
	return ScenarioConfig{
		Seed:             2,
		Standard:         "ax",
		FrequencyGHz:     5,
		ChannelWidthMHz:  20,
		GuardIntervalNs:  800,
		TxPowerDbm:       16,
		MaxStreams:       1,
		BssCount:         4,
		StationsPerBss:   4,
		BoxSizeMetres:    25,
		PacketSizeBytes:  1500,
		PacketIntervalUs: 5000,
		MaxMpdus:         5,
		RetryLimit:       7,
		TargetBer:        1e-7,
	}
}

// LoadScenarioConfig reads a JSON scenario configuration from r. It
// fails only on structural errors; semantic defaults fill in anything
// the file leaves at zero.
func LoadScenarioConfig(r io.Reader) (ScenarioConfig, error) {
	cfg := DefaultScenarioConfig()
	dec := json.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return ScenarioConfig{}, fmt.Errorf("decode scenario config: %w", err)
	}
	if cfg.BssCount < 1 {
		return ScenarioConfig{}, fmt.Errorf("bss_count must be at least 1, got %d", cfg.BssCount)
	}
	if cfg.StationsPerBss < 1 {
		return ScenarioConfig{}, fmt.Errorf("stations_per_bss must be at least 1, got %d", cfg.StationsPerBss)
	}
	return cfg, nil
}

func (c ScenarioConfig) standard() Standard {
	switch c.Standard {
	case "a":
		return Standard80211a
	case "n":
		return Standard80211n
	case "ac":
		return Standard80211ac
	default:
		return Standard80211ax
	}
}

// Scenario is the built topology: one residential building with one
// BSS per room, an AP and a set of stations in each.
type Scenario struct {
	Config   ScenarioConfig
	Building *Building
	Nodes    []*Node
}

// BuildScenario places the building and all nodes. Node IDs are laid
// out so that IDs 0..BssCount-1 are the APs, station s gets ID
// BssCount+s and joins BSS s mod BssCount, so every node's BSS is its
// ID modulo BssCount. Positions are drawn uniformly within the node's
// room from the scenario RNG.
func BuildScenario(cfg ScenarioConfig, rng *rand.Rand) *Scenario {
	roomsX := cfg.BssCount
	roomsY := 1
	if cfg.BssCount == 4 {
		roomsX, roomsY = 2, 2
	}
	building := &Building{
		MaxX:   cfg.BoxSizeMetres * float64(roomsX),
		MaxY:   cfg.BoxSizeMetres * float64(roomsY),
		MaxZ:   3,
		RoomsX: roomsX,
		RoomsY: roomsY,
		Floors: 1,
	}

	s := &Scenario{Config: cfg, Building: building}

	for bss := 0; bss < cfg.BssCount; bss++ {
		s.Nodes = append(s.Nodes, s.placeNode(cfg, rng, bss, bss, NodeAP))
	}
	for st := 0; st < cfg.BssCount*cfg.StationsPerBss; st++ {
		bss := st % cfg.BssCount
		s.Nodes = append(s.Nodes, s.placeNode(cfg, rng, cfg.BssCount+st, bss, NodeStation))
	}
	return s
}

func (s *Scenario) placeNode(cfg ScenarioConfig, rng *rand.Rand, id, bss int, kind NodeKind) *Node {
	roomX := bss % s.Building.RoomsX
	roomY := bss / s.Building.RoomsX
	pos := Vec3{
		X: (float64(roomX) + rng.Float64()) * cfg.BoxSizeMetres,
		Y: (float64(roomY) + rng.Float64()) * cfg.BoxSizeMetres,
		Z: 1.5,
	}
	info := s.Building.LocateNode(pos)

	phy := NewPhy(cfg.standard(), cfg.FrequencyGHz*1e9)
	phy.ChannelWidth = cfg.ChannelWidthMHz
	phy.TxPowerDbm = cfg.TxPowerDbm
	phy.HeGuardIntNs = cfg.GuardIntervalNs
	if cfg.MaxStreams > 0 {
		phy.MaxTxStreams = cfg.MaxStreams
		phy.MaxRxStreams = cfg.MaxStreams
	}

	name := fmt.Sprintf("%s-%d-bss-%d", kind, id, bss)
	if ov, ok := cfg.NodeOverrides[fmt.Sprint(id)]; ok {
		if ov.CcaSensitivityDbm != nil {
			phy.CcaSensitivity = *ov.CcaSensitivityDbm
		}
		if ov.TxPowerDbm != nil {
			phy.TxPowerDbm = *ov.TxPowerDbm
		}
	}

	return &Node{
		ID:       id,
		Name:     name,
		BSS:      bss,
		Kind:     kind,
		Position: pos,
		Bldg:     &info,
		Phy:      phy,
	}
}

// AP returns the access point of the given BSS.
func (s *Scenario) AP(bss int) *Node {
	return s.Nodes[bss]
}

// Stations returns all station nodes.
func (s *Scenario) Stations() []*Node {
	var out []*Node
	for _, n := range s.Nodes {
		if n.Kind == NodeStation {
			out = append(out, n)
		}
	}
	return out
}
