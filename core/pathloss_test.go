package core

import (
	"math"
	"testing"
)

// TestPathlossMonotoneInDistance verifies that received power never
// increases with distance along an unobstructed line.
func TestPathlossMonotoneInDistance(t *testing.T) {
	m := NewTgaxResidentialModel(5e9, 1)
	prev := math.Inf(1)
	for d := 1.0; d <= 100; d += 1.0 {
		got := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: d}, nil, nil)
		if got > prev {
			t.Fatalf("received power increased with distance at %.0f m: %.2f > %.2f", d, got, prev)
		}
		prev = got
	}
}

// TestPathlossBreakpointSlope verifies the steeper attenuation beyond
// the 5 m breakpoint: the drop from 10 m to 20 m must exceed the
// free-space 6 dB of a pre-breakpoint doubling.
func TestPathlossBreakpointSlope(t *testing.T) {
	m := NewTgaxResidentialModel(5e9, 1)
	at10 := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 10}, nil, nil)
	at20 := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 20}, nil, nil)
	drop := at10 - at20
	if drop <= 6.0 {
		t.Fatalf("beyond-breakpoint doubling dropped only %.2f dB, want > 6 dB", drop)
	}
	// 35*log10(2) ≈ 10.54 dB.
	if math.Abs(drop-35*math.Log10(2)) > 1e-9 {
		t.Fatalf("beyond-breakpoint doubling dropped %.4f dB, want %.4f", drop, 35*math.Log10(2))
	}
}

// TestPathlossContinuousAtBreakpoint verifies there is no jump at the
// 5 m breakpoint: the loss just past it differs from the loss at it by
// an arbitrarily small amount.
func TestPathlossContinuousAtBreakpoint(t *testing.T) {
	m := NewTgaxResidentialModel(5e9, 1)
	at := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 5}, nil, nil)
	just := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 5 + 1e-9}, nil, nil)
	if math.Abs(at-just) > 1e-6 {
		t.Fatalf("discontinuity at breakpoint: %.9f vs %.9f", at, just)
	}
}

// TestPathlossReferenceLoss verifies the base case: at the 2.4 GHz
// reference frequency and 1 m, the loss is exactly the 40.05 dB
// reference term.
func TestPathlossReferenceLoss(t *testing.T) {
	m := NewTgaxResidentialModel(2.4e9, 1)
	got := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 1}, nil, nil)
	if want := 16 - 40.05; math.Abs(got-want) > 1e-9 {
		t.Fatalf("reference loss: got %.4f dBm, want %.4f", got, want)
	}
}

// TestPathlossShortDistances verifies the special cases below the
// minimum modelled distance: identical positions return the transmit
// power unchanged, and anything under 1 m is clamped to 1 m.
func TestPathlossShortDistances(t *testing.T) {
	m := NewTgaxResidentialModel(5e9, 1)

	same := m.ReceivedPowerDbm(16, Vec3{X: 3}, Vec3{X: 3}, nil, nil)
	if same != 16 {
		t.Fatalf("zero distance: got %.2f dBm, want tx power 16", same)
	}

	atHalf := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 0.5}, nil, nil)
	atOne := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 1}, nil, nil)
	if atHalf != atOne {
		t.Fatalf("sub-metre distance not clamped: %.2f vs %.2f", atHalf, atOne)
	}
}

// TestPathlossWallPenalty verifies each separating wall costs a flat
// 5 dB on top of the distance loss.
func TestPathlossWallPenalty(t *testing.T) {
	m := NewTgaxResidentialModel(5e9, 1)
	a := Vec3{X: 1, Y: 1}
	b := Vec3{X: 4, Y: 1}
	sameRoom := BuildingInfo{Indoor: true, Floor: 0, RoomX: 0, RoomY: 0}
	twoOver := BuildingInfo{Indoor: true, Floor: 0, RoomX: 2, RoomY: 0}

	free := m.ReceivedPowerDbm(16, a, b, &sameRoom, &sameRoom)
	walled := m.ReceivedPowerDbm(16, a, b, &sameRoom, &twoOver)
	if diff := free - walled; math.Abs(diff-10) > 1e-9 {
		t.Fatalf("two walls cost %.2f dB, want 10", diff)
	}
}

// TestPathlossFloorPenalty verifies floor separation applies the
// distance-dependent penetration term.
func TestPathlossFloorPenalty(t *testing.T) {
	m := NewTgaxResidentialModel(5e9, 1)
	a := Vec3{X: 1, Z: 1.5}
	b := Vec3{X: 4, Z: 4.5}
	ground := BuildingInfo{Indoor: true, Floor: 0}
	upstairs := BuildingInfo{Indoor: true, Floor: 1}

	flat := m.ReceivedPowerDbm(16, a, b, &ground, &ground)
	stacked := m.ReceivedPowerDbm(16, a, b, &ground, &upstairs)
	if stacked >= flat {
		t.Fatalf("floor separation did not attenuate: %.2f >= %.2f", stacked, flat)
	}
}

// TestPathlossOutdoorBlocked verifies a link with building metadata on
// both ends where either endpoint is outdoor yields exactly zero power,
// and that missing metadata falls back to pure distance loss.
func TestPathlossOutdoorBlocked(t *testing.T) {
	m := NewTgaxResidentialModel(5e9, 1)
	indoor := BuildingInfo{Indoor: true}
	outdoor := BuildingInfo{Indoor: false}

	if got := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 10}, &indoor, &outdoor); got != 0 {
		t.Fatalf("indoor-outdoor link: got %.2f, want exactly 0", got)
	}
	if got := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 10}, &outdoor, &indoor); got != 0 {
		t.Fatalf("outdoor-indoor link: got %.2f, want exactly 0", got)
	}
	if got := m.ReceivedPowerDbm(16, Vec3{}, Vec3{X: 10}, nil, &outdoor); got == 0 {
		t.Fatal("missing metadata on one end must not block the link")
	}
}

// TestShadowingReproducible verifies two models with the same seed
// produce identical shadowed samples, and that shadowing never turns a
// blocked link into a usable one.
func TestShadowingReproducible(t *testing.T) {
	m1 := NewTgaxResidentialModel(5e9, 42)
	m2 := NewTgaxResidentialModel(5e9, 42)
	for i := 0; i < 10; i++ {
		s1 := m1.SampleReceivedPowerDbm(16, Vec3{}, Vec3{X: 8}, nil, nil)
		s2 := m2.SampleReceivedPowerDbm(16, Vec3{}, Vec3{X: 8}, nil, nil)
		if s1 != s2 {
			t.Fatalf("sample %d diverged under identical seeds: %.6f vs %.6f", i, s1, s2)
		}
	}

	indoor := BuildingInfo{Indoor: true}
	outdoor := BuildingInfo{Indoor: false}
	if got := m1.SampleReceivedPowerDbm(16, Vec3{}, Vec3{X: 8}, &indoor, &outdoor); got != 0 {
		t.Fatalf("shadowing applied to blocked link: got %.2f", got)
	}
}

// TestShadowingVaries verifies consecutive samples on the same link
// actually differ, i.e. the perturbation is drawn per sample.
func TestShadowingVaries(t *testing.T) {
	m := NewTgaxResidentialModel(5e9, 7)
	first := m.SampleReceivedPowerDbm(16, Vec3{}, Vec3{X: 8}, nil, nil)
	for i := 0; i < 10; i++ {
		if m.SampleReceivedPowerDbm(16, Vec3{}, Vec3{X: 8}, nil, nil) != first {
			return
		}
	}
	t.Fatal("ten consecutive shadowed samples were identical")
}
