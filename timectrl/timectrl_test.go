package timectrl

import (
	"testing"
	"time"
)

// TestEventsFireInTimeOrder verifies events fire ordered by time
// regardless of scheduling order.
func TestEventsFireInTimeOrder(t *testing.T) {
	s := NewScheduler()
	var fired []int
	s.Schedule(30*time.Millisecond, func() { fired = append(fired, 3) })
	s.Schedule(10*time.Millisecond, func() { fired = append(fired, 1) })
	s.Schedule(20*time.Millisecond, func() { fired = append(fired, 2) })
	s.Run(time.Second)

	want := []int{1, 2, 3}
	if len(fired) != len(want) {
		t.Fatalf("fired %d events, want %d", len(fired), len(want))
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("firing order %v, want %v", fired, want)
		}
	}
}

// TestSimultaneousEventsKeepSchedulingOrder verifies the tiebreak for
// events at the same instant is scheduling order, which keeps runs
// deterministic.
func TestSimultaneousEventsKeepSchedulingOrder(t *testing.T) {
	s := NewScheduler()
	var fired []int
	for i := 0; i < 5; i++ {
		i := i
		s.Schedule(10*time.Millisecond, func() { fired = append(fired, i) })
	}
	s.Run(time.Second)
	for i := range fired {
		if fired[i] != i {
			t.Fatalf("tie-broken order %v, want ascending", fired)
		}
	}
}

// TestHandlerSchedulesMore verifies a handler can schedule follow-up
// events and the clock reads the firing time inside the handler.
func TestHandlerSchedulesMore(t *testing.T) {
	s := NewScheduler()
	var at []time.Duration
	var tick func()
	tick = func() {
		at = append(at, s.Now())
		if len(at) < 3 {
			s.Schedule(5*time.Millisecond, tick)
		}
	}
	s.Schedule(5*time.Millisecond, tick)
	s.Run(time.Second)

	want := []time.Duration{5 * time.Millisecond, 10 * time.Millisecond, 15 * time.Millisecond}
	for i := range want {
		if at[i] != want[i] {
			t.Fatalf("tick times %v, want %v", at, want)
		}
	}
}

// TestRunStopsAtDeadline verifies events beyond the stop time stay
// queued and the clock lands exactly on the stop time.
func TestRunStopsAtDeadline(t *testing.T) {
	s := NewScheduler()
	ran := false
	s.Schedule(2*time.Second, func() { ran = true })
	s.Run(time.Second)

	if ran {
		t.Error("event beyond the deadline fired")
	}
	if s.Now() != time.Second {
		t.Errorf("clock at %v, want 1s", s.Now())
	}
	if s.Pending() != 1 {
		t.Errorf("pending events: got %d, want 1", s.Pending())
	}
}

// TestStopHaltsRun verifies Stop inside a handler prevents later events
// from firing in the same Run.
func TestStopHaltsRun(t *testing.T) {
	s := NewScheduler()
	var fired []int
	s.Schedule(10*time.Millisecond, func() {
		fired = append(fired, 1)
		s.Stop()
	})
	s.Schedule(20*time.Millisecond, func() { fired = append(fired, 2) })
	s.Run(time.Second)

	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("fired %v, want just the stopping event", fired)
	}
}

// TestPastEventsFireNow verifies scheduling at an absolute time in the
// past fires at the current clock rather than rewinding it.
func TestPastEventsFireNow(t *testing.T) {
	s := NewScheduler()
	var when time.Duration
	s.Schedule(50*time.Millisecond, func() {
		s.ScheduleAt(10*time.Millisecond, func() { when = s.Now() })
	})
	s.Run(time.Second)

	if when != 50*time.Millisecond {
		t.Errorf("past event fired at %v, want 50ms", when)
	}
}
