// Package timectrl drives simulation time: a deterministic
// discrete-event scheduler whose clock only advances when events fire.
package timectrl

import (
	"container/heap"
	"time"
)

// SimClock is an interface for accessing simulation time, so components
// depend on a clock abstraction rather than the scheduler itself.
type SimClock interface {
	// Now returns the elapsed simulation time.
	Now() time.Duration
}

type event struct {
	at  time.Duration
	seq uint64 // tiebreak: scheduling order
	fn  func()
}

type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// Scheduler is a single-threaded discrete-event scheduler. Events fire
// in (time, scheduling-order) order; handlers run synchronously and may
// schedule further events. Determinism depends only on the scheduled
// event set, never on wall-clock time.
type Scheduler struct {
	now     time.Duration
	seq     uint64
	events  eventHeap
	stopped bool
}

// NewScheduler returns a scheduler with the clock at zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the current simulation time. Implements SimClock.
func (s *Scheduler) Now() time.Duration { return s.now }

// Schedule enqueues fn to run after delay of simulation time. A
// negative delay is treated as zero.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.ScheduleAt(s.now+delay, fn)
}

// ScheduleAt enqueues fn at an absolute simulation time. Times in the
// past fire at the current time, after already-queued events.
func (s *Scheduler) ScheduleAt(at time.Duration, fn func()) {
	if at < s.now {
		at = s.now
	}
	s.seq++
	heap.Push(&s.events, &event{at: at, seq: s.seq, fn: fn})
}

// Run fires events until the queue is empty or the next event lies
// beyond the stop time. The clock finishes at the stop time.
func (s *Scheduler) Run(until time.Duration) {
	s.stopped = false
	for len(s.events) > 0 && !s.stopped {
		next := s.events[0]
		if next.at > until {
			break
		}
		heap.Pop(&s.events)
		s.now = next.at
		next.fn()
	}
	if s.now < until {
		s.now = until
	}
}

// Stop halts Run after the currently executing event returns.
func (s *Scheduler) Stop() { s.stopped = true }

// Pending returns the number of queued events.
func (s *Scheduler) Pending() int { return len(s.events) }
