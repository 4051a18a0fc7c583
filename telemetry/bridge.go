package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShenMuyuan/networkgym/internal/logging"
)

// Sample is one named scalar in a measurement record.
type Sample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Measurement is a tagged set of samples keyed by a group name, a
// per-record integer id and a simulation timestamp in milliseconds.
type Measurement struct {
	Group       string   `json:"group"`
	ID          int      `json:"id"`
	TimestampMs int64    `json:"timestamp_ms"`
	Samples     []Sample `json:"samples"`
}

// Append adds a named sample to the record.
func (m *Measurement) Append(name string, value float64) {
	m.Samples = append(m.Samples, Sample{Name: name, Value: value})
}

// Action is a scalar delivered asynchronously by the controller.
type Action struct {
	Name  string  `json:"name"`
	ID    int     `json:"id"`
	Value float64 `json:"value"`
}

type batch struct {
	Type    string        `json:"type"`
	Records []Measurement `json:"records"`
}

// Bridge accumulates measurement records and flushes them to the
// controller over a websocket, and receives actions on the same
// connection. With no connection (loopback mode) flushed batches are
// retained for inspection and actions are injected directly; this is
// also the mode used when no controller endpoint is configured.
type Bridge struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	log       logging.Logger
	maxWait   time.Duration
	pending   []Measurement
	lastBatch []Measurement
	actions   chan Action
	callbacks map[string]func(float64)
	closed    bool
}

// Dial connects the bridge to a controller endpoint.
func Dial(url string, maxWait time.Duration, log logging.Logger) (*Bridge, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial telemetry endpoint %q: %w", url, err)
	}
	b := newBridge(conn, maxWait, log)
	go b.readLoop()
	return b, nil
}

// NewLoopback returns a disconnected bridge. Actions arrive via
// InjectAction and flushed batches are kept in memory.
func NewLoopback(maxWait time.Duration, log logging.Logger) *Bridge {
	return newBridge(nil, maxWait, log)
}

func newBridge(conn *websocket.Conn, maxWait time.Duration, log logging.Logger) *Bridge {
	if log == nil {
		log = logging.Noop()
	}
	return &Bridge{
		conn:      conn,
		log:       log,
		maxWait:   maxWait,
		actions:   make(chan Action, 16),
		callbacks: make(map[string]func(float64)),
	}
}

// RegisterActionCallback binds a handler to a named action. The handler
// runs on the simulation thread, inside AwaitAction.
func (b *Bridge) RegisterActionCallback(name string, fn func(float64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks[name] = fn
}

// AppendMeasurement queues a record for the next flush.
func (b *Bridge) AppendMeasurement(m Measurement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, m)
}

// Flush sends all queued records as a single batch.
func (b *Bridge) Flush() error {
	b.mu.Lock()
	records := b.pending
	b.pending = nil
	b.lastBatch = records
	conn := b.conn
	b.mu.Unlock()

	if conn == nil || len(records) == 0 {
		return nil
	}
	if err := conn.WriteJSON(batch{Type: "measurement", Records: records}); err != nil {
		return fmt.Errorf("write measurement batch: %w", err)
	}
	return nil
}

// LastBatch returns the records from the most recent flush.
func (b *Bridge) LastBatch() []Measurement {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastBatch
}

// InjectAction feeds an action into the bridge as if it had arrived
// from the controller. Used in loopback mode.
func (b *Bridge) InjectAction(a Action) {
	b.actions <- a
}

// AwaitAction blocks for at most the configured wait time for an
// action, dispatching its callback when one arrives. It returns whether
// an action was applied; on timeout the simulation proceeds with no
// change.
func (b *Bridge) AwaitAction() bool {
	var a Action
	if b.maxWait <= 0 {
		select {
		case a = <-b.actions:
		default:
			return false
		}
	} else {
		timer := time.NewTimer(b.maxWait)
		defer timer.Stop()
		select {
		case a = <-b.actions:
		case <-timer.C:
			return false
		}
	}

	b.mu.Lock()
	fn := b.callbacks[a.Name]
	b.mu.Unlock()
	if fn == nil {
		b.log.Warn(context.Background(), "action with no registered callback",
			logging.String("action", a.Name))
		return false
	}
	fn(a.Value)
	return true
}

// Close shuts the connection down.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func (b *Bridge) readLoop() {
	for {
		var a Action
		if err := b.conn.ReadJSON(&a); err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				b.log.Error(context.Background(), "telemetry read failed",
					logging.Any("error", err))
			}
			return
		}
		select {
		case b.actions <- a:
		default:
			b.log.Warn(context.Background(), "dropping action, queue full",
				logging.String("action", a.Name))
		}
	}
}
