package netsim

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmlink/swarmlink/internal/core/observability/log"
	"github.com/swarmlink/swarmlink/internal/core/protocol"
)

// Endpoint is anything the simulator can deliver a message to.
type Endpoint interface {
	ID() protocol.RobotID
	Deliver(msg protocol.Message)
}

// Simulator is an in-process fault-injection layer routing messages between
// registered endpoints. It models packet loss and delivery latency; it is not
// a network stack and exposes no wire protocol of its own.
//
// Construct one per scenario with New and pass it explicitly to every robot.
type Simulator struct {
	mu        sync.RWMutex
	endpoints map[protocol.RobotID]Endpoint

	condMu   sync.RWMutex
	lossRate float64
	delay    time.Duration
	jitter   time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand

	sched  *scheduler
	stats  *stats
	logger log.Log
	closed atomic.Bool
}

// Option configures a Simulator at construction time.
type Option func(*Simulator)

// WithLossRate sets the packet loss probability, clamped to [0, 1].
func WithLossRate(p float64) Option {
	return func(s *Simulator) { s.lossRate = clamp01(p) }
}

// WithDelay sets the base delivery delay. Negative values become zero.
func WithDelay(d time.Duration) Option {
	return func(s *Simulator) { s.delay = maxDuration(d, 0) }
}

// WithJitter adds up to j of extra random delay per message. Jitter makes the
// per-message delay independent, so deliveries from a single sender can
// arrive reordered.
func WithJitter(j time.Duration) Option {
	return func(s *Simulator) { s.jitter = maxDuration(j, 0) }
}

// WithSeed makes the loss and jitter draws deterministic.
func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.rng = rand.New(rand.NewSource(seed)) }
}

func WithLogger(l log.Log) Option {
	return func(s *Simulator) { s.logger = l }
}

// New creates a simulator and starts its delivery scheduler.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		endpoints: make(map[protocol.RobotID]Endpoint),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stats:     newStats(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.Provide()
	}
	s.logger = s.logger.With(log.String("component", "netsim"))
	s.sched = newScheduler(s.dispatch)
	return s
}

// Register adds an endpoint to the live set. Registering an ID twice replaces
// the prior entry.
func (s *Simulator) Register(ep Endpoint) {
	s.mu.Lock()
	s.endpoints[ep.ID()] = ep
	s.mu.Unlock()
	s.logger.Debug("endpoint registered", log.Int32("robot_id", int32(ep.ID())))
}

// Unregister removes an endpoint. Unknown IDs are a no-op. Already-scheduled
// deliveries are not recalled; they drop at delivery time instead.
func (s *Simulator) Unregister(id protocol.RobotID) {
	s.mu.Lock()
	delete(s.endpoints, id)
	s.mu.Unlock()
	s.logger.Debug("endpoint unregistered", log.Int32("robot_id", int32(id)))
}

// Send draws for packet loss and, when the message survives, schedules it for
// delayed delivery. The return value reports acceptance into the network, not
// delivery. Loss is an expected network condition, never an error, and the
// simulator performs no retries.
func (s *Simulator) Send(msg protocol.Message) bool {
	if s.closed.Load() {
		return false
	}

	s.condMu.RLock()
	lossRate, delay, jitter := s.lossRate, s.delay, s.jitter
	s.condMu.RUnlock()

	if s.randFloat() < lossRate {
		s.stats.dropped.Add(1)
		s.logger.Debug("packet lost", log.String("message", msg.String()))
		return false
	}

	if jitter > 0 {
		delay += time.Duration(s.randFloat() * float64(jitter))
	}

	s.sched.schedule(msg, time.Now().Add(delay))
	s.stats.accepted.Add(1)
	return true
}

// SetLossRate updates the loss probability for subsequent sends, clamped to
// [0, 1]. In-flight scheduled deliveries are unaffected.
func (s *Simulator) SetLossRate(p float64) {
	s.condMu.Lock()
	s.lossRate = clamp01(p)
	s.condMu.Unlock()
}

// SetDelay updates the base delivery delay for subsequent sends. Negative
// values become zero.
func (s *Simulator) SetDelay(d time.Duration) {
	s.condMu.Lock()
	s.delay = maxDuration(d, 0)
	s.condMu.Unlock()
}

// SetJitter updates the per-message random extra delay for subsequent sends.
func (s *Simulator) SetJitter(j time.Duration) {
	s.condMu.Lock()
	s.jitter = maxDuration(j, 0)
	s.condMu.Unlock()
}

// Stats returns a snapshot of the simulator's delivery counters.
func (s *Simulator) Stats() Stats {
	return s.stats.snapshot()
}

// FrameDeliveries reports how many times a frame with the given fingerprint
// has been handed to an endpoint.
func (s *Simulator) FrameDeliveries(fingerprint uint64) uint64 {
	return s.stats.frameDeliveries(fingerprint)
}

// Close stops the delivery scheduler. Pending deliveries are discarded and
// subsequent sends report non-acceptance.
func (s *Simulator) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.sched.stop()
	s.logger.Debug("simulator closed")
}

// dispatch runs on the scheduler goroutine when a message's delay elapses.
func (s *Simulator) dispatch(msg protocol.Message) {
	if msg.IsBroadcast() {
		s.mu.RLock()
		targets := make([]Endpoint, 0, len(s.endpoints))
		for id, ep := range s.endpoints {
			if id != msg.Sender {
				targets = append(targets, ep)
			}
		}
		s.mu.RUnlock()

		s.stats.broadcasts.Add(1)
		for _, ep := range targets {
			s.deliver(ep, msg)
		}
		return
	}

	s.mu.RLock()
	ep, ok := s.endpoints[msg.Receiver]
	s.mu.RUnlock()
	if !ok {
		// Expected condition: the receiver left (or never existed). Silent drop.
		s.stats.unknownReceiver.Add(1)
		s.logger.Debug("receiver not registered, dropping",
			log.Int32("receiver", int32(msg.Receiver)),
			log.String("message", msg.String()))
		return
	}
	s.deliver(ep, msg)
}

func (s *Simulator) deliver(ep Endpoint, msg protocol.Message) {
	s.stats.recordDelivery(msg.Fingerprint())
	ep.Deliver(msg)
}

func (s *Simulator) randFloat() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

func maxDuration(d, floor time.Duration) time.Duration {
	if d < floor {
		return floor
	}
	return d
}
