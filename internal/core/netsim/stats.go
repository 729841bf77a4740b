package netsim

import (
	"sync"
	"sync/atomic"
)

// Stats is a point-in-time snapshot of the simulator's counters.
type Stats struct {
	Accepted        uint64 // sends that survived the loss draw
	Dropped         uint64 // sends lost to the loss draw
	Delivered       uint64 // individual endpoint deliveries
	Broadcasts      uint64 // broadcast fan-outs executed
	UnknownReceiver uint64 // unicasts dropped for an unregistered receiver
	UniqueFrames    int    // distinct frame fingerprints delivered
}

type stats struct {
	accepted        atomic.Uint64
	dropped         atomic.Uint64
	delivered       atomic.Uint64
	broadcasts      atomic.Uint64
	unknownReceiver atomic.Uint64

	mu     sync.Mutex
	frames map[uint64]uint64
}

func newStats() *stats {
	return &stats{
		frames: make(map[uint64]uint64),
	}
}

// recordDelivery counts one endpoint delivery and traces the frame
// fingerprint, so duplicated frames show up in the trace.
func (s *stats) recordDelivery(fingerprint uint64) {
	s.delivered.Add(1)
	s.mu.Lock()
	s.frames[fingerprint]++
	s.mu.Unlock()
}

func (s *stats) frameDeliveries(fingerprint uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[fingerprint]
}

func (s *stats) snapshot() Stats {
	s.mu.Lock()
	unique := len(s.frames)
	s.mu.Unlock()

	return Stats{
		Accepted:        s.accepted.Load(),
		Dropped:         s.dropped.Load(),
		Delivered:       s.delivered.Load(),
		Broadcasts:      s.broadcasts.Load(),
		UnknownReceiver: s.unknownReceiver.Load(),
		UniqueFrames:    unique,
	}
}
