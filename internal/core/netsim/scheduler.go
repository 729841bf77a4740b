package netsim

import (
	"sync"
	"time"

	"github.com/swarmlink/swarmlink/internal/core/protocol"
	"github.com/swarmlink/swarmlink/pkg/sequence"
)

// scheduler executes delayed deliveries on a single goroutine draining a
// time-ordered queue, so resource usage stays bounded no matter how many
// messages are in flight.
type scheduler struct {
	mu    sync.Mutex
	queue *sequence.DelayQueue[protocol.Message]

	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	deliver func(protocol.Message)
}

func newScheduler(deliver func(protocol.Message)) *scheduler {
	s := &scheduler{
		queue:   sequence.NewDelayQueue[protocol.Message](),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		deliver: deliver,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// schedule enqueues a message for delivery at the given time.
func (s *scheduler) schedule(msg protocol.Message, at time.Time) {
	s.mu.Lock()
	s.queue.Enqueue(msg, at.UnixNano())
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *scheduler) stop() {
	close(s.done)
	s.wg.Wait()
}

func (s *scheduler) run() {
	defer s.wg.Done()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		now := time.Now().UnixNano()

		s.mu.Lock()
		var due []protocol.Message
		for {
			msg, ok := s.queue.DequeueDue(now)
			if !ok {
				break
			}
			due = append(due, msg)
		}
		next, pending := s.queue.Peek()
		s.mu.Unlock()

		for _, msg := range due {
			s.deliver(msg)
		}

		if pending {
			timer.Reset(time.Duration(next - now))
			select {
			case <-timer.C:
			case <-s.wake:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-s.done:
				return
			}
		} else {
			select {
			case <-s.wake:
			case <-s.done:
				return
			}
		}
	}
}
