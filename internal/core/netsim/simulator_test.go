package netsim

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmlink/swarmlink/internal/core/protocol"
)

// testEndpoint records every message it receives.
type testEndpoint struct {
	id       protocol.RobotID
	mu       sync.Mutex
	received []protocol.Message
}

func newTestEndpoint(id protocol.RobotID) *testEndpoint {
	return &testEndpoint{id: id}
}

func (e *testEndpoint) ID() protocol.RobotID { return e.id }

func (e *testEndpoint) Deliver(msg protocol.Message) {
	e.mu.Lock()
	e.received = append(e.received, msg)
	e.mu.Unlock()
}

func (e *testEndpoint) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.received)
}

func heartbeat(sender, receiver protocol.RobotID, seq uint32) protocol.Message {
	return protocol.NewMessage(sender, receiver, protocol.MessageTypeHeartbeat, []byte("hb"), seq)
}

func TestSimulator_UnicastDelivery(t *testing.T) {
	sim := New(WithLossRate(0), WithDelay(0))
	defer sim.Close()

	a := newTestEndpoint(1)
	b := newTestEndpoint(2)
	sim.Register(a)
	sim.Register(b)

	require.True(t, sim.Send(heartbeat(1, 2, 1)), "lossless send must be accepted")

	require.Eventually(t, func() bool { return b.count() == 1 },
		time.Second, 5*time.Millisecond, "message should reach the receiver")
	assert.Zero(t, a.count(), "sender must not receive its own unicast")

	st := sim.Stats()
	assert.Equal(t, uint64(1), st.Accepted)
	assert.Equal(t, uint64(1), st.Delivered)
	assert.Zero(t, st.Dropped)
}

func TestSimulator_TotalLoss(t *testing.T) {
	sim := New(WithLossRate(1.0), WithDelay(0))
	defer sim.Close()

	b := newTestEndpoint(2)
	sim.Register(b)

	for seq := uint32(1); seq <= 10; seq++ {
		assert.False(t, sim.Send(heartbeat(1, 2, seq)), "every send must be lost at rate 1.0")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, b.count())

	st := sim.Stats()
	assert.Equal(t, uint64(10), st.Dropped)
	assert.Zero(t, st.Accepted)
	assert.Zero(t, st.Delivered)
}

func TestSimulator_BroadcastExcludesSender(t *testing.T) {
	sim := New(WithLossRate(0), WithDelay(0))
	defer sim.Close()

	a := newTestEndpoint(1)
	b := newTestEndpoint(2)
	c := newTestEndpoint(3)
	sim.Register(a)
	sim.Register(b)
	sim.Register(c)

	require.True(t, sim.Send(heartbeat(1, protocol.Broadcast, 1)))

	require.Eventually(t, func() bool { return b.count() == 1 && c.count() == 1 },
		time.Second, 5*time.Millisecond, "broadcast should reach all other endpoints")
	assert.Zero(t, a.count(), "broadcast must not loop back to the sender")

	st := sim.Stats()
	assert.Equal(t, uint64(1), st.Broadcasts)
	assert.Equal(t, uint64(2), st.Delivered)
}

func TestSimulator_UnknownReceiverSilentDrop(t *testing.T) {
	sim := New(WithLossRate(0), WithDelay(0))
	defer sim.Close()

	sim.Register(newTestEndpoint(1))

	require.True(t, sim.Send(heartbeat(1, 99, 1)), "loss draw happens before routing")

	require.Eventually(t, func() bool { return sim.Stats().UnknownReceiver == 1 },
		time.Second, 5*time.Millisecond)
	assert.Zero(t, sim.Stats().Delivered)
}

func TestSimulator_UnregisterDropsInFlight(t *testing.T) {
	sim := New(WithLossRate(0), WithDelay(30*time.Millisecond))
	defer sim.Close()

	b := newTestEndpoint(2)
	sim.Register(b)

	require.True(t, sim.Send(heartbeat(1, 2, 1)))
	sim.Unregister(2)

	require.Eventually(t, func() bool { return sim.Stats().UnknownReceiver == 1 },
		time.Second, 5*time.Millisecond, "in-flight delivery to a removed endpoint drops")
	assert.Zero(t, b.count())
}

func TestSimulator_DelayedDelivery(t *testing.T) {
	const delay = 60 * time.Millisecond

	sim := New(WithLossRate(0), WithDelay(delay))
	defer sim.Close()

	b := newTestEndpoint(2)
	sim.Register(b)

	start := time.Now()
	require.True(t, sim.Send(heartbeat(1, 2, 1)))

	require.Eventually(t, func() bool { return b.count() == 1 },
		time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), delay, "delivery must wait out the base delay")
}

func TestSimulator_SetLossRateClamped(t *testing.T) {
	sim := New(WithLossRate(0), WithDelay(0))
	defer sim.Close()
	sim.Register(newTestEndpoint(2))

	sim.SetLossRate(1.5)
	assert.False(t, sim.Send(heartbeat(1, 2, 1)), "rates above 1 clamp to total loss")

	sim.SetLossRate(-0.5)
	assert.True(t, sim.Send(heartbeat(1, 2, 2)), "rates below 0 clamp to lossless")
}

func TestSimulator_Close(t *testing.T) {
	sim := New(WithLossRate(0), WithDelay(50*time.Millisecond))

	b := newTestEndpoint(2)
	sim.Register(b)

	require.True(t, sim.Send(heartbeat(1, 2, 1)))
	sim.Close()

	assert.False(t, sim.Send(heartbeat(1, 2, 2)), "sends after close are not accepted")

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, b.count(), "close discards pending deliveries")

	sim.Close() // second close is a no-op
}

func TestSimulator_FrameDeliveryTrace(t *testing.T) {
	sim := New(WithLossRate(0), WithDelay(0))
	defer sim.Close()

	b := newTestEndpoint(2)
	sim.Register(b)

	msg := heartbeat(1, 2, 1)
	require.True(t, sim.Send(msg))
	require.True(t, sim.Send(msg), "the same frame can enter the network twice")

	require.Eventually(t, func() bool { return b.count() == 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), sim.FrameDeliveries(msg.Fingerprint()))
	assert.Equal(t, 1, sim.Stats().UniqueFrames)
}

func TestSimulator_SeededLossIsDeterministic(t *testing.T) {
	run := func() []bool {
		sim := New(WithLossRate(0.5), WithDelay(0), WithSeed(7))
		defer sim.Close()
		sim.Register(newTestEndpoint(2))

		outcomes := make([]bool, 0, 32)
		for seq := uint32(1); seq <= 32; seq++ {
			outcomes = append(outcomes, sim.Send(heartbeat(1, 2, seq)))
		}
		return outcomes
	}

	first := run()
	second := run()
	assert.Equal(t, first, second, "identical seeds must reproduce the loss pattern")
	assert.Contains(t, first, true)
	assert.Contains(t, first, false)
}
