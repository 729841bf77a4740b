package swarm

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/swarmlink/swarmlink/internal/core/netsim"
	"github.com/swarmlink/swarmlink/internal/core/observability/log"
	"github.com/swarmlink/swarmlink/internal/core/protocol"
)

// defaultInboxSize bounds how many validated messages can wait for dispatch.
const defaultInboxSize = 256

// Handler processes one dispatched message. Handlers run on the robot's
// dispatch goroutine and must not block beyond issuing further sends.
type Handler func(msg protocol.Message)

// Ack is a recorded acknowledgment, kept for caller-visible correlation.
type Ack struct {
	From     protocol.RobotID
	Sequence uint32
	Payload  string
}

// Robot is an independent participant on the simulated network. It owns its
// identity, an outbound sequence counter, a per-peer dedup table, and an
// asynchronous inbox drained by a single dispatch goroutine.
type Robot struct {
	id   protocol.RobotID
	name string
	net  *netsim.Simulator
	log  log.Log

	seq atomic.Uint32

	mu          sync.RWMutex
	position    protocol.Position
	status      protocol.RobotStatus
	lastSeen    map[protocol.RobotID]uint32 // highest sequence accepted per peer
	peerPos     map[protocol.RobotID]protocol.Position
	peerStatus  map[protocol.RobotID]protocol.RobotStatus
	peerSensors map[protocol.RobotID][]byte
	acks        []Ack
	handlers    map[protocol.MessageType]Handler

	inbox  chan protocol.Message
	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

// RobotOption configures a Robot at construction time.
type RobotOption func(*Robot)

func WithRobotLogger(l log.Log) RobotOption {
	return func(r *Robot) { r.log = l }
}

// WithInboxSize overrides the inbox capacity.
func WithInboxSize(n int) RobotOption {
	return func(r *Robot) { r.inbox = make(chan protocol.Message, n) }
}

// NewRobot creates a robot and starts its dispatch goroutine. The caller
// still has to register it with the simulator to receive traffic.
func NewRobot(id protocol.RobotID, name string, pos protocol.Position, net *netsim.Simulator, opts ...RobotOption) *Robot {
	r := &Robot{
		id:          id,
		name:        name,
		net:         net,
		position:    pos,
		status:      protocol.NewRobotStatus(id, protocol.StateIdle, 1.0, pos),
		lastSeen:    make(map[protocol.RobotID]uint32),
		peerPos:     make(map[protocol.RobotID]protocol.Position),
		peerStatus:  make(map[protocol.RobotID]protocol.RobotStatus),
		peerSensors: make(map[protocol.RobotID][]byte),
		inbox:       make(chan protocol.Message, defaultInboxSize),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = log.Provide()
	}
	r.log = r.log.With(log.Int32("robot_id", int32(id)), log.String("robot", name))

	r.handlers = map[protocol.MessageType]Handler{
		protocol.MessageTypeHeartbeat:           r.handleHeartbeat,
		protocol.MessageTypePositionUpdate:      r.handlePositionUpdate,
		protocol.MessageTypeTaskAssignment:      r.handleTaskAssignment,
		protocol.MessageTypeStatusReport:        r.handleStatusReport,
		protocol.MessageTypeEmergencyStop:       r.handleEmergencyStop,
		protocol.MessageTypeCoordinationRequest: r.handleCoordinationRequest,
		protocol.MessageTypeSensorData:          r.handleSensorData,
		protocol.MessageTypeAcknowledgment:      r.handleAcknowledgment,
	}

	r.wg.Add(1)
	go r.dispatchLoop()
	return r
}

// ID implements netsim.Endpoint.
func (r *Robot) ID() protocol.RobotID {
	return r.id
}

func (r *Robot) Name() string {
	return r.name
}

// Send assigns the next sequence number, builds the envelope and hands it to
// the simulator. Fire-and-forget: the return value only reports acceptance
// into the network. Reliability, if wanted, is the caller's policy.
func (r *Robot) Send(receiver protocol.RobotID, msgType protocol.MessageType, payload []byte) bool {
	if r.closed.Load() {
		return false
	}
	msg := protocol.NewMessage(r.id, receiver, msgType, payload, r.seq.Add(1))
	accepted := r.net.Send(msg)
	if !accepted {
		r.log.Debug("message not accepted by network", log.String("message", msg.String()))
	}
	return accepted
}

// SendBroadcast sends to every registered robot except this one.
func (r *Robot) SendBroadcast(msgType protocol.MessageType, payload []byte) bool {
	return r.Send(protocol.Broadcast, msgType, payload)
}

// Deliver implements netsim.Endpoint; the simulator calls it when a message's
// delay elapses. Integrity and staleness failures are absorbed here: they are
// logged and dropped without reaching any handler.
func (r *Robot) Deliver(msg protocol.Message) {
	if r.closed.Load() {
		return
	}

	if !msg.Verify() {
		r.log.Warn("checksum mismatch, discarding",
			log.String("message", msg.String()),
			log.Uint64("fingerprint", msg.Fingerprint()))
		return
	}

	r.mu.Lock()
	if last, seen := r.lastSeen[msg.Sender]; seen && msg.Sequence <= last {
		r.mu.Unlock()
		r.log.Debug("duplicate or stale message ignored", log.String("message", msg.String()))
		return
	}
	r.lastSeen[msg.Sender] = msg.Sequence
	r.mu.Unlock()

	select {
	case r.inbox <- msg:
	case <-r.done:
	}
}

// Close stops the dispatch goroutine. Later Deliver calls are silently
// ignored. Close is idempotent.
func (r *Robot) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	close(r.done)
	r.wg.Wait()
	r.log.Debug("robot shut down")
}

// RegisterHandler replaces the handler for a message type. Intended for
// application-level overrides before traffic starts flowing.
func (r *Robot) RegisterHandler(msgType protocol.MessageType, h Handler) {
	r.mu.Lock()
	r.handlers[msgType] = h
	r.mu.Unlock()
}

func (r *Robot) dispatchLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case msg := <-r.inbox:
			r.dispatch(msg)
		}
	}
}

func (r *Robot) dispatch(msg protocol.Message) {
	r.mu.RLock()
	h, ok := r.handlers[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Warn("no handler for message type", log.String("type", msg.Type.String()))
		return
	}
	h(msg)
}

// UpdatePosition moves the robot and keeps its status in sync.
func (r *Robot) UpdatePosition(x, y, z, heading float64) {
	r.mu.Lock()
	r.position = protocol.Position{X: x, Y: y, Z: z, Heading: heading}
	r.status.Position = r.position
	r.mu.Unlock()
}

// UpdateBattery sets the battery level, clamped to [0, 1].
func (r *Robot) UpdateBattery(level float64) {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	r.mu.Lock()
	r.status.Battery = level
	r.mu.Unlock()
}

// AddSensorReading records a local sensor value for the next status report.
func (r *Robot) AddSensorReading(sensor string, value float64) {
	r.mu.Lock()
	r.status.Sensors[sensor] = value
	r.mu.Unlock()
}

// SetState sets the robot's operating state to one of the protocol.State*
// values.
func (r *Robot) SetState(state string) {
	r.mu.Lock()
	r.status.State = state
	r.mu.Unlock()
}

// SendHeartbeat broadcasts a liveness probe.
func (r *Robot) SendHeartbeat() bool {
	payload := fmt.Sprintf("heartbeat_%d", time.Now().UnixMilli())
	return r.SendBroadcast(protocol.MessageTypeHeartbeat, []byte(payload))
}

// SendPositionUpdate broadcasts the robot's current pose.
func (r *Robot) SendPositionUpdate() bool {
	r.mu.RLock()
	pos := r.position
	r.mu.RUnlock()
	return r.SendBroadcast(protocol.MessageTypePositionUpdate, pos.Encode())
}

// SendStatusReport broadcasts the robot's full status.
func (r *Robot) SendStatusReport() bool {
	r.mu.Lock()
	r.status.Position = r.position
	payload := r.status.Encode()
	r.mu.Unlock()
	return r.SendBroadcast(protocol.MessageTypeStatusReport, payload)
}

// AssignTask sends a task assignment to a specific robot.
func (r *Robot) AssignTask(target protocol.RobotID, task protocol.TaskAssignment) bool {
	return r.Send(target, protocol.MessageTypeTaskAssignment, task.Encode())
}

// SendEmergencyStop broadcasts an emergency halt to the whole fleet.
func (r *Robot) SendEmergencyStop() bool {
	return r.SendBroadcast(protocol.MessageTypeEmergencyStop, []byte("emergency_stop"))
}

// Position returns the robot's current pose.
func (r *Robot) Position() protocol.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.position
}

// Status returns a deep copy of the robot's own status.
func (r *Robot) Status() protocol.RobotStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyStatus(r.status)
}

// PeerPosition returns the last known pose of a peer, if any was received.
func (r *Robot) PeerPosition(id protocol.RobotID) (protocol.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pos, ok := r.peerPos[id]
	return pos, ok
}

// PeerStatus returns the last status reported by a peer, if any.
func (r *Robot) PeerStatus(id protocol.RobotID) (protocol.RobotStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.peerStatus[id]
	if !ok {
		return protocol.RobotStatus{}, false
	}
	return copyStatus(st), true
}

// PeerSensorData returns the last raw sensor payload received from a peer.
func (r *Robot) PeerSensorData(id protocol.RobotID) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.peerSensors[id]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Acks returns all acknowledgments received so far, in arrival order.
func (r *Robot) Acks() []Ack {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Ack, len(r.acks))
	copy(out, r.acks)
	return out
}

func copyStatus(s protocol.RobotStatus) protocol.RobotStatus {
	out := s
	out.Sensors = make(map[string]float64, len(s.Sensors))
	for k, v := range s.Sensors {
		out.Sensors[k] = v
	}
	return out
}
