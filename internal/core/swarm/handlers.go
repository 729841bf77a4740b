package swarm

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/swarmlink/swarmlink/internal/core/observability/log"
	"github.com/swarmlink/swarmlink/internal/core/protocol"
)

// Default per-type handlers. All of them run on the dispatch goroutine; a
// decode failure skips the message and never terminates the loop.

func (r *Robot) handleHeartbeat(msg protocol.Message) {
	payload := fmt.Sprintf("heartbeat_ack_%d", msg.Sequence)
	r.Send(msg.Sender, protocol.MessageTypeAcknowledgment, []byte(payload))
}

func (r *Robot) handlePositionUpdate(msg protocol.Message) {
	pos, err := protocol.DecodePosition(msg.Payload)
	if err != nil {
		r.log.Warn("bad position update payload", log.Error(err))
		return
	}
	r.mu.Lock()
	r.peerPos[msg.Sender] = pos
	r.mu.Unlock()
	r.log.Debug("peer position updated",
		log.Int32("peer", int32(msg.Sender)),
		log.String("position", pos.String()))
}

func (r *Robot) handleTaskAssignment(msg protocol.Message) {
	task, err := protocol.DecodeTaskAssignment(msg.Payload)
	if err != nil {
		r.log.Warn("bad task assignment payload", log.Error(err))
		return
	}

	r.mu.Lock()
	r.status.CurrentTask = task.TaskID
	r.status.State = protocol.StateWorking
	r.mu.Unlock()

	r.log.Info("task accepted",
		log.String("task_id", task.TaskID),
		log.String("task_type", task.TaskType))
	r.Send(msg.Sender, protocol.MessageTypeAcknowledgment, []byte("task_accepted_"+task.TaskID))
}

func (r *Robot) handleStatusReport(msg protocol.Message) {
	status, err := protocol.DecodeRobotStatus(msg.Payload)
	if err != nil {
		r.log.Warn("bad status report payload", log.Error(err))
		return
	}
	r.mu.Lock()
	r.peerStatus[msg.Sender] = status
	r.mu.Unlock()
	r.log.Debug("peer status recorded", log.Int32("peer", int32(msg.Sender)))
}

func (r *Robot) handleEmergencyStop(msg protocol.Message) {
	r.mu.Lock()
	r.status.State = protocol.StateEmergencyStop
	r.mu.Unlock()

	r.log.Warn("emergency stop received", log.Int32("from", int32(msg.Sender)))
	r.SendBroadcast(protocol.MessageTypeAcknowledgment, []byte("emergency_stop_ack"))
}

func (r *Robot) handleCoordinationRequest(msg protocol.Message) {
	r.log.Debug("coordination request",
		log.Int32("from", int32(msg.Sender)),
		log.ByteString("request", msg.Payload))

	token := fmt.Sprintf("coordination_response_%d_%s", r.id, uuid.NewString())
	r.Send(msg.Sender, protocol.MessageTypeAcknowledgment, []byte(token))
}

func (r *Robot) handleSensorData(msg protocol.Message) {
	data := make([]byte, len(msg.Payload))
	copy(data, msg.Payload)
	r.mu.Lock()
	r.peerSensors[msg.Sender] = data
	r.mu.Unlock()
	r.log.Debug("sensor data recorded",
		log.Int32("peer", int32(msg.Sender)),
		log.Int("bytes", len(data)))
}

// handleAcknowledgment only records; replying here would ack the ack forever.
func (r *Robot) handleAcknowledgment(msg protocol.Message) {
	r.mu.Lock()
	r.acks = append(r.acks, Ack{
		From:     msg.Sender,
		Sequence: msg.Sequence,
		Payload:  string(msg.Payload),
	})
	r.mu.Unlock()
}
