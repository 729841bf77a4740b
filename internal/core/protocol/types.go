package protocol

import "fmt"

// RobotID identifies a single robot on the simulated network.
type RobotID int32

// Broadcast is the reserved receiver ID meaning "every registered robot
// except the sender". It is never a valid assignable robot ID.
const Broadcast RobotID = -1

// MessageType defines the type of message being sent. The codes are part of
// the wire format and must stay stable.
type MessageType int32

const (
	MessageTypeHeartbeat           MessageType = 0x01
	MessageTypePositionUpdate      MessageType = 0x02
	MessageTypeTaskAssignment      MessageType = 0x03
	MessageTypeStatusReport        MessageType = 0x04
	MessageTypeEmergencyStop       MessageType = 0x05
	MessageTypeCoordinationRequest MessageType = 0x06
	MessageTypeSensorData          MessageType = 0x07
	MessageTypeAcknowledgment      MessageType = 0x08
)

func (mt MessageType) String() string {
	switch mt {
	case MessageTypeHeartbeat:
		return "heartbeat"
	case MessageTypePositionUpdate:
		return "position_update"
	case MessageTypeTaskAssignment:
		return "task_assignment"
	case MessageTypeStatusReport:
		return "status_report"
	case MessageTypeEmergencyStop:
		return "emergency_stop"
	case MessageTypeCoordinationRequest:
		return "coordination_request"
	case MessageTypeSensorData:
		return "sensor_data"
	case MessageTypeAcknowledgment:
		return "acknowledgment"
	default:
		return "unknown"
	}
}

// MessageTypeFromCode maps a wire code back to its MessageType.
func MessageTypeFromCode(code int32) (MessageType, error) {
	mt := MessageType(code)
	switch mt {
	case MessageTypeHeartbeat, MessageTypePositionUpdate, MessageTypeTaskAssignment,
		MessageTypeStatusReport, MessageTypeEmergencyStop, MessageTypeCoordinationRequest,
		MessageTypeSensorData, MessageTypeAcknowledgment:
		return mt, nil
	default:
		return 0, fmt.Errorf("%w: code %d", ErrUnknownMessageType, code)
	}
}

// Robot operating states carried inside a RobotStatus report.
const (
	StateIdle          = "IDLE"
	StateMoving        = "MOVING"
	StateWorking       = "WORKING"
	StateError         = "ERROR"
	StateCharging      = "CHARGING"
	StateEmergencyStop = "EMERGENCY_STOP"
	StateCoordinating  = "COORDINATING"
)
