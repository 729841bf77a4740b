package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/swarmlink/swarmlink/pkg/generic"
)

// Scratch buffers for the delimited-text codecs.
var bufPool = generic.NewPool(func() *bytes.Buffer {
	return new(bytes.Buffer)
})

// PositionLength is the fixed size of an encoded Position.
const PositionLength = 32

// Position is a robot pose: coordinates in meters, heading in radians.
type Position struct {
	X       float64
	Y       float64
	Z       float64
	Heading float64
}

// Encode packs the four coordinates as big-endian IEEE 754 doubles.
func (p Position) Encode() []byte {
	buf := make([]byte, PositionLength)
	binary.BigEndian.PutUint64(buf[0:], math.Float64bits(p.X))
	binary.BigEndian.PutUint64(buf[8:], math.Float64bits(p.Y))
	binary.BigEndian.PutUint64(buf[16:], math.Float64bits(p.Z))
	binary.BigEndian.PutUint64(buf[24:], math.Float64bits(p.Heading))
	return buf
}

// DecodePosition is the inverse of Position.Encode.
func DecodePosition(data []byte) (Position, error) {
	if len(data) != PositionLength {
		return Position{}, fmt.Errorf("%w: position payload is %d bytes, want %d",
			ErrCodec, len(data), PositionLength)
	}
	return Position{
		X:       math.Float64frombits(binary.BigEndian.Uint64(data[0:])),
		Y:       math.Float64frombits(binary.BigEndian.Uint64(data[8:])),
		Z:       math.Float64frombits(binary.BigEndian.Uint64(data[16:])),
		Heading: math.Float64frombits(binary.BigEndian.Uint64(data[24:])),
	}, nil
}

func (p Position) String() string {
	return fmt.Sprintf("Position(%.2f, %.2f, %.2f, heading=%.2f rad)", p.X, p.Y, p.Z, p.Heading)
}

// TaskAssignment describes work handed to a robot.
//
// The text codec uses '|' between fields, ',' inside the position, and
// "k=v;" pairs for parameters. None of the delimiter characters may appear
// in string values; the codec does not escape.
type TaskAssignment struct {
	TaskID     string
	TaskType   string
	Target     Position
	Parameters map[string]string
}

// NewTaskAssignment builds a task with an empty, non-nil parameter map.
func NewTaskAssignment(taskID, taskType string, target Position) TaskAssignment {
	return TaskAssignment{
		TaskID:     taskID,
		TaskType:   taskType,
		Target:     target,
		Parameters: make(map[string]string),
	}
}

// Encode renders "id|type|x,y,z,h|k=v;k=v;". Parameter order is unspecified.
func (t TaskAssignment) Encode() []byte {
	buf := bufPool.Get()
	defer func() {
		buf.Reset()
		bufPool.Put(buf)
	}()

	buf.WriteString(t.TaskID)
	buf.WriteByte('|')
	buf.WriteString(t.TaskType)
	buf.WriteByte('|')
	writePosition(buf, t.Target)
	buf.WriteByte('|')
	for k, v := range t.Parameters {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(v)
		buf.WriteByte(';')
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// DecodeTaskAssignment is the inverse of TaskAssignment.Encode.
func DecodeTaskAssignment(data []byte) (TaskAssignment, error) {
	parts := strings.Split(string(data), "|")
	if len(parts) != 4 {
		return TaskAssignment{}, fmt.Errorf("%w: task assignment has %d fields, want 4",
			ErrCodec, len(parts))
	}

	target, err := parsePosition(parts[2])
	if err != nil {
		return TaskAssignment{}, err
	}

	params, err := parseStringPairs(parts[3])
	if err != nil {
		return TaskAssignment{}, err
	}

	out := TaskAssignment{
		TaskID:     parts[0],
		TaskType:   parts[1],
		Target:     target,
		Parameters: make(map[string]string, len(params)),
	}
	for k, v := range params {
		out.Parameters[k] = v
	}
	return out, nil
}

func (t TaskAssignment) String() string {
	return fmt.Sprintf("Task[%s: %s at %s, params=%v]", t.TaskID, t.TaskType, t.Target, t.Parameters)
}

// RobotStatus is a self-report of a robot's operating condition.
type RobotStatus struct {
	RobotID     RobotID
	State       string  // one of the State* constants
	Battery     float64 // 0.0 to 1.0
	Position    Position
	CurrentTask string // empty when idle
	Sensors     map[string]float64
}

// NewRobotStatus builds a status with an empty, non-nil sensor map.
func NewRobotStatus(id RobotID, state string, battery float64, pos Position) RobotStatus {
	return RobotStatus{
		RobotID:  id,
		State:    state,
		Battery:  battery,
		Position: pos,
		Sensors:  make(map[string]float64),
	}
}

// Encode renders "id|state|battery|x,y,z,h|task|k=v;k=v;".
func (s RobotStatus) Encode() []byte {
	buf := bufPool.Get()
	defer func() {
		buf.Reset()
		bufPool.Put(buf)
	}()

	buf.WriteString(strconv.FormatInt(int64(s.RobotID), 10))
	buf.WriteByte('|')
	buf.WriteString(s.State)
	buf.WriteByte('|')
	buf.WriteString(formatFloat(s.Battery))
	buf.WriteByte('|')
	writePosition(buf, s.Position)
	buf.WriteByte('|')
	buf.WriteString(s.CurrentTask)
	buf.WriteByte('|')
	for k, v := range s.Sensors {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(formatFloat(v))
		buf.WriteByte(';')
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// DecodeRobotStatus is the inverse of RobotStatus.Encode.
func DecodeRobotStatus(data []byte) (RobotStatus, error) {
	parts := strings.Split(string(data), "|")
	if len(parts) != 6 {
		return RobotStatus{}, fmt.Errorf("%w: robot status has %d fields, want 6",
			ErrCodec, len(parts))
	}

	id, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return RobotStatus{}, fmt.Errorf("%w: robot id %q: %v", ErrCodec, parts[0], err)
	}

	battery, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return RobotStatus{}, fmt.Errorf("%w: battery level %q: %v", ErrCodec, parts[2], err)
	}

	pos, err := parsePosition(parts[3])
	if err != nil {
		return RobotStatus{}, err
	}

	pairs, err := parseStringPairs(parts[5])
	if err != nil {
		return RobotStatus{}, err
	}
	sensors := make(map[string]float64, len(pairs))
	for k, v := range pairs {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return RobotStatus{}, fmt.Errorf("%w: sensor reading %q=%q: %v", ErrCodec, k, v, err)
		}
		sensors[k] = f
	}

	return RobotStatus{
		RobotID:     RobotID(id),
		State:       parts[1],
		Battery:     battery,
		Position:    pos,
		CurrentTask: parts[4],
		Sensors:     sensors,
	}, nil
}

func (s RobotStatus) String() string {
	return fmt.Sprintf("RobotStatus[ID=%d, %s, battery=%.1f%%, pos=%s, task=%q]",
		s.RobotID, s.State, s.Battery*100, s.Position, s.CurrentTask)
}

// formatFloat keeps full float64 precision in text form.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writePosition(buf *bytes.Buffer, p Position) {
	buf.WriteString(formatFloat(p.X))
	buf.WriteByte(',')
	buf.WriteString(formatFloat(p.Y))
	buf.WriteByte(',')
	buf.WriteString(formatFloat(p.Z))
	buf.WriteByte(',')
	buf.WriteString(formatFloat(p.Heading))
}

func parsePosition(s string) (Position, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 4 {
		return Position{}, fmt.Errorf("%w: position %q has %d coordinates, want 4",
			ErrCodec, s, len(fields))
	}
	var coords [4]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Position{}, fmt.Errorf("%w: coordinate %q: %v", ErrCodec, f, err)
		}
		coords[i] = v
	}
	return Position{X: coords[0], Y: coords[1], Z: coords[2], Heading: coords[3]}, nil
}

// parseStringPairs parses "k=v;k=v;" into a map. Empty input yields an empty
// map; a pair without '=' is a codec error.
func parseStringPairs(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ";") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("%w: pair %q missing '='", ErrCodec, pair)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
}
