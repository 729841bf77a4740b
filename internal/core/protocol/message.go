package protocol

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ChecksumLength is the length of the hex-encoded integrity tag carried at
// the end of every encoded frame.
const ChecksumLength = 8

// headerLength covers sender, receiver, type, timestamp, sequence and the
// payload length prefix.
const headerLength = 4 + 4 + 4 + 8 + 4 + 4

// Message is the atomic unit of robot communication. Fields are set once at
// construction or decode and are not mutated afterwards.
type Message struct {
	Sender    RobotID
	Receiver  RobotID
	Type      MessageType
	Timestamp int64 // milliseconds since epoch
	Sequence  uint32
	Payload   []byte
	Checksum  string
}

// NewMessage builds a message and computes its integrity tag. The payload is
// copied so later mutation by the caller cannot invalidate the tag.
func NewMessage(sender, receiver RobotID, msgType MessageType, payload []byte, sequence uint32) Message {
	p := make([]byte, len(payload))
	copy(p, payload)

	m := Message{
		Sender:    sender,
		Receiver:  receiver,
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Sequence:  sequence,
		Payload:   p,
	}
	m.Checksum = m.computeChecksum()
	return m
}

// computeChecksum digests sender, receiver, type code, sequence and payload.
// The timestamp is deliberately excluded so resending identical logical
// content produces the same tag regardless of clock.
func (m Message) computeChecksum() string {
	buf := make([]byte, 16, 16+len(m.Payload))
	binary.BigEndian.PutUint32(buf[0:], uint32(m.Sender))
	binary.BigEndian.PutUint32(buf[4:], uint32(m.Receiver))
	binary.BigEndian.PutUint32(buf[8:], uint32(m.Type))
	binary.BigEndian.PutUint32(buf[12:], m.Sequence)
	buf = append(buf, m.Payload...)

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])[:ChecksumLength]
}

// Verify recomputes the integrity tag from the current field values and
// reports whether it matches the stored one.
func (m Message) Verify() bool {
	return m.Checksum == m.computeChecksum()
}

// Encode produces the wire frame:
//
//	[sender:4][receiver:4][type:4][timestamp:8]
//	[sequence:4][payloadLen:4][payload:N][checksum:8]
//
// All integers are big-endian.
func (m Message) Encode() []byte {
	frame := make([]byte, headerLength+len(m.Payload)+ChecksumLength)

	offset := 0
	binary.BigEndian.PutUint32(frame[offset:], uint32(m.Sender))
	offset += 4
	binary.BigEndian.PutUint32(frame[offset:], uint32(m.Receiver))
	offset += 4
	binary.BigEndian.PutUint32(frame[offset:], uint32(m.Type))
	offset += 4
	binary.BigEndian.PutUint64(frame[offset:], uint64(m.Timestamp))
	offset += 8
	binary.BigEndian.PutUint32(frame[offset:], m.Sequence)
	offset += 4
	binary.BigEndian.PutUint32(frame[offset:], uint32(len(m.Payload)))
	offset += 4
	copy(frame[offset:], m.Payload)
	offset += len(m.Payload)
	copy(frame[offset:], m.Checksum)

	return frame
}

// Decode parses a wire frame produced by Encode. Truncated or inconsistent
// input fails with ErrMalformedMessage; an unrecognized type code fails with
// ErrUnknownMessageType. A message is only returned when the whole frame
// parsed, so callers never see a partially populated envelope. The stored
// checksum comes from the frame itself: corruption in transit is detected by
// Verify on the decoded message, not by Decode.
func Decode(data []byte) (Message, error) {
	if len(data) < headerLength+ChecksumLength {
		return Message{}, fmt.Errorf("%w: frame of %d bytes shorter than minimum %d",
			ErrMalformedMessage, len(data), headerLength+ChecksumLength)
	}

	offset := 0
	sender := RobotID(binary.BigEndian.Uint32(data[offset:]))
	offset += 4
	receiver := RobotID(binary.BigEndian.Uint32(data[offset:]))
	offset += 4
	typeCode := int32(binary.BigEndian.Uint32(data[offset:]))
	offset += 4
	timestamp := int64(binary.BigEndian.Uint64(data[offset:]))
	offset += 8
	sequence := binary.BigEndian.Uint32(data[offset:])
	offset += 4
	payloadLen := binary.BigEndian.Uint32(data[offset:])
	offset += 4

	msgType, err := MessageTypeFromCode(typeCode)
	if err != nil {
		return Message{}, err
	}

	if uint64(len(data)) != uint64(headerLength)+uint64(payloadLen)+ChecksumLength {
		return Message{}, fmt.Errorf("%w: payload length %d does not match frame of %d bytes",
			ErrMalformedMessage, payloadLen, len(data))
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[offset:offset+int(payloadLen)])
	offset += int(payloadLen)

	return Message{
		Sender:    sender,
		Receiver:  receiver,
		Type:      msgType,
		Timestamp: timestamp,
		Sequence:  sequence,
		Payload:   payload,
		Checksum:  string(data[offset : offset+ChecksumLength]),
	}, nil
}

// Fingerprint is a fast non-cryptographic hash of the encoded frame, used by
// delivery tracing. Unlike the checksum it covers the timestamp, so two sends
// of the same logical content remain distinguishable.
func (m Message) Fingerprint() uint64 {
	return xxhash.Sum64(m.Encode())
}

// IsBroadcast reports whether the message targets all robots but the sender.
func (m Message) IsBroadcast() bool {
	return m.Receiver == Broadcast
}

func (m Message) String() string {
	return fmt.Sprintf("Message[%s: %d->%d, seq=%d, payload=%d bytes, checksum=%s]",
		m.Type, m.Sender, m.Receiver, m.Sequence, len(m.Payload), m.Checksum)
}
