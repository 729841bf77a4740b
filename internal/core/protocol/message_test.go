package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_EncodeDecodeRoundTrip(t *testing.T) {
	original := NewMessage(1, 2, MessageTypeTaskAssignment, []byte("test_payload"), 123)

	decoded, err := Decode(original.Encode())
	require.NoError(t, err, "decoding an encoded frame should succeed")

	assert.Equal(t, original.Sender, decoded.Sender)
	assert.Equal(t, original.Receiver, decoded.Receiver)
	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, original.Timestamp, decoded.Timestamp)
	assert.Equal(t, original.Sequence, decoded.Sequence)
	assert.Equal(t, original.Payload, decoded.Payload)
	assert.Equal(t, original.Checksum, decoded.Checksum)
	assert.True(t, decoded.Verify(), "round-tripped message should verify")
}

func TestMessage_BroadcastRoundTrip(t *testing.T) {
	original := NewMessage(3, Broadcast, MessageTypeEmergencyStop, []byte("emergency_stop"), 7)
	require.True(t, original.IsBroadcast())

	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, Broadcast, decoded.Receiver, "broadcast sentinel should survive the wire")
	assert.True(t, decoded.Verify())
}

func TestMessage_EmptyPayload(t *testing.T) {
	original := NewMessage(1, 2, MessageTypeHeartbeat, nil, 1)

	decoded, err := Decode(original.Encode())
	require.NoError(t, err)
	assert.Empty(t, decoded.Payload)
	assert.True(t, decoded.Verify())
}

func TestMessage_ChecksumDeterministic(t *testing.T) {
	a := NewMessage(1, 2, MessageTypeStatusReport, []byte("abc"), 5)
	b := a
	b.Timestamp += 60_000

	// The checksum ignores the timestamp so logically identical resends
	// carry the same tag.
	assert.Equal(t, a.Checksum, b.computeChecksum())
	assert.True(t, b.Verify(), "timestamp change alone should not break verification")

	c := NewMessage(1, 2, MessageTypeStatusReport, []byte("abd"), 5)
	assert.NotEqual(t, a.Checksum, c.Checksum, "different payloads should produce different tags")
	assert.Len(t, a.Checksum, ChecksumLength)
}

func TestMessage_PayloadCorruptionDetected(t *testing.T) {
	original := NewMessage(1, 2, MessageTypeSensorData, []byte("obstacle_detected"), 9)
	frame := original.Encode()

	// Flip each payload byte in turn; decode still succeeds structurally but
	// verification must fail.
	for i := 0; i < len(original.Payload); i++ {
		corrupted := make([]byte, len(frame))
		copy(corrupted, frame)
		corrupted[headerLength+i] ^= 0xFF

		decoded, err := Decode(corrupted)
		require.NoError(t, err, "corruption of payload byte %d should not break framing", i)
		assert.False(t, decoded.Verify(), "corruption of payload byte %d should fail verification", i)
	}
}

func TestMessage_SenderCorruptionDetected(t *testing.T) {
	original := NewMessage(1, 2, MessageTypePositionUpdate, []byte("x"), 4)
	frame := original.Encode()
	frame[3] ^= 0x01 // low byte of sender

	decoded, err := Decode(frame)
	require.NoError(t, err)
	assert.False(t, decoded.Verify())
}

func TestDecode_Truncated(t *testing.T) {
	frame := NewMessage(1, 2, MessageTypeHeartbeat, []byte("hb"), 1).Encode()

	for _, n := range []int{0, 1, headerLength - 1, headerLength, len(frame) - 1} {
		_, err := Decode(frame[:n])
		assert.ErrorIs(t, err, ErrMalformedMessage, "truncation to %d bytes", n)
	}
}

func TestDecode_PayloadLengthMismatch(t *testing.T) {
	frame := NewMessage(1, 2, MessageTypeHeartbeat, []byte("hb"), 1).Encode()
	// Inflate the declared payload length without growing the frame.
	frame[headerLength-1] = 0xFF

	_, err := Decode(frame)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecode_UnknownType(t *testing.T) {
	frame := NewMessage(1, 2, MessageTypeHeartbeat, nil, 1).Encode()
	frame[11] = 0x7F // type code low byte

	_, err := Decode(frame)
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestMessageTypeFromCode(t *testing.T) {
	for _, mt := range []MessageType{
		MessageTypeHeartbeat, MessageTypePositionUpdate, MessageTypeTaskAssignment,
		MessageTypeStatusReport, MessageTypeEmergencyStop, MessageTypeCoordinationRequest,
		MessageTypeSensorData, MessageTypeAcknowledgment,
	} {
		got, err := MessageTypeFromCode(int32(mt))
		require.NoError(t, err)
		assert.Equal(t, mt, got)
		assert.NotEqual(t, "unknown", mt.String())
	}

	_, err := MessageTypeFromCode(0)
	assert.ErrorIs(t, err, ErrUnknownMessageType)
	_, err = MessageTypeFromCode(99)
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestMessage_Fingerprint(t *testing.T) {
	m := NewMessage(1, 2, MessageTypeHeartbeat, []byte("hb"), 1)
	assert.Equal(t, m.Fingerprint(), m.Fingerprint(), "fingerprint should be stable")

	resend := m
	resend.Timestamp += 1
	assert.NotEqual(t, m.Fingerprint(), resend.Fingerprint(),
		"fingerprint covers the timestamp, unlike the checksum")
}

func BenchmarkMessage_Encode(b *testing.B) {
	m := NewMessage(1, 2, MessageTypeStatusReport, make([]byte, 256), 42)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = m.Encode()
	}
}

func BenchmarkMessage_Decode(b *testing.B) {
	frame := NewMessage(1, 2, MessageTypeStatusReport, make([]byte, 256), 42).Encode()

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(frame); err != nil {
			b.Fatal(err)
		}
	}
}
