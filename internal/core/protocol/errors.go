package protocol

import "errors"

// Protocol errors. Decode-time failures are surfaced to the caller; integrity
// and staleness conditions are absorbed at the transport boundary and never
// reach application handlers.
var (
	// Envelope errors

	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")

	// Payload codec errors

	ErrCodec = errors.New("payload codec failure")
)
