// Package wire encodes and decodes the five control transactions and the
// flag header of stream transactions. The framing technique is fixed
// little-endian integer fields packed with encoding/binary, sized to five
// small variable-length control bodies plus a 4-byte stream flag prefix.
package wire

import (
	"encoding/binary"
	"errors"
)

// WireFormatVersion is the version this build speaks. EarliestSupported is
// the oldest version this build will still accept from a peer.
const (
	WireFormatVersion = int32(1)
	EarliestSupported = int32(1)
)

// Transaction codes. FirstTransactionCode reserves 1000 codes for control;
// call-ids for stream transactions start immediately after that reservation.
const (
	FirstTransactionCode = int32(1)

	CodeSetupTransport    = FirstTransactionCode + 0
	CodeShutdownTransport = FirstTransactionCode + 1
	CodeAcknowledgeBytes  = FirstTransactionCode + 2
	CodePing              = FirstTransactionCode + 3
	CodePingResponse      = FirstTransactionCode + 4

	FirstCallID = FirstTransactionCode + 1000
	LastCallID  = int32(1<<31 - 1)
)

// Stream flag bits carried in the 4-byte flag header that prefixes every
// stream transaction payload.
const (
	FlagOutOfBandClose uint32 = 1 << 0
)

var (
	ErrShortBuffer = errors.New("wire: buffer too short")
	ErrNilHandle   = errors.New("wire: nil receiver handle")
)

// IsControlCode reports whether code identifies a control transaction rather
// than a stream (call-id) transaction.
func IsControlCode(code int32) bool { return code < FirstCallID }

// EncodeSetup builds the SETUP_TRANSPORT payload: i32 wire_version followed
// by an opaque, channel-implementation-defined receiver handle. The handle's
// own encoding is the responsibility of the bchan.Channel implementation
// (see pkg/bchan) — WireCodec only frames it with the version prefix.
func EncodeSetup(version int32, handle []byte) []byte {
	buf := make([]byte, 4+len(handle))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(version))
	copy(buf[4:], handle)
	return buf
}

// DecodeSetup parses a SETUP_TRANSPORT payload.
func DecodeSetup(payload []byte) (version int32, handle []byte, err error) {
	if len(payload) < 4 {
		return 0, nil, ErrShortBuffer
	}
	version = int32(binary.LittleEndian.Uint32(payload[0:4]))
	handle = payload[4:]
	return version, handle, nil
}

// EncodeAcknowledgeBytes builds the ACKNOWLEDGE_BYTES payload: i64 total
// received bytes.
func EncodeAcknowledgeBytes(totalReceived int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(totalReceived))
	return buf
}

// DecodeAcknowledgeBytes parses an ACKNOWLEDGE_BYTES payload.
func DecodeAcknowledgeBytes(payload []byte) (int64, error) {
	if len(payload) < 8 {
		return 0, ErrShortBuffer
	}
	return int64(binary.LittleEndian.Uint64(payload)), nil
}

// EncodePingID builds a PING or PING_RESPONSE payload: i32 id.
func EncodePingID(id int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(id))
	return buf
}

// DecodePingID parses a PING or PING_RESPONSE payload.
func DecodePingID(payload []byte) (int32, error) {
	if len(payload) < 4 {
		return 0, ErrShortBuffer
	}
	return int32(binary.LittleEndian.Uint32(payload)), nil
}

// EncodeStreamFrame prefixes a stream body with its 4-byte flag header.
func EncodeStreamFrame(flags uint32, body []byte) []byte {
	buf := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], flags)
	copy(buf[4:], body)
	return buf
}

// DecodeStreamFrame splits a stream transaction payload into its flag header
// and body.
func DecodeStreamFrame(payload []byte) (flags uint32, body []byte, err error) {
	if len(payload) < 4 {
		return 0, nil, ErrShortBuffer
	}
	flags = binary.LittleEndian.Uint32(payload[0:4])
	body = payload[4:]
	return flags, body, nil
}
