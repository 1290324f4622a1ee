// Package wire implements the fixed-layout packet header codec: big-endian
// field serialization, CRC-16/CCITT framing, and header validation. It has
// no knowledge of sockets, frames, or connection state — callers own the
// byte slices.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the on-wire size of the release-profile header, bytes [0..14).
const HeaderSize = 14

// DebugSuffixSize is the size of the optional debug timestamp trailer
// appended after the checksum when a Codec is built with Debug: true. It is
// never covered by the checksum (see DESIGN.md).
const DebugSuffixSize = 8

// Flag bits for Header.Flags.
const (
	FlagLastFrag uint8 = 1 << 0
	FlagRetrans  uint8 = 1 << 1
)

// FrameType identifies the media or control class of a frame.
type FrameType uint8

// Media frame types.
const (
	FrameTypeI   FrameType = 1
	FrameTypeP   FrameType = 2
	FrameTypeSPS FrameType = 3
	FrameTypePPS FrameType = 4
	FrameTypeA   FrameType = 5
)

// Control frame types. Control frame_id 0 is reserved for
// handshake/heartbeat/disconnect acknowledgement.
const (
	FrameTypeConnect    FrameType = 0x10
	FrameTypeConnected  FrameType = 0x11
	FrameTypeDisconnect FrameType = 0x12
	FrameTypeAck        FrameType = 0x13
	FrameTypeHeartbeat  FrameType = 0x14
	FrameTypeUser       FrameType = 0x15
	FrameTypeStart      FrameType = 0x16
	FrameTypeStop       FrameType = 0x17
)

// IsMedia reports whether t is one of the enumerated media types.
func (t FrameType) IsMedia() bool {
	switch t {
	case FrameTypeI, FrameTypeP, FrameTypeSPS, FrameTypePPS, FrameTypeA:
		return true
	default:
		return false
	}
}

// IsControl reports whether t is one of the enumerated control types.
func (t FrameType) IsControl() bool {
	switch t {
	case FrameTypeConnect, FrameTypeConnected, FrameTypeDisconnect, FrameTypeAck,
		FrameTypeHeartbeat, FrameTypeUser, FrameTypeStart, FrameTypeStop:
		return true
	default:
		return false
	}
}

// Valid reports whether t is one of the enumerated values in §3/§6.
func (t FrameType) Valid() bool {
	return t.IsMedia() || t.IsControl()
}

func (t FrameType) String() string {
	switch t {
	case FrameTypeI:
		return "I"
	case FrameTypeP:
		return "P"
	case FrameTypeSPS:
		return "SPS"
	case FrameTypePPS:
		return "PPS"
	case FrameTypeA:
		return "A"
	case FrameTypeConnect:
		return "CONNECT"
	case FrameTypeConnected:
		return "CONNECTED"
	case FrameTypeDisconnect:
		return "DISCONNECT"
	case FrameTypeAck:
		return "ACK"
	case FrameTypeHeartbeat:
		return "HEARTBEAT"
	case FrameTypeUser:
		return "USER"
	case FrameTypeStart:
		return "START"
	case FrameTypeStop:
		return "STOP"
	default:
		return fmt.Sprintf("FrameType(0x%02x)", uint8(t))
	}
}

// Header is the fixed 14-byte packet header described in spec §3.
type Header struct {
	SeqNum      uint32
	FrameID     uint16
	FrameType   FrameType
	Flags       uint8
	FragIndex   uint16
	TotalFrags  uint16
	PayloadSize uint16
	Checksum    uint16
}

// ErrShortHeader is returned by Deserialize when the buffer is smaller than HeaderSize.
var ErrShortHeader = errors.New("wire: buffer shorter than header size")

// Serialize writes h into a new HeaderSize+2-byte big-endian buffer. The
// checksum slot (bytes [14..16)) is left zero; call ComputeAndSetCRC to fill
// it in once the payload is known.
func Serialize(h Header) []byte {
	buf := make([]byte, HeaderSize+2)
	putHeader(buf, h)
	return buf[:HeaderSize+2]
}

// putHeader writes h's fields into buf, which must be at least HeaderSize+2
// bytes (the extra 2 bytes are the checksum slot, left as given).
func putHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.SeqNum)
	binary.BigEndian.PutUint16(buf[4:6], h.FrameID)
	buf[6] = byte(h.FrameType)
	buf[7] = h.Flags
	binary.BigEndian.PutUint16(buf[8:10], h.FragIndex)
	binary.BigEndian.PutUint16(buf[10:12], h.TotalFrags)
	binary.BigEndian.PutUint16(buf[12:14], h.PayloadSize)
}

// Deserialize reads a Header from the first HeaderSize+2 bytes of buf. It
// does not verify the checksum; call Verify separately.
func Deserialize(buf []byte) (Header, error) {
	if len(buf) < HeaderSize+2 {
		return Header{}, ErrShortHeader
	}
	return Header{
		SeqNum:      binary.BigEndian.Uint32(buf[0:4]),
		FrameID:     binary.BigEndian.Uint16(buf[4:6]),
		FrameType:   FrameType(buf[6]),
		Flags:       buf[7],
		FragIndex:   binary.BigEndian.Uint16(buf[8:10]),
		TotalFrags:  binary.BigEndian.Uint16(buf[10:12]),
		PayloadSize: binary.BigEndian.Uint16(buf[12:14]),
		Checksum:    binary.BigEndian.Uint16(buf[14:16]),
	}, nil
}

// Validate enforces the §3 invariants: frag_index < total_frags,
// total_frags >= 1, payload_size <= maxPayload (mtu - HeaderSize), and
// frame_type is one of the enumerated values.
func Validate(h Header, maxPayload int) bool {
	if h.TotalFrags < 1 {
		return false
	}
	if h.FragIndex >= h.TotalFrags {
		return false
	}
	if int(h.PayloadSize) > maxPayload {
		return false
	}
	if !h.FrameType.Valid() {
		return false
	}
	return true
}

// LastFrag reports whether the LAST_FRAG flag is set.
func (h Header) LastFrag() bool { return h.Flags&FlagLastFrag != 0 }

// Retrans reports whether the RETRANS flag is set.
func (h Header) Retrans() bool { return h.Flags&FlagRetrans != 0 }
