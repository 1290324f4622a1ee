package wire

import "encoding/binary"

// Codec wraps the package-level serialize/deserialize helpers with the
// optional debug-profile timestamp suffix (spec §3, §9 open question: the
// suffix trails the checksum and is never covered by it).
type Codec struct {
	// Debug appends/parses an 8-byte big-endian millisecond send timestamp
	// after the checksum on every packet.
	Debug bool
}

// Size returns the total header-plus-suffix size this codec writes.
func (c Codec) Size() int {
	if c.Debug {
		return HeaderSize + 2 + DebugSuffixSize
	}
	return HeaderSize + 2
}

// Encode serializes h (and, in debug mode, sendTimeMs) into a fresh buffer
// sized by Size. The checksum slot is left zero; the caller must still call
// ComputeAndSetCRC over buf[:HeaderSize+2] before transmitting.
func (c Codec) Encode(h Header, sendTimeMs uint64) []byte {
	buf := make([]byte, c.Size())
	putHeader(buf, h)
	if c.Debug {
		binary.BigEndian.PutUint64(buf[HeaderSize+2:HeaderSize+2+DebugSuffixSize], sendTimeMs)
	}
	return buf
}

// Decode parses a Header (and, in debug mode, the trailing send timestamp)
// from buf. It does not verify the checksum.
func (c Codec) Decode(buf []byte) (Header, uint64, error) {
	h, err := Deserialize(buf)
	if err != nil {
		return Header{}, 0, err
	}
	if !c.Debug {
		return h, 0, nil
	}
	if len(buf) < HeaderSize+2+DebugSuffixSize {
		return Header{}, 0, ErrShortHeader
	}
	ts := binary.BigEndian.Uint64(buf[HeaderSize+2 : HeaderSize+2+DebugSuffixSize])
	return h, ts, nil
}
