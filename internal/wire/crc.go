package wire

import "encoding/binary"

// CRC-16/CCITT: polynomial 0x1021, initial value 0xFFFF, no final XOR,
// MSB-first byte feed. Table generated once at init, mirroring the
// table-driven CRC-32 used for the sibling discovery-protocol packet codec.
const (
	crc16Poly = 0x1021
	crc16Init = 0xFFFF
)

var crc16Table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		crc16Table[i] = crc
	}
}

// CRC16CCITT computes CRC-16/CCITT over data, starting from crc16Init. It is
// exported for the standalone test vector in spec §8 ("123456789" -> 0x29B1);
// packet checksums go through checksum, which covers two non-contiguous slices.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(crc16Init)
	for _, b := range data {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}

// ComputeAndSetCRC computes the CRC-16/CCITT over buf[0:HeaderSize] followed
// by payload, and writes the result big-endian into buf[HeaderSize:HeaderSize+2].
// buf must be at least HeaderSize+2 bytes.
func ComputeAndSetCRC(buf []byte, payload []byte) uint16 {
	crc := checksum(buf, payload)
	binary.BigEndian.PutUint16(buf[HeaderSize:HeaderSize+2], crc)
	return crc
}

// Verify recomputes the CRC over buf[0:HeaderSize]+payload and compares it
// against the checksum stored at buf[HeaderSize:HeaderSize+2].
func Verify(buf []byte, payload []byte) bool {
	if len(buf) < HeaderSize+2 {
		return false
	}
	want := binary.BigEndian.Uint16(buf[HeaderSize : HeaderSize+2])
	return checksum(buf, payload) == want
}

func checksum(buf []byte, payload []byte) uint16 {
	crc := uint16(crc16Init)
	for _, b := range buf[:HeaderSize] {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^b]
	}
	for _, b := range payload {
		crc = (crc << 8) ^ crc16Table[byte(crc>>8)^b]
	}
	return crc
}
