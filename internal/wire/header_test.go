package wire

import (
	"encoding/binary"
	"testing"
)

func TestCRC16CCITTTestVector(t *testing.T) {
	got := CRC16CCITT([]byte("123456789"))
	if got != 0x29B1 {
		t.Errorf("CRC16CCITT(\"123456789\") = 0x%04x, want 0x29b1", got)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	cases := []Header{
		{SeqNum: 0, FrameID: 0, FrameType: FrameTypeConnect, Flags: 0, FragIndex: 0, TotalFrags: 1, PayloadSize: 0},
		{SeqNum: 1 << 31, FrameID: 0xFFFF, FrameType: FrameTypeI, Flags: FlagLastFrag | FlagRetrans, FragIndex: 3, TotalFrags: 4, PayloadSize: 1386},
		{SeqNum: 42, FrameID: 7, FrameType: FrameTypeUser, Flags: 0, FragIndex: 0, TotalFrags: 1, PayloadSize: 64},
	}
	for _, h := range cases {
		buf := Serialize(h)
		got, err := Deserialize(buf)
		if err != nil {
			t.Fatalf("Deserialize: %v", err)
		}
		if got != h {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
		}
	}
}

func TestDeserializeShortBuffer(t *testing.T) {
	if _, err := Deserialize(make([]byte, HeaderSize)); err != ErrShortHeader {
		t.Errorf("expected ErrShortHeader, got %v", err)
	}
}

func TestComputeAndVerifyCRC(t *testing.T) {
	h := Header{SeqNum: 5, FrameID: 1, FrameType: FrameTypeI, FragIndex: 0, TotalFrags: 1, PayloadSize: 4}
	buf := Serialize(h)
	payload := []byte("ping")
	ComputeAndSetCRC(buf, payload)
	if !Verify(buf, payload) {
		t.Fatal("Verify should succeed after ComputeAndSetCRC")
	}
	payload[0] ^= 0xFF
	if Verify(buf, payload) {
		t.Fatal("Verify should fail after payload corruption")
	}
}

func TestValidate(t *testing.T) {
	maxPayload := 1400 - HeaderSize
	good := Header{FrameType: FrameTypeI, FragIndex: 1, TotalFrags: 4, PayloadSize: uint16(maxPayload)}
	if !Validate(good, maxPayload) {
		t.Error("expected valid header to validate")
	}
	bad := []Header{
		{FrameType: FrameTypeI, FragIndex: 4, TotalFrags: 4},             // frag_index >= total_frags
		{FrameType: FrameTypeI, FragIndex: 0, TotalFrags: 0},             // total_frags < 1
		{FrameType: FrameTypeI, FragIndex: 0, TotalFrags: 1, PayloadSize: uint16(maxPayload + 1)},
		{FrameType: 0x99, FragIndex: 0, TotalFrags: 1},
	}
	for i, h := range bad {
		if Validate(h, maxPayload) {
			t.Errorf("case %d: expected invalid header to fail validation: %+v", i, h)
		}
	}
}

func TestFragmentationLaws(t *testing.T) {
	mtu := 1400
	sizes := []int{0, 1, 1386, 1387, 4200, 512 * 1024}
	for _, size := range sizes {
		n := FragmentCount(size, mtu)
		if size == 0 {
			if n != 1 {
				t.Errorf("FragmentCount(0, %d) = %d, want 1", mtu, n)
			}
			continue
		}
		sum := 0
		for i := 0; i < n; i++ {
			fs := FragmentSize(size, i, mtu)
			if fs > mtu-HeaderSize {
				t.Errorf("size=%d i=%d: fragment size %d exceeds mtu-header", size, i, fs)
			}
			sum += fs
		}
		if sum != size {
			t.Errorf("size=%d: fragment sizes sum to %d, want %d", size, sum, size)
		}
		last := FragmentSize(size, n-1, mtu)
		if last <= 0 {
			t.Errorf("size=%d: last fragment size %d should be > 0", size, last)
		}
	}
}

func TestScenario3FragmentSizes(t *testing.T) {
	// spec.md scenario 3: 4200-byte I-frame, MTU 1400 -> 1386,1386,1386,42
	mtu := 1400
	frameSize := 4200
	want := []int{1386, 1386, 1386, 42}
	n := FragmentCount(frameSize, mtu)
	if n != len(want) {
		t.Fatalf("FragmentCount = %d, want %d", n, len(want))
	}
	for i, w := range want {
		if got := FragmentSize(frameSize, i, mtu); got != w {
			t.Errorf("fragment %d size = %d, want %d", i, got, w)
		}
	}
}

func TestCodecDebugSuffixNotCoveredByCRC(t *testing.T) {
	c := Codec{Debug: true}
	h := Header{SeqNum: 1, FrameID: 2, FrameType: FrameTypeI, FragIndex: 0, TotalFrags: 1, PayloadSize: 3}
	buf := c.Encode(h, 123456789)
	payload := []byte("abc")
	crc := ComputeAndSetCRC(buf, payload)
	if !Verify(buf, payload) {
		t.Fatal("Verify should succeed regardless of debug suffix")
	}
	gotH, gotTS, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := h
	want.Checksum = crc
	if gotH != want {
		t.Errorf("decoded header mismatch: got %+v want %+v", gotH, want)
	}
	if gotTS != 123456789 {
		t.Errorf("decoded timestamp = %d, want 123456789", gotTS)
	}
	// Mutating the suffix must not affect CRC verification.
	binary.BigEndian.PutUint64(buf[HeaderSize+2:], 0)
	if !Verify(buf, payload) {
		t.Fatal("Verify should still succeed after mutating the debug suffix")
	}
}
