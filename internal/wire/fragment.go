package wire

// FragmentCount returns the number of fragments an MTU-bound sender needs to
// carry frameSize bytes of payload. mtu must exceed HeaderSize.
func FragmentCount(frameSize, mtu int) int {
	fragCap := mtu - HeaderSize
	if fragCap <= 0 {
		return 0
	}
	if frameSize <= 0 {
		return 1
	}
	return (frameSize + fragCap - 1) / fragCap
}

// FragmentOffset returns the byte offset of fragment i within the frame.
func FragmentOffset(i, mtu int) int {
	return i * (mtu - HeaderSize)
}

// FragmentSize returns the payload size of fragment i of a frame of
// frameSize bytes, given mtu.
func FragmentSize(frameSize, i, mtu int) int {
	fragCap := mtu - HeaderSize
	offset := FragmentOffset(i, mtu)
	remaining := frameSize - offset
	if remaining <= 0 {
		return 0
	}
	if remaining < fragCap {
		return remaining
	}
	return fragCap
}
