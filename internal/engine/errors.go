package engine

import "errors"

// Error taxonomy from spec §7. These are the only errors surfaced to
// callers — CRC failures, header-validation failures, oversized fragments,
// and duplicate fragments are counted in statistics and dropped silently,
// never returned here (spec §7 propagation policy).
var (
	ErrInvalidParam  = errors.New("engine: invalid parameter")
	ErrNoMemory      = errors.New("engine: allocation failed")
	ErrBusy          = errors.New("engine: socket write would block")
	ErrPacketTooLarge = errors.New("engine: packet exceeds frame capacity")
	ErrFrameInvalid  = errors.New("engine: frame invalid")
	ErrNotReady      = errors.New("engine: operation requires an active connection")
	ErrAlreadyInit   = errors.New("engine: endpoint already initialized")
	ErrDisconnected  = errors.New("engine: not connected")
	ErrOverflow      = errors.New("engine: payload exceeds frame capacity")
	ErrClosed        = errors.New("engine: endpoint closed")
)
