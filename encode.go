package ch341

import "github.com/pkg/errors"

// frame is one physical-layer transaction: stream opcode, START, segments,
// STOP, END.
type frame []byte

func newFrame(capacity int) frame {
	f := make(frame, 0, capacity+4)
	return append(f, cmdI2CStream, stmStart)
}

func (f frame) out(b ...byte) frame {
	f = append(f, stmOut|byte(len(b)))
	return append(f, b...)
}

func (f frame) finish() frame {
	return append(f, stmStop, stmEnd)
}

func checkAddr(addr uint8) error {
	if addr > 0x7F {
		return errors.Wrapf(ErrEncoding, "address 0x%02x is not 7-bit", addr)
	}
	return nil
}

func addrByte(addr uint8, read bool) byte {
	b := addr << 1
	if read {
		b |= 1
	}
	return b
}

// encodeCheck builds the address probe. OUT and IN are tagged with zero
// length: the firmware corrupts its state if the probe carries a length.
func encodeCheck(addr uint8) (frame, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	return frame{
		cmdI2CStream,
		stmStart,
		stmOut,
		addrByte(addr, true),
		stmIn,
		stmStop,
		stmEnd,
	}, nil
}

// encodeRead addresses the device for reading and clocks in n bytes. Every
// byte but the last is read with ACK (IN|1), the last one with NACK (IN|0).
// n == 0 leaves only the address phase.
func encodeRead(addr uint8, n int) (frame, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	if n < 0 || n > MaxReadLen {
		return nil, errors.Wrapf(ErrEncoding, "read length %d out of range 0..%d", n, MaxReadLen)
	}
	f := newFrame(2 + n).out(addrByte(addr, true))
	for i := 0; i < n; i++ {
		if i < n-1 {
			f = append(f, stmIn|1)
		} else {
			f = append(f, stmIn)
		}
	}
	return f.finish(), nil
}

// encodeWrite addresses the device for writing and sends the payload in the
// same OUT segment.
func encodeWrite(addr uint8, p []byte) (frame, error) {
	if err := checkAddr(addr); err != nil {
		return nil, err
	}
	if len(p) > MaxWriteLen {
		return nil, errors.Wrapf(ErrEncoding, "write length %d exceeds %d", len(p), MaxWriteLen)
	}
	seg := make([]byte, 0, 1+len(p))
	seg = append(seg, addrByte(addr, false))
	seg = append(seg, p...)
	return newFrame(len(seg) + 1).out(seg...).finish(), nil
}

// encodeWriteThenRead returns the write phase and the read phase. They are
// sent back to back, the repeated start is implied by the second START.
func encodeWriteThenRead(addr uint8, p []byte, n int) ([]frame, error) {
	w, err := encodeWrite(addr, p)
	if err != nil {
		return nil, err
	}
	r, err := encodeRead(addr, n)
	if err != nil {
		return nil, err
	}
	return []frame{w, r}, nil
}

// encodeSetSpeed has no START/STOP: it configures the adapter, not the bus.
func encodeSetSpeed(s Speed) (frame, error) {
	if !s.valid() {
		return nil, errors.Wrapf(ErrEncoding, "speed code %d", s)
	}
	return frame{cmdI2CStream, stmSet | byte(s), stmEnd}, nil
}
