package ch341

import (
	"encoding/hex"
	"io"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// the adapter never answers with more than one full-speed bulk packet
const packetLen = 32

// scan range skips the reserved 0x00-0x07 and 0x78-0x7F addresses
const (
	scanFirst = 0x08
	scanLast  = 0x77
)

// Session is an opened adapter. Operations are serialized internally; a
// transaction is never pipelined with another one.
//
// A failed transfer leaves the adapter in an unknown state: from then on
// every operation returns ErrSessionFailed and the session has to be
// closed and opened again.
type Session struct {
	t        Transport
	speed    Speed
	failed   bool
	log      *zap.Logger
	mutexUSB sync.Mutex
}

// Open finds the adapter through ctx, claims it and sets the bus speed.
func Open(ctx *Context, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var dev *USBDevice
	var err error
	if o.serial != "" {
		dev, err = ctx.OpenBySerial(o.serial)
	} else {
		dev, err = ctx.OpenByVidPid(VendorID, ProductID)
	}
	if err != nil {
		return nil, err
	}
	dev.SetTimeout(o.timeout)

	out, in := dev.Endpoints()
	o.log.Debug("adapter opened",
		zap.String("out", hex.EncodeToString([]byte{out})),
		zap.String("in", hex.EncodeToString([]byte{in})),
		zap.Duration("timeout", o.timeout))

	s, err := newSession(dev, o)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return s, nil
}

// New runs a session over an already opened transport and sets the bus
// speed. On error the transport is left open.
func New(t Transport, opts ...Option) (*Session, error) {
	if t == nil {
		return nil, errors.Wrap(ErrNotOpened, "New(): nil transport")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newSession(t, o)
}

func newSession(t Transport, o options) (*Session, error) {
	s := &Session{t: t, log: o.log}
	if err := s.SetSpeed(o.speed); err != nil {
		return nil, err
	}
	return s, nil
}

// SetSpeed reconfigures the bus clock. The speed is kept only if the
// adapter accepted the command.
func (s *Session) SetSpeed(sp Speed) (err error) {
	if nil == s {
		return errors.Wrap(ErrNotOpened, "Session.SetSpeed()")
	}
	f, err := encodeSetSpeed(sp)
	if err != nil {
		return errors.WithMessage(err, "Session.SetSpeed()")
	}

	s.mutexUSB.Lock()
	defer s.mutexUSB.Unlock()

	if err = s.ready(); err != nil {
		return errors.WithMessage(err, "Session.SetSpeed()")
	}
	if err = s.send(f); err != nil {
		return errors.WithMessage(err, "Session.SetSpeed()")
	}
	s.speed = sp
	s.log.Debug("bus speed set", zap.Stringer("speed", sp))
	return nil
}

// Speed returns the bus clock last accepted by the adapter.
func (s *Session) Speed() Speed {
	if nil == s {
		return 0
	}
	s.mutexUSB.Lock()
	defer s.mutexUSB.Unlock()
	return s.speed
}

// Read fills p from the device at addr. p is either filled completely or
// not touched at all.
func (s *Session) Read(addr uint8, p []byte) (err error) {
	if nil == s {
		return errors.Wrap(ErrNotOpened, "Session.Read()")
	}
	f, err := encodeRead(addr, len(p))
	if err != nil {
		return errors.WithMessage(err, "Session.Read()")
	}

	s.mutexUSB.Lock()
	defer s.mutexUSB.Unlock()

	if err = s.ready(); err != nil {
		return errors.WithMessage(err, "Session.Read()")
	}
	if err = s.checkAddress(addr); err != nil {
		return errors.WithMessage(err, "Session.Read()")
	}
	if err = s.send(f); err != nil {
		return errors.WithMessage(err, "Session.Read()")
	}
	if err = s.receive(p); err != nil {
		return errors.WithMessage(err, "Session.Read()")
	}
	return nil
}

// Write sends p to the device at addr and returns len(p) on success.
func (s *Session) Write(addr uint8, p []byte) (n int, err error) {
	if nil == s {
		return 0, errors.Wrap(ErrNotOpened, "Session.Write()")
	}
	f, err := encodeWrite(addr, p)
	if err != nil {
		return 0, errors.WithMessage(err, "Session.Write()")
	}

	s.mutexUSB.Lock()
	defer s.mutexUSB.Unlock()

	if err = s.ready(); err != nil {
		return 0, errors.WithMessage(err, "Session.Write()")
	}
	if err = s.checkAddress(addr); err != nil {
		return 0, errors.WithMessage(err, "Session.Write()")
	}
	if err = s.send(f); err != nil {
		return 0, errors.WithMessage(err, "Session.Write()")
	}
	return len(p), nil
}

// WriteRead writes w to the device at addr and reads r back, typically a
// register pointer followed by the register value.
func (s *Session) WriteRead(addr uint8, w, r []byte) (err error) {
	if nil == s {
		return errors.Wrap(ErrNotOpened, "Session.WriteRead()")
	}
	frames, err := encodeWriteThenRead(addr, w, len(r))
	if err != nil {
		return errors.WithMessage(err, "Session.WriteRead()")
	}

	s.mutexUSB.Lock()
	defer s.mutexUSB.Unlock()

	if err = s.ready(); err != nil {
		return errors.WithMessage(err, "Session.WriteRead()")
	}
	if err = s.checkAddress(addr); err != nil {
		return errors.WithMessage(err, "Session.WriteRead()")
	}
	for _, f := range frames {
		if err = s.send(f); err != nil {
			return errors.WithMessage(err, "Session.WriteRead()")
		}
	}
	if err = s.receive(r); err != nil {
		return errors.WithMessage(err, "Session.WriteRead()")
	}
	return nil
}

// Probe reports whether a device acknowledges addr. It returns nil on ACK
// and ErrNoAcknowledge otherwise.
func (s *Session) Probe(addr uint8) (err error) {
	if nil == s {
		return errors.Wrap(ErrNotOpened, "Session.Probe()")
	}
	if err = checkAddr(addr); err != nil {
		return errors.WithMessage(err, "Session.Probe()")
	}

	s.mutexUSB.Lock()
	defer s.mutexUSB.Unlock()

	if err = s.ready(); err != nil {
		return errors.WithMessage(err, "Session.Probe()")
	}
	if err = s.checkAddress(addr); err != nil {
		return errors.WithMessage(err, "Session.Probe()")
	}
	return nil
}

// Scan probes every non-reserved address and returns the ones that ACK.
// Any failure other than a NACK stops the scan.
func (s *Session) Scan() (found []uint8, err error) {
	for addr := uint8(scanFirst); addr <= scanLast; addr++ {
		err = s.Probe(addr)
		if errors.Is(err, ErrNoAcknowledge) {
			continue
		}
		if err != nil {
			return found, errors.WithMessage(err, "Session.Scan()")
		}
		found = append(found, addr)
	}
	return found, nil
}

// Close releases the adapter.
func (s *Session) Close() (err error) {
	if nil == s {
		return
	}
	s.mutexUSB.Lock()
	defer s.mutexUSB.Unlock()
	if !s.opened() {
		return
	}
	err = s.t.Close()
	s.t = nil
	return
}

// Active reports whether the session is open and usable.
func (s *Session) Active() bool {
	if nil == s {
		return false
	}
	s.mutexUSB.Lock()
	defer s.mutexUSB.Unlock()
	return s.opened() && !s.failed
}

func (s *Session) opened() bool {
	return s.t != nil
}

func (s *Session) ready() error {
	if !s.opened() {
		return ErrNotOpened
	}
	if s.failed {
		return ErrSessionFailed
	}
	return nil
}

// checkAddress runs the probe frame and inspects the first response byte.
func (s *Session) checkAddress(addr uint8) error {
	f, err := encodeCheck(addr)
	if err != nil {
		return err
	}
	if err = s.send(f); err != nil {
		return err
	}
	resp, err := s.recv(packetLen)
	if err != nil {
		return err
	}
	if len(resp) == 0 {
		return errors.Wrapf(ErrShortRead, "address 0x%02x: empty check response", addr)
	}
	if resp[0]&nackFlag != 0 {
		s.log.Debug("no acknowledge", zap.Uint8("addr", addr))
		return errors.Wrapf(ErrNoAcknowledge, "address 0x%02x", addr)
	}
	return nil
}

// receive reads the data phase response into p.
func (s *Session) receive(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	maxLen := packetLen
	if len(p) > maxLen {
		maxLen = len(p)
	}
	resp, err := s.recv(maxLen)
	if err != nil {
		return err
	}
	if len(resp) < len(p) {
		return errors.Wrapf(ErrShortRead, "got %d of %d bytes", len(resp), len(p))
	}
	copy(p, resp[:len(p)])
	return nil
}

func (s *Session) send(f frame) error {
	s.log.Debug("frame", zap.String("hex", hex.EncodeToString(f)))
	n, err := s.t.BulkWrite(f)
	if err != nil {
		return s.fail("write", err)
	}
	if n != len(f) {
		return s.fail("write", io.ErrShortWrite)
	}
	return nil
}

func (s *Session) recv(maxLen int) ([]byte, error) {
	resp, err := s.t.BulkRead(maxLen)
	if err != nil {
		return nil, s.fail("read", err)
	}
	s.log.Debug("response", zap.String("hex", hex.EncodeToString(resp)))
	return resp, nil
}

// fail marks the session unusable.
func (s *Session) fail(op string, err error) error {
	s.failed = true
	s.log.Warn("bulk transfer failed", zap.String("op", op), zap.Error(err))
	return errors.WithStack(&TransportError{Op: op, Err: err})
}
