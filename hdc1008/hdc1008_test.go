package hdc1008

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amdf/ch341"
)

var _ Bus = (*ch341.Session)(nil)

// fakeBus emulates the sensor's register file and pointer.
type fakeBus struct {
	regs    map[uint8]uint16
	pointer uint8
	sample  []byte
	err     error
	writes  [][]byte
}

func (b *fakeBus) Write(addr uint8, p []byte) (int, error) {
	if b.err != nil {
		return 0, b.err
	}
	b.writes = append(b.writes, append([]byte{addr}, p...))
	if len(p) > 0 {
		b.pointer = p[0]
	}
	return len(p), nil
}

func (b *fakeBus) Read(addr uint8, p []byte) error {
	if b.err != nil {
		return b.err
	}
	if b.pointer == RegTemperature && len(p) == 4 {
		copy(p, b.sample)
		return nil
	}
	v := b.regs[b.pointer]
	p[0], p[1] = byte(v>>8), byte(v)
	return nil
}

func (b *fakeBus) WriteRead(addr uint8, w, r []byte) error {
	if _, err := b.Write(addr, w); err != nil {
		return err
	}
	return b.Read(addr, r)
}

func newFake() *fakeBus {
	return &fakeBus{regs: map[uint8]uint16{
		RegManufacturerID: ManufacturerTI,
		RegDeviceID:       DeviceHDC1008,
		RegConfiguration:  0x1000,
	}}
}

func TestVerify(t *testing.T) {
	bus := newFake()
	d := New(bus, DefaultAddress)

	id, err := d.ManufacturerID()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x5449), id)

	require.NoError(t, d.Verify())
	assert.Equal(t, []byte{DefaultAddress, RegDeviceID}, bus.writes[len(bus.writes)-1])

	bus.regs[RegDeviceID] = 0x1050
	err = d.Verify()
	assert.True(t, errors.Is(err, ErrUnknownDevice))
}

func TestMeasure(t *testing.T) {
	bus := newFake()
	// 0x6666 -> 25.999 C, 0x8000 -> 50 %RH
	bus.sample = []byte{0x66, 0x66, 0x80, 0x00}
	d := New(bus, DefaultAddress)
	var slept time.Duration
	d.sleep = func(dur time.Duration) { slept += dur }

	m, err := d.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 25.999, m.Celsius, 0.001)
	assert.InDelta(t, 50.0, m.Humidity, 0.001)
	assert.Equal(t, conversionTime, slept)
	assert.Equal(t, [][]byte{{DefaultAddress, RegTemperature}}, bus.writes)
}

func TestBusError(t *testing.T) {
	bus := newFake()
	bus.err = ch341.ErrNoAcknowledge
	d := New(bus, DefaultAddress)

	_, err := d.DeviceID()
	assert.True(t, errors.Is(err, ch341.ErrNoAcknowledge))
	_, err = d.Measure()
	assert.True(t, errors.Is(err, ch341.ErrNoAcknowledge))
	assert.True(t, errors.Is(d.Verify(), ch341.ErrNoAcknowledge))
}

// transport answers like an adapter with an HDC1008 at 0x40.
type transport struct {
	pending [][]byte
}

func (tr *transport) BulkWrite(p []byte) (int, error) {
	switch {
	case len(p) == 7 && p[2] == 0x80:
		if p[3] == DefaultAddress<<1|1 {
			tr.pending = append(tr.pending, []byte{0x00})
		} else {
			tr.pending = append(tr.pending, []byte{0x80})
		}
	case len(p) > 4 && p[2] == 0x81 && p[3] == DefaultAddress<<1|1:
		tr.pending = append(tr.pending, []byte{0x10, 0x00})
	}
	return len(p), nil
}

func (tr *transport) BulkRead(maxLen int) ([]byte, error) {
	if len(tr.pending) == 0 {
		return nil, errors.New("timeout")
	}
	r := tr.pending[0]
	tr.pending = tr.pending[1:]
	return r, nil
}

func (tr *transport) Close() error { return nil }

func TestOverSession(t *testing.T) {
	s, err := ch341.New(&transport{})
	require.NoError(t, err)
	defer s.Close()

	id, err := New(s, DefaultAddress).DeviceID()
	require.NoError(t, err)
	assert.Equal(t, uint16(DeviceHDC1008), id)

	_, err = New(s, 0x41).DeviceID()
	assert.True(t, errors.Is(err, ch341.ErrNoAcknowledge))
}
