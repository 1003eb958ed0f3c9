// Package hdc1008 reads the TI HDC1008 temperature and humidity sensor over
// any blocking I2C bus, such as a ch341.Session.
package hdc1008

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// DefaultAddress is the sensor address with ADR0 and ADR1 tied low.
const DefaultAddress = 0x40

// register pointers
const (
	RegTemperature    = 0x00
	RegHumidity       = 0x01
	RegConfiguration  = 0x02
	RegManufacturerID = 0xFE // ID of Texas Instruments
	RegDeviceID       = 0xFF
)

// identification values
const (
	ManufacturerTI = 0x5449
	DeviceHDC1008  = 0x1000
)

// both 14-bit conversions in sequence take 6.35 + 6.5 ms
const conversionTime = 15 * time.Millisecond

// ErrUnknownDevice is returned by Verify when the ID registers do not match.
var ErrUnknownDevice = errors.New("hdc1008: unknown device")

// Bus is the blocking I2C contract the sensor needs.
type Bus interface {
	Read(addr uint8, p []byte) error
	Write(addr uint8, p []byte) (int, error)
	WriteRead(addr uint8, w, r []byte) error
}

// Device is one sensor on a bus.
type Device struct {
	bus  Bus
	addr uint8

	// sleep is replaced in tests
	sleep func(time.Duration)
}

// New returns a sensor at addr on bus.
func New(bus Bus, addr uint8) *Device {
	return &Device{bus: bus, addr: addr, sleep: time.Sleep}
}

// Measurement is one temperature and humidity sample.
type Measurement struct {
	Celsius  float64
	Humidity float64 // relative, percent
}

// ReadRegister writes the register pointer and reads the 16-bit value back.
func (d *Device) ReadRegister(reg uint8) (val uint16, err error) {
	var r [2]byte
	if err = d.bus.WriteRead(d.addr, []byte{reg}, r[:]); err != nil {
		err = errors.WithMessagef(err, "hdc1008.ReadRegister(0x%02x)", reg)
		return
	}
	val = binary.BigEndian.Uint16(r[:])
	return
}

// ManufacturerID returns 0x5449 for a genuine TI part.
func (d *Device) ManufacturerID() (uint16, error) {
	return d.ReadRegister(RegManufacturerID)
}

// DeviceID returns 0x1000 for an HDC1008.
func (d *Device) DeviceID() (uint16, error) {
	return d.ReadRegister(RegDeviceID)
}

// Verify checks both identification registers.
func (d *Device) Verify() error {
	manuf, err := d.ManufacturerID()
	if err != nil {
		return err
	}
	dev, err := d.DeviceID()
	if err != nil {
		return err
	}
	if manuf != ManufacturerTI || dev != DeviceHDC1008 {
		return errors.Wrapf(ErrUnknownDevice, "manufacturer %04x device %04x", manuf, dev)
	}
	return nil
}

// Measure triggers a conversion of both channels and reads the result. The
// sensor has to be in its power-on mode, which acquires temperature and
// humidity in sequence.
func (d *Device) Measure() (m Measurement, err error) {
	if _, err = d.bus.Write(d.addr, []byte{RegTemperature}); err != nil {
		err = errors.WithMessage(err, "hdc1008.Measure(): trigger")
		return
	}
	d.sleep(conversionTime)

	var r [4]byte
	if err = d.bus.Read(d.addr, r[:]); err != nil {
		err = errors.WithMessage(err, "hdc1008.Measure(): read")
		return
	}
	m.Celsius = float64(binary.BigEndian.Uint16(r[0:]))/65536*165 - 40
	m.Humidity = float64(binary.BigEndian.Uint16(r[2:])) / 65536 * 100
	return
}
