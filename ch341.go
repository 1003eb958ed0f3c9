// Package ch341 drives the I2C interface of the WCH CH341 USB bridge.
//
// The adapter has no register interface of its own: every I2C transaction is
// encoded into a stream of command bytes that is written to the bulk OUT
// endpoint, and bytes read from the bus come back on the bulk IN endpoint.
package ch341

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// USB IDs of the CH341 in I2C/SPI mode
const (
	VendorID  = uint16(0x1A86)
	ProductID = uint16(0x5512)
)

// DefaultTimeout is the bound applied to every bulk transfer.
const DefaultTimeout = 1000 * time.Millisecond

// command opcodes of the I2C stream
const (
	cmdI2CStream = 0xAA

	stmStart = 0x74
	stmStop  = 0x75
	stmOut   = 0x80 // | length
	stmIn    = 0xC0 // | length
	stmSet   = 0x60 // | speed code
	stmEnd   = 0x00
)

// lengths are carried in the low 6 bits of OUT/IN opcodes
const maxSegmentLen = 0x3F

// MaxWriteLen is the longest payload a single write can carry: the OUT
// segment also holds the address byte.
const MaxWriteLen = maxSegmentLen - 1

// MaxReadLen is the longest read a single frame can request.
const MaxReadLen = maxSegmentLen

// the adapter flags a missing address ACK with the high bit of the response
const nackFlag = 0x80

// Speed is the I2C clock rate of the adapter.
type Speed uint8

// Speed codes as understood by the set-speed opcode.
const (
	SpeedLow      Speed = 0 // 20 kHz
	SpeedStandard Speed = 1 // 100 kHz
	SpeedFast     Speed = 2 // 400 kHz
	SpeedHigh     Speed = 3 // 750 kHz
)

// DefaultSpeed is negotiated when a session is opened without WithSpeed.
const DefaultSpeed = SpeedStandard

// Hz returns the nominal bus clock.
func (s Speed) Hz() int {
	switch s {
	case SpeedLow:
		return 20000
	case SpeedStandard:
		return 100000
	case SpeedFast:
		return 400000
	case SpeedHigh:
		return 750000
	}
	return 0
}

func (s Speed) valid() bool {
	return s <= SpeedHigh
}

func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "20kHz"
	case SpeedStandard:
		return "100kHz"
	case SpeedFast:
		return "400kHz"
	case SpeedHigh:
		return "750kHz"
	}
	return "unknown"
}

// ParseSpeed accepts either a rate ("100k", "100kHz") or a name ("standard").
func ParseSpeed(s string) (Speed, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "hz") {
	case "20k", "low":
		return SpeedLow, nil
	case "100k", "standard", "":
		return SpeedStandard, nil
	case "400k", "fast":
		return SpeedFast, nil
	case "750k", "high":
		return SpeedHigh, nil
	}
	return 0, errors.Errorf("ParseSpeed(): unknown speed %q", s)
}
