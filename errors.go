package ch341

import (
	"fmt"

	"github.com/gotmc/libusb"
	"github.com/pkg/errors"
)

// LIBUSB_ERROR_TIMEOUT
const libusbErrorTimeout = libusb.ErrorCode(-7)

// busError is a failure reported by the adapter rather than by USB.
type busError struct {
	msg     string
	timeout bool
}

func (e *busError) Error() string { return e.msg }

// Timeout reports whether the failure belongs to the timeout class.
func (e *busError) Timeout() bool { return e.timeout }

var (
	// ErrNotFound is returned when no matching adapter is attached.
	ErrNotFound = errors.New("ch341: device not found")

	// ErrNoAcknowledge is returned when the addressed device did not ACK.
	// The adapter cannot tell an absent device from a stalled bus, so the
	// error reports itself as a timeout.
	ErrNoAcknowledge error = &busError{msg: "ch341: no acknowledge", timeout: true}

	// ErrShortRead is returned when the adapter delivered fewer bytes than
	// requested. The caller's buffer is left untouched.
	ErrShortRead error = &busError{msg: "ch341: short read"}

	// ErrEncoding is returned when a transaction does not fit a command frame.
	ErrEncoding = errors.New("ch341: cannot encode transaction")

	// ErrInvalidEndpoint is returned when the adapter does not expose both
	// bulk endpoints on its first interface.
	ErrInvalidEndpoint = errors.New("ch341: bulk endpoint not found")

	// ErrNotOpened is returned by operations on a closed session.
	ErrNotOpened = errors.New("ch341: session is not opened")

	// ErrSessionFailed is returned after a transfer error has left the
	// adapter in an unknown state. Close the session and open it again.
	ErrSessionFailed = errors.New("ch341: session failed, reopen the device")
)

// TransportError wraps a failed bulk transfer.
type TransportError struct {
	Op  string // "write" or "read"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ch341: bulk %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the underlying transfer timed out.
func (e *TransportError) Timeout() bool {
	var code libusb.ErrorCode
	if errors.As(e.Err, &code) {
		return code == libusbErrorTimeout
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}
