package ch341

import (
	"io"
	"testing"

	"github.com/gotmc/libusb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTransportErrorTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"libusb timeout", libusb.ErrorCode(-7), true},
		{"wrapped libusb timeout", errors.Wrap(libusb.ErrorCode(-7), "bulk"), true},
		{"libusb pipe", libusb.ErrorCode(-9), false},
		{"timeout method", timeoutError{}, true},
		{"plain error", io.EOF, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := &TransportError{Op: "read", Err: tt.err}
			assert.Equal(t, tt.want, te.Timeout())
			assert.True(t, errors.Is(te, tt.err))
		})
	}
}

func TestLibusbTimeoutFailsSession(t *testing.T) {
	s, ft := newTestSession(t)
	ft.queue = append(ft.queue, response{err: libusb.ErrorCode(-7)})

	err := s.Probe(0x40)
	var te *TransportError
	assert.True(t, errors.As(err, &te), "got %v", err)
	assert.True(t, te.Timeout())
	assert.False(t, s.Active())
}
