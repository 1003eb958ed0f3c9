package ch341

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	speed   Speed
	timeout time.Duration
	serial  string
	log     *zap.Logger
}

func defaultOptions() options {
	return options{
		speed:   DefaultSpeed,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
}

// Option configures a Session at open time.
type Option func(*options)

// WithSpeed selects the bus clock negotiated at open.
func WithSpeed(s Speed) Option {
	return func(o *options) { o.speed = s }
}

// WithTimeout bounds each bulk transfer. Ignored by New, where the
// Transport owns its timeout.
func WithTimeout(t time.Duration) Option {
	return func(o *options) {
		if t > 0 {
			o.timeout = t
		}
	}
}

// WithSerial makes Open look the adapter up by serial number instead of
// by vendor and product ID.
func WithSerial(serial string) Option {
	return func(o *options) { o.serial = serial }
}

// WithLogger attaches a logger. Sessions are silent by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
