package ch341

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickBulkEndpoints(t *testing.T) {
	// CH341A in I2C mode: bulk 0x82 IN, bulk 0x02 OUT, interrupt 0x81 IN
	eps := []endpointInfo{
		{addr: 0x82, bulk: true},
		{addr: 0x02, bulk: true},
		{addr: 0x81, bulk: false},
	}
	out, in, err := pickBulkEndpoints(eps)
	require.NoError(t, err)
	assert.Equal(t, 1, out)
	assert.Equal(t, 0, in)
}

func TestPickBulkEndpointsFirstWins(t *testing.T) {
	eps := []endpointInfo{
		{addr: 0x81, bulk: false},
		{addr: 0x01, bulk: true},
		{addr: 0x83, bulk: true},
		{addr: 0x03, bulk: true},
		{addr: 0x84, bulk: true},
	}
	out, in, err := pickBulkEndpoints(eps)
	require.NoError(t, err)
	assert.Equal(t, 1, out)
	assert.Equal(t, 2, in)
}

func TestPickBulkEndpointsMissing(t *testing.T) {
	tests := []struct {
		name string
		eps  []endpointInfo
	}{
		{"none", nil},
		{"no out", []endpointInfo{{addr: 0x82, bulk: true}}},
		{"no in", []endpointInfo{{addr: 0x02, bulk: true}}},
		{"interrupt only", []endpointInfo{{addr: 0x81}, {addr: 0x01}}},
		{"address zero", []endpointInfo{{addr: 0x00, bulk: true}, {addr: 0x80, bulk: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := pickBulkEndpoints(tt.eps)
			assert.True(t, errors.Is(err, ErrInvalidEndpoint), "got %v", err)
		})
	}
}

func TestContextNotInitialized(t *testing.T) {
	var c *Context
	_, err := c.OpenByVidPid(VendorID, ProductID)
	assert.True(t, errors.Is(err, ErrNotOpened))
	_, err = c.OpenBySerial("0001")
	assert.True(t, errors.Is(err, ErrNotOpened))
	assert.NoError(t, c.Close())

	var d *USBDevice
	_, err = d.BulkWrite([]byte{0})
	assert.Equal(t, ErrNotOpened, err)
	assert.NoError(t, d.Close())
}
