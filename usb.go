package ch341

import (
	"sync"
	"time"

	"github.com/gotmc/libusb"
	"github.com/pkg/errors"
)

// Context is the process-wide libusb session. Create it once with
// NewContext, pass it to every Open call and close it after all sessions
// are closed.
type Context struct {
	usb *libusb.Context
	mu  sync.Mutex
}

// NewContext initializes libusb.
func NewContext() (*Context, error) {
	usb, err := libusb.NewContext()
	if err != nil {
		return nil, errors.Wrap(err, "NewContext()")
	}
	return &Context{usb: usb}, nil
}

// Close releases libusb.
func (c *Context) Close() error {
	if c == nil || c.usb == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.usb.Close()
	c.usb = nil
	return err
}

// USBDevice is an opened adapter with its claimed interface and bulk
// endpoints. It implements Transport.
type USBDevice struct {
	handle  *libusb.DeviceHandle
	iface   int
	in      *libusb.EndpointDescriptor
	out     *libusb.EndpointDescriptor
	timeout time.Duration
}

// OpenByVidPid opens the first device with the given IDs.
func (c *Context) OpenByVidPid(vid, pid uint16) (*USBDevice, error) {
	if c == nil || c.usb == nil {
		return nil, errors.Wrap(ErrNotOpened, "OpenByVidPid(): libusb context")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dev, handle, err := c.usb.OpenDeviceWithVendorProduct(vid, pid)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "OpenByVidPid(): %04x:%04x: %v", vid, pid, err)
	}
	return attach(dev, handle)
}

// OpenBySerial opens the device whose serial number string equals serial.
func (c *Context) OpenBySerial(serial string) (*USBDevice, error) {
	if c == nil || c.usb == nil {
		return nil, errors.Wrap(ErrNotOpened, "OpenBySerial(): libusb context")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	devices, err := c.usb.GetDeviceList()
	if err != nil {
		return nil, errors.Wrap(err, "OpenBySerial(): device list")
	}

	for _, device := range devices {
		desc, err := device.GetDeviceDescriptor()
		if err != nil || desc.SerialNumberIndex == 0 {
			continue
		}
		handle, err := device.Open()
		if err != nil {
			continue
		}
		s, err := handle.GetStringDescriptorASCII(desc.SerialNumberIndex)
		if err == nil && s == serial {
			return attach(device, handle)
		}
		handle.Close()
	}
	return nil, errors.Wrapf(ErrNotFound, "OpenBySerial(): serial %q", serial)
}

// endpointInfo is the part of an endpoint descriptor discovery looks at.
type endpointInfo struct {
	addr byte
	bulk bool
}

// pickBulkEndpoints returns the indexes of the first bulk OUT and the first
// bulk IN endpoint. Address 0 is the control pipe and never a bulk endpoint.
func pickBulkEndpoints(eps []endpointInfo) (out, in int, err error) {
	out, in = -1, -1
	for i, ep := range eps {
		if !ep.bulk || ep.addr&0x0F == 0 {
			continue
		}
		if ep.addr&0x80 != 0 {
			if in < 0 {
				in = i
			}
		} else if out < 0 {
			out = i
		}
	}
	switch {
	case out < 0 && in < 0:
		err = errors.Wrap(ErrInvalidEndpoint, "no bulk OUT and no bulk IN")
	case out < 0:
		err = errors.Wrap(ErrInvalidEndpoint, "no bulk OUT")
	case in < 0:
		err = errors.Wrap(ErrInvalidEndpoint, "no bulk IN")
	}
	return
}

// attach claims the first interface and finds its bulk endpoints. The
// handle is closed on failure.
func attach(dev *libusb.Device, handle *libusb.DeviceHandle) (d *USBDevice, err error) {
	defer func() {
		if err != nil {
			handle.Close()
		}
	}()

	cfg, err := dev.GetActiveConfigDescriptor()
	if err != nil {
		return nil, errors.Wrap(err, "attach(): config descriptor")
	}
	if len(cfg.SupportedInterfaces) == 0 || len(cfg.SupportedInterfaces[0].InterfaceDescriptors) == 0 {
		return nil, errors.Wrap(ErrInvalidEndpoint, "attach(): no interface")
	}
	intf := cfg.SupportedInterfaces[0].InterfaceDescriptors[0]

	eps := make([]endpointInfo, len(intf.EndpointDescriptors))
	for i, ep := range intf.EndpointDescriptors {
		eps[i] = endpointInfo{
			addr: byte(ep.EndpointAddress),
			bulk: ep.TransferType() == libusb.BulkTransfer,
		}
	}
	out, in, err := pickBulkEndpoints(eps)
	if err != nil {
		return nil, errors.WithMessage(err, "attach()")
	}

	if err = handle.ClaimInterface(intf.InterfaceNumber); err != nil {
		return nil, errors.Wrap(err, "attach(): claim interface")
	}

	return &USBDevice{
		handle:  handle,
		iface:   intf.InterfaceNumber,
		in:      intf.EndpointDescriptors[in],
		out:     intf.EndpointDescriptors[out],
		timeout: DefaultTimeout,
	}, nil
}

// Endpoints returns the bulk OUT and IN endpoint addresses.
func (d *USBDevice) Endpoints() (out, in byte) {
	return byte(d.out.EndpointAddress), byte(d.in.EndpointAddress)
}

// SetTimeout changes the bound of every following transfer.
func (d *USBDevice) SetTimeout(t time.Duration) {
	if t > 0 {
		d.timeout = t
	}
}

func (d *USBDevice) timeoutMs() int {
	return int(d.timeout.Milliseconds())
}

// BulkWrite implements Transport.
func (d *USBDevice) BulkWrite(p []byte) (int, error) {
	if d == nil || d.handle == nil {
		return 0, ErrNotOpened
	}
	return d.handle.BulkTransfer(d.out.EndpointAddress, p, len(p), d.timeoutMs())
}

// BulkRead implements Transport.
func (d *USBDevice) BulkRead(maxLen int) ([]byte, error) {
	if d == nil || d.handle == nil {
		return nil, ErrNotOpened
	}
	buf := make([]byte, maxLen)
	n, err := d.handle.BulkTransfer(d.in.EndpointAddress, buf, maxLen, d.timeoutMs())
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Close releases the interface and the device handle.
func (d *USBDevice) Close() error {
	if d == nil || d.handle == nil {
		return nil
	}
	d.handle.ReleaseInterface(d.iface)
	err := d.handle.Close()
	d.handle = nil
	return err
}
