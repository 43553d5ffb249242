package mcamdriver

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// Transport is the minimal surface the driver needs from the USB stack:
// vendor control writes and bulk frame reads. The abstraction enables unit
// testing the protocol and capture layers without camera hardware.
type Transport interface {
	// SendVendorControl issues one vendor control transfer with the
	// register in wValue and the given payload.
	SendVendorControl(reg Register, payload []byte) error
	// ReadBulk issues one bulk IN transfer into buf and reports the number
	// of bytes the device actually produced.
	ReadBulk(ctx context.Context, buf []byte) (int, error)
	Close() error
}

// USBTransport drives the camera through gousb/libusb.
type USBTransport struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	doneFn func()
	ep     *gousb.InEndpoint
}

// OpenUSBTransport finds the one Moticam 3+ on the bus and claims its bulk
// IN endpoint. The returned transport exclusively owns the device until
// Close.
func OpenUSBTransport() (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(CAMERA_ID_VENDOR, CAMERA_ID_PRODUCT)
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("can not open device %04x:%04x: %w", CAMERA_ID_VENDOR, CAMERA_ID_PRODUCT, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("no device %04x:%04x found", CAMERA_ID_VENDOR, CAMERA_ID_PRODUCT)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("can not set auto-detach: %w", err)
	}

	intf, done, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("can not claim default interface: %w", err)
	}

	ep, err := intf.InEndpoint(CAMERA_BULK_ENDPOINT & 0x0f)
	if err != nil {
		done()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("can not open bulk endpoint %#02x: %w", CAMERA_BULK_ENDPOINT, err)
	}

	INFOLogger.Printf("Opened Moticam 3+ at bus %d address %d", dev.Desc.Bus, dev.Desc.Address)

	return &USBTransport{
		ctx:    ctx,
		dev:    dev,
		intf:   intf,
		doneFn: done,
		ep:     ep,
	}, nil
}

func (t *USBTransport) SendVendorControl(reg Register, payload []byte) error {
	_, err := t.dev.Control(
		gousb.ControlOut|gousb.ControlVendor|gousb.ControlDevice,
		CAMERA_VENDOR_REQUEST, uint16(reg), 0, payload,
	)
	if err != nil {
		return fmt.Errorf("vendor control %#04x failed: %w", uint16(reg), err)
	}
	return nil
}

func (t *USBTransport) ReadBulk(ctx context.Context, buf []byte) (int, error) {
	n, err := t.ep.ReadContext(ctx, buf)
	if err != nil {
		return n, fmt.Errorf("bulk read failed: %w", err)
	}
	return n, nil
}

func (t *USBTransport) Close() error {
	t.doneFn()
	err := t.dev.Close()
	t.ctx.Close()
	return err
}
