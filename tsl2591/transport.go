package tsl2591

import (
	"context"

	"golang.org/x/exp/io/i2c"
)

// DefaultDevicePath is the default I2C bus on a Raspberry Pi.
const DefaultDevicePath = "/dev/i2c-1"

// Transport performs one bus transaction against the sensor: write out, then
// read len(in) bytes (skipped when in is empty). Implementations target a
// fixed 7-bit peripheral address and surface a single failure per transaction
// without retrying.
//
// The driver owns its Transport exclusively and issues transactions as an
// ordered sequence; sharing one physical bus between drivers is the caller's
// responsibility.
type Transport interface {
	Tx(ctx context.Context, out, in []byte) error
}

// I2CBus is the blocking Transport over a Linux I2C devfs device. A
// transaction occupies the calling goroutine until the kernel completes it;
// the context is ignored once the transaction has started.
type I2CBus struct {
	dev *i2c.Device
}

// OpenI2C opens the sensor's bus device at path. An empty path selects
// DefaultDevicePath.
func OpenI2C(path string) (*I2CBus, error) {
	if path == "" {
		path = DefaultDevicePath
	}
	dev, err := i2c.Open(&i2c.Devfs{Dev: path}, int(Addr))
	if err != nil {
		return nil, err
	}
	return &I2CBus{dev: dev}, nil
}

func (b *I2CBus) Tx(_ context.Context, out, in []byte) error {
	switch {
	case len(in) == 0:
		return b.dev.Write(out)
	case len(out) == 1:
		// Combined write+read with repeated start.
		return b.dev.ReadReg(out[0], in)
	default:
		if err := b.dev.Write(out); err != nil {
			return err
		}
		return b.dev.Read(in)
	}
}

// Close releases the bus device.
func (b *I2CBus) Close() error {
	return b.dev.Close()
}

// CancelableBus adapts any Transport so a transaction becomes a suspension
// point: it runs on its own goroutine and Tx returns as soon as the context
// is done, letting the caller time out or interleave other work. The
// abandoned transaction still runs to completion in the background, so the
// bus stays consistent. Success/error contract is identical to the wrapped
// Transport.
type CancelableBus struct {
	inner Transport
}

// NewCancelableBus wraps a Transport with context-aware transactions.
func NewCancelableBus(inner Transport) *CancelableBus {
	return &CancelableBus{inner: inner}
}

func (b *CancelableBus) Tx(ctx context.Context, out, in []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- b.inner.Tx(ctx, out, in)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
