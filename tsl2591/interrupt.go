package tsl2591

import "context"

// Thresholds is one interrupt threshold window. The interrupt asserts after
// Persist consecutive cycles with the channel 0 count outside [Low, High].
type Thresholds struct {
	Low     uint16
	High    uint16
	Persist Persist
}

// SetThresholds programs the ALS threshold window and persistence filter.
// Low > High fails with ErrInvalidThreshold before any bus transaction. Both
// threshold words go out in one auto-increment write from AILTL, followed by
// one PERSIST write.
func (d *Device) SetThresholds(ctx context.Context, th Thresholds) error {
	if th.Low > th.High {
		return ErrInvalidThreshold
	}
	if err := d.writeRegister(ctx, RegAILTL,
		byte(th.Low), byte(th.Low>>8),
		byte(th.High), byte(th.High>>8),
	); err != nil {
		return err
	}
	return d.writeRegister(ctx, RegPersist, byte(th.Persist))
}

// SetNoPersistThresholds programs the no-persist threshold window, which
// bypasses the persistence filter entirely.
func (d *Device) SetNoPersistThresholds(ctx context.Context, low, high uint16) error {
	if low > high {
		return ErrInvalidThreshold
	}
	return d.writeRegister(ctx, RegNPAILTL,
		byte(low), byte(low>>8),
		byte(high), byte(high>>8),
	)
}

// EnableInterrupt sets AIEN so threshold violations assert the interrupt
// line, subject to the persist filter.
func (d *Device) EnableInterrupt(ctx context.Context) error {
	return d.setInterrupt(ctx, true)
}

// DisableInterrupt clears AIEN.
func (d *Device) DisableInterrupt(ctx context.Context) error {
	return d.setInterrupt(ctx, false)
}

func (d *Device) setInterrupt(ctx context.Context, on bool) error {
	next := d.cfg
	next.InterruptOn = on
	if err := d.writeRegister(ctx, RegEnable, next.enableBits()); err != nil {
		return err
	}
	d.cfg = next
	return nil
}

// EnableNoPersistInterrupt sets NPIEN.
func (d *Device) EnableNoPersistInterrupt(ctx context.Context) error {
	return d.setNoPersistInterrupt(ctx, true)
}

// DisableNoPersistInterrupt clears NPIEN.
func (d *Device) DisableNoPersistInterrupt(ctx context.Context) error {
	return d.setNoPersistInterrupt(ctx, false)
}

func (d *Device) setNoPersistInterrupt(ctx context.Context, on bool) error {
	next := d.cfg
	next.NoPersistIntOn = on
	if err := d.writeRegister(ctx, RegEnable, next.enableBits()); err != nil {
		return err
	}
	d.cfg = next
	return nil
}

// ClearInterrupt deasserts a latched ALS interrupt with the chip's
// special-function command. The owner must call this after servicing an
// interrupt, or the line stays asserted and no further edges are observable.
func (d *Device) ClearInterrupt(ctx context.Context) error {
	return d.specialFunction(ctx, ClearALSInterrupt)
}

// ClearAllInterrupts deasserts both the ALS and no-persist interrupts.
func (d *Device) ClearAllInterrupts(ctx context.Context) error {
	return d.specialFunction(ctx, ClearAllInterrupts)
}

// ClearNoPersistInterrupt deasserts the no-persist interrupt only.
func (d *Device) ClearNoPersistInterrupt(ctx context.Context) error {
	return d.specialFunction(ctx, ClearNoPersistInterrupt)
}

// ForceInterrupt asserts the interrupt line immediately, useful for wiring
// checks.
func (d *Device) ForceInterrupt(ctx context.Context) error {
	return d.specialFunction(ctx, ForceInterrupt)
}

func (d *Device) specialFunction(ctx context.Context, fn SpecialFunction) error {
	if err := d.bus.Tx(ctx, []byte{SpecialCommand(fn)}, nil); err != nil {
		return &BusError{Op: "special function", Err: err}
	}
	return nil
}
