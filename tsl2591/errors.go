package tsl2591

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEnabled is returned when a measurement is requested while the
	// sensor is powered down or the ALS is off. No bus transaction is issued.
	ErrNotEnabled = errors.New("tsl2591: sensor is not enabled")

	// ErrSaturated is returned when a raw channel count reaches the ADC
	// ceiling for the current integration time. The reading carries no usable
	// light level; re-expose at a lower gain or shorter integration time.
	ErrSaturated = errors.New("tsl2591: adc saturated")

	// ErrInvalidThreshold is returned when a threshold pair has low > high.
	ErrInvalidThreshold = errors.New("tsl2591: low threshold above high threshold")
)

// BusError wraps a transport-level failure. The driver never retries; the
// underlying error is preserved for errors.Is/As.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("tsl2591: bus %s: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

// InvalidIDError is returned by New when the probed device ID register does
// not read back the TSL2591 identity.
type InvalidIDError struct {
	Got byte
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("tsl2591: unexpected device ID 0x%02X, want 0x%02X", e.Got, DeviceID)
}
