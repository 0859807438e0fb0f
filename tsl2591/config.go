package tsl2591

import "time"

const (
	// Addr is the sensor's fixed 7-bit I2C address.
	Addr uint16 = 0x29

	// DeviceID is the value the ID register reads back on a real TSL2591.
	DeviceID byte = 0x50
)

// ENABLE register bits: NPIEN:7 | SAI:6 | AIEN:4 | AEN:1 | PON:0
const (
	enablePowerOn  byte = 0x01
	enableAEN      byte = 0x02
	enableAIEN     byte = 0x10
	enableNPIEN    byte = 0x80
	enablePowerOff byte = 0x00
)

// CONTROL register bits: SRESET:7 | AGAIN:5:4 | ATIME:2:0
const (
	controlSReset byte = 0x80
	gainMask      byte = 0x30
	timingMask    byte = 0x07
)

// Gain is the analog gain applied before digitization. The values are the
// chip's AGAIN field encodings.
type Gain byte

const (
	GainLow  Gain = 0x00 // 1x
	GainMed  Gain = 0x10 // 25x
	GainHigh Gain = 0x20 // 428x
	GainMax  Gain = 0x30 // 9876x
)

// Multiplier returns the gain's amplification factor used in the lux formula.
func (g Gain) Multiplier() float64 {
	switch g {
	case GainLow:
		return 1.0
	case GainMed:
		return 25.0
	case GainHigh:
		return 428.0
	case GainMax:
		return 9876.0
	default:
		return 1.0
	}
}

func (g Gain) String() string {
	switch g {
	case GainLow:
		return "Low gain (1x)"
	case GainMed:
		return "Medium gain (25x)"
	case GainHigh:
		return "High gain (428x)"
	case GainMax:
		return "Max gain (9876x)"
	default:
		return "Unknown"
	}
}

// IntegrationTime is how long the ADC accumulates charge per reading. The
// values are the chip's ATIME field encodings.
type IntegrationTime byte

const (
	IntegrationTime100ms IntegrationTime = 0x00
	IntegrationTime200ms IntegrationTime = 0x01
	IntegrationTime300ms IntegrationTime = 0x02
	IntegrationTime400ms IntegrationTime = 0x03
	IntegrationTime500ms IntegrationTime = 0x04
	IntegrationTime600ms IntegrationTime = 0x05
)

// Duration returns the integration time as a time.Duration.
func (t IntegrationTime) Duration() time.Duration {
	return time.Duration(t+1) * 100 * time.Millisecond
}

// Milliseconds returns the integration time in ms for the lux formula.
func (t IntegrationTime) Milliseconds() float64 {
	return float64(t+1) * 100.0
}

// maxCount is the ADC saturation ceiling. At 100ms the chip tops out below
// the full 16-bit range.
func (t IntegrationTime) maxCount() uint16 {
	if t == IntegrationTime100ms {
		return 36863
	}
	return 65535
}

func (t IntegrationTime) String() string {
	switch t {
	case IntegrationTime100ms, IntegrationTime200ms, IntegrationTime300ms,
		IntegrationTime400ms, IntegrationTime500ms, IntegrationTime600ms:
		return t.Duration().String()
	default:
		return "Unknown"
	}
}

// Persist is the interrupt persistence filter: how many consecutive
// out-of-threshold cycles are required before the interrupt asserts.
type Persist byte

const (
	PersistEvery Persist = 0x00 // every ALS cycle, regardless of thresholds
	Persist1     Persist = 0x01
	Persist2     Persist = 0x02
	Persist3     Persist = 0x03
	Persist5     Persist = 0x04
	Persist10    Persist = 0x05
	Persist15    Persist = 0x06
	Persist20    Persist = 0x07
	Persist25    Persist = 0x08
	Persist30    Persist = 0x09
	Persist35    Persist = 0x0A
	Persist40    Persist = 0x0B
	Persist45    Persist = 0x0C
	Persist50    Persist = 0x0D
	Persist55    Persist = 0x0E
	Persist60    Persist = 0x0F
)

// Config is the driver's last-confirmed view of the chip's configuration. It
// only ever reflects values a register write has already acknowledged, so it
// never drifts ahead of the hardware on a failed write.
type Config struct {
	Gain           Gain
	Time           IntegrationTime
	PowerOn        bool
	ALSOn          bool
	InterruptOn    bool // AIEN, subject to the persist filter
	NoPersistIntOn bool // NPIEN, bypasses the persist filter
}

// enableBits derives the ENABLE register pattern from the config flags.
func (c Config) enableBits() byte {
	if !c.PowerOn {
		return enablePowerOff
	}
	bits := enablePowerOn
	if c.ALSOn {
		bits |= enableAEN
	}
	if c.InterruptOn {
		bits |= enableAIEN
	}
	if c.NoPersistIntOn {
		bits |= enableNPIEN
	}
	return bits
}

// controlBits derives the CONTROL register pattern from gain and timing.
func (c Config) controlBits() byte {
	return byte(c.Gain)&gainMask | byte(c.Time)&timingMask
}
