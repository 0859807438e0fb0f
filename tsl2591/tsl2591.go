package tsl2591

/*
 * tsl2591 - Driver for the TSL2591 high dynamic range lux sensor.
 *
 * The chip is reached over a two-wire register-addressed bus; every access
 * goes through a Transport, so the same driver runs against the blocking
 * devfs bus, a context-aware wrapper, or a test double.
 *
 * Ref:
 * https://ams.com/tsl25911 (datasheet: register map, lux formula)
 */

import (
	"context"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var l *logrus.Logger

func init() {
	l = logrus.New()
	// Setup the logger, so it can be parsed by datadog
	l.Formatter = &logrus.JSONFormatter{}
	l.SetOutput(os.Stdout)
	// Set the log level
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))
	switch logLevel {
	case "debug":
		l.SetLevel(logrus.DebugLevel)
	case "info":
		l.SetLevel(logrus.InfoLevel)
	case "error":
		l.SetLevel(logrus.ErrorLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
}

// luxDF is the sensor's device factor from the datasheet lux formula.
const luxDF = 408.0

// ChannelReading is one pair of raw ADC counts. Channel 0 sees the full
// spectrum (visible + infrared), channel 1 infrared only. Readings are
// produced fresh on every request and never cached.
type ChannelReading struct {
	Full     uint16
	Infrared uint16
}

// Status is the decoded STATUS register.
type Status struct {
	CycleComplete      bool // AVALID: an integration cycle completed since AEN was set
	Interrupt          bool // AINT: ALS interrupt latched
	NoPersistInterrupt bool // NPINTR: no-persist interrupt latched
}

// Device is a driver instance bound to one transport and the chip's fixed
// address. It exclusively owns its Transport; one logical task drives one
// bus master at a time, and any cross-task sharing must be serialized by the
// caller.
type Device struct {
	bus Transport
	cfg Config
}

// Option configures a Device during New.
type Option func(*Config)

// WithGain sets the initial analog gain.
func WithGain(g Gain) Option {
	return func(c *Config) { c.Gain = g }
}

// WithIntegrationTime sets the initial integration time.
func WithIntegrationTime(t IntegrationTime) Option {
	return func(c *Config) { c.Time = t }
}

// New binds a driver to a transport, verifies the chip identity, applies the
// initial gain/timing and powers the sensor on. The zero configuration is
// low gain at 100ms.
func New(ctx context.Context, bus Transport, opts ...Option) (*Device, error) {
	d := &Device{bus: bus}
	want := Config{Gain: GainLow, Time: IntegrationTime100ms}
	for _, opt := range opts {
		opt(&want)
	}

	id, err := d.ID(ctx)
	if err != nil {
		return nil, err
	}
	if id != DeviceID {
		return nil, &InvalidIDError{Got: id}
	}

	// Program gain and timing in one CONTROL write, then bring the ALS up.
	if err := d.writeRegister(ctx, RegControl, want.controlBits()); err != nil {
		return nil, err
	}
	d.cfg.Gain = want.Gain
	d.cfg.Time = want.Time

	if err := d.Enable(ctx); err != nil {
		return nil, err
	}
	l.WithFields(logrus.Fields{
		"gain": d.cfg.Gain.String(),
		"time": d.cfg.Time.String(),
	}).Debug("tsl2591 connected")
	return d, nil
}

// Config returns the last-confirmed device configuration.
func (d *Device) Config() Config {
	return d.cfg
}

// Enabled reports whether the sensor is powered with the ALS running.
func (d *Device) Enabled() bool {
	return d.cfg.PowerOn && d.cfg.ALSOn
}

// writeRegister issues one bus write of vals to reg. All register traffic
// uses the normal-operation transaction; the chip auto-increments the
// address across multi-byte payloads.
func (d *Device) writeRegister(ctx context.Context, reg Register, vals ...byte) error {
	out := append([]byte{Command(reg, true)}, vals...)
	if err := d.bus.Tx(ctx, out, nil); err != nil {
		return &BusError{Op: "write", Err: err}
	}
	return nil
}

// readRegister fills buf starting at reg, auto-incrementing across registers
// byte by byte.
func (d *Device) readRegister(ctx context.Context, reg Register, buf []byte) error {
	out := []byte{Command(reg, true)}
	if err := d.bus.Tx(ctx, out, buf); err != nil {
		return &BusError{Op: "read", Err: err}
	}
	return nil
}

// Enable powers the sensor on and starts the ALS, preserving the configured
// interrupt enables.
func (d *Device) Enable(ctx context.Context) error {
	next := d.cfg
	next.PowerOn = true
	next.ALSOn = true
	if err := d.writeRegister(ctx, RegEnable, next.enableBits()); err != nil {
		return err
	}
	d.cfg = next
	return nil
}

// Disable powers the sensor down.
func (d *Device) Disable(ctx context.Context) error {
	next := d.cfg
	next.PowerOn = false
	next.ALSOn = false
	if err := d.writeRegister(ctx, RegEnable, next.enableBits()); err != nil {
		return err
	}
	d.cfg = next
	return nil
}

// SetGain writes the CONTROL register with the new gain OR'd with the
// last-confirmed timing bits. The in-memory gain updates only after the
// write succeeds.
func (d *Device) SetGain(ctx context.Context, g Gain) error {
	next := d.cfg
	next.Gain = g
	if err := d.writeRegister(ctx, RegControl, next.controlBits()); err != nil {
		return err
	}
	d.cfg = next
	return nil
}

// SetIntegrationTime writes the CONTROL register with the new timing OR'd
// with the last-confirmed gain bits.
func (d *Device) SetIntegrationTime(ctx context.Context, t IntegrationTime) error {
	next := d.cfg
	next.Time = t
	if err := d.writeRegister(ctx, RegControl, next.controlBits()); err != nil {
		return err
	}
	d.cfg = next
	return nil
}

// Reset issues a system reset via the CONTROL SRESET bit. The chip comes
// back with default gain/timing, so the confirmed config is cleared with it.
func (d *Device) Reset(ctx context.Context) error {
	if err := d.writeRegister(ctx, RegControl, controlSReset); err != nil {
		return err
	}
	d.cfg = Config{}
	return nil
}

// ID reads the device identification register.
func (d *Device) ID(ctx context.Context) (byte, error) {
	var buf [1]byte
	if err := d.readRegister(ctx, RegDeviceID, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadStatus reads and decodes the STATUS register.
func (d *Device) ReadStatus(ctx context.Context) (Status, error) {
	var buf [1]byte
	if err := d.readRegister(ctx, RegStatus, buf[:]); err != nil {
		return Status{}, err
	}
	return Status{
		CycleComplete:      buf[0]&0x01 != 0,
		Interrupt:          buf[0]&0x10 != 0,
		NoPersistInterrupt: buf[0]&0x20 != 0,
	}, nil
}

// ReadChannels reads both photodiode channels in a single four-byte
// auto-increment transaction. Fails with ErrNotEnabled before touching the
// bus when the sensor is off.
func (d *Device) ReadChannels(ctx context.Context) (ChannelReading, error) {
	if !d.Enabled() {
		return ChannelReading{}, ErrNotEnabled
	}
	var buf [4]byte
	if err := d.readRegister(ctx, RegChan0Low, buf[:]); err != nil {
		return ChannelReading{}, err
	}
	reading := ChannelReading{
		Full:     decodeWord(buf[0], buf[1]),
		Infrared: decodeWord(buf[2], buf[3]),
	}
	l.WithFields(logrus.Fields{
		"full":     reading.Full,
		"infrared": reading.Infrared,
	}).Debug("channel read")
	return reading, nil
}

// ReadLux reads both channels and converts the counts to lux using the
// confirmed gain and integration time. Returns ErrSaturated when either
// channel is at the ADC ceiling; the caller should re-expose at a lower gain
// or shorter integration time rather than treat the value as usable.
func (d *Device) ReadLux(ctx context.Context) (float64, error) {
	reading, err := d.ReadChannels(ctx)
	if err != nil {
		return 0, err
	}
	return d.cfg.Lux(reading)
}

// Lux applies the datasheet formula to a raw reading. Pure function of the
// counts and the confirmed configuration; no averaging or filtering.
func (c Config) Lux(r ChannelReading) (float64, error) {
	if max := c.Time.maxCount(); r.Full >= max || r.Infrared >= max {
		return 0, ErrSaturated
	}
	if r.Full == 0 {
		return 0, nil
	}
	ch0 := float64(r.Full)
	ch1 := float64(r.Infrared)
	cpl := (c.Time.Milliseconds() * c.Gain.Multiplier()) / luxDF
	return (ch0 - ch1) * (1.0 - ch1/ch0) / cpl, nil
}
