package tsl2591_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ztkent/lux-meter/tsl2591"
)

// busRecorder is an in-memory register file implementing tsl2591.Transport.
// Every outbound frame is recorded so tests can assert on exact bus traffic.
type busRecorder struct {
	frames [][]byte
	regs   map[byte]byte
	failOn int   // fail the nth transaction (1-based), 0 = never
	err    error // error returned on failure
	n      int
}

func newBusRecorder() *busRecorder {
	return &busRecorder{
		regs: map[byte]byte{
			0x12: 0x50, // device ID
		},
		err: errors.New("no ack"),
	}
}

func (b *busRecorder) Tx(_ context.Context, out, in []byte) error {
	b.n++
	frame := make([]byte, len(out))
	copy(frame, out)
	b.frames = append(b.frames, frame)
	if b.failOn != 0 && b.n >= b.failOn {
		return b.err
	}

	cmd := out[0]
	if cmd&0x60 == 0x60 {
		// Special function, no register access.
		return nil
	}
	addr := cmd & 0x1F
	autoInc := cmd&0x20 != 0
	for i, v := range out[1:] {
		if autoInc {
			b.regs[addr+byte(i)] = v
		} else {
			b.regs[addr] = v
		}
	}
	for i := range in {
		if autoInc {
			in[i] = b.regs[addr+byte(i)]
		} else {
			in[i] = b.regs[addr]
		}
	}
	return nil
}

// reset clears the recorded traffic but keeps the register file.
func (b *busRecorder) reset() {
	b.frames = nil
	b.n = 0
	b.failOn = 0
}

func newTestDevice(t *testing.T, opts ...tsl2591.Option) (*tsl2591.Device, *busRecorder) {
	t.Helper()
	bus := newBusRecorder()
	dev, err := tsl2591.New(context.Background(), bus, opts...)
	require.NoError(t, err)
	bus.reset()
	return dev, bus
}

func TestCommandRoundTrip(t *testing.T) {
	registers := []tsl2591.Register{
		tsl2591.RegEnable, tsl2591.RegControl,
		tsl2591.RegAILTL, tsl2591.RegAILTH, tsl2591.RegAIHTL, tsl2591.RegAIHTH,
		tsl2591.RegNPAILTL, tsl2591.RegNPAILTH, tsl2591.RegNPAIHTL, tsl2591.RegNPAIHTH,
		tsl2591.RegPersist, tsl2591.RegPackageID, tsl2591.RegDeviceID, tsl2591.RegStatus,
		tsl2591.RegChan0Low, tsl2591.RegChan0High, tsl2591.RegChan1Low, tsl2591.RegChan1High,
	}
	for _, reg := range registers {
		for _, autoInc := range []bool{false, true} {
			cmd := tsl2591.Command(reg, autoInc)
			assert.NotZero(t, cmd&0x80, "command bit must be set")

			gotReg, gotAutoInc, err := tsl2591.ParseCommand(cmd)
			require.NoError(t, err)
			assert.Equal(t, reg, gotReg)
			assert.Equal(t, autoInc, gotAutoInc)
		}
	}
}

func TestParseCommandRejects(t *testing.T) {
	// Not a command byte at all.
	_, _, err := tsl2591.ParseCommand(0x14)
	assert.Error(t, err)

	// Special functions are not register commands.
	_, _, err = tsl2591.ParseCommand(tsl2591.SpecialCommand(tsl2591.ClearALSInterrupt))
	assert.Error(t, err)

	// Hole in the register file.
	_, _, err = tsl2591.ParseCommand(0x80 | 0x02)
	assert.Error(t, err)

	// Reserved transaction encoding (bits 6:5 = 10).
	_, _, err = tsl2591.ParseCommand(0xC0)
	assert.Error(t, err)
}

func TestSpecialCommandEncoding(t *testing.T) {
	tests := []struct {
		fn   tsl2591.SpecialFunction
		want byte
	}{
		{tsl2591.ForceInterrupt, 0xE4},
		{tsl2591.ClearALSInterrupt, 0xE6},
		{tsl2591.ClearAllInterrupts, 0xE7},
		{tsl2591.ClearNoPersistInterrupt, 0xEA},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tsl2591.SpecialCommand(tc.fn))
	}
}

func TestNewVerifiesDeviceID(t *testing.T) {
	bus := newBusRecorder()
	bus.regs[0x12] = 0x39

	_, err := tsl2591.New(context.Background(), bus)
	var idErr *tsl2591.InvalidIDError
	require.ErrorAs(t, err, &idErr)
	assert.Equal(t, byte(0x39), idErr.Got)
}

func TestNewAppliesInitialConfig(t *testing.T) {
	bus := newBusRecorder()
	dev, err := tsl2591.New(context.Background(), bus,
		tsl2591.WithGain(tsl2591.GainHigh),
		tsl2591.WithIntegrationTime(tsl2591.IntegrationTime300ms),
	)
	require.NoError(t, err)

	cfg := dev.Config()
	assert.Equal(t, tsl2591.GainHigh, cfg.Gain)
	assert.Equal(t, tsl2591.IntegrationTime300ms, cfg.Time)
	assert.True(t, dev.Enabled())
	// CONTROL holds AGAIN | ATIME as written during New.
	assert.Equal(t, byte(0x22), bus.regs[0x01])
}

func TestGainAndTimingBitsIndependent(t *testing.T) {
	dev, bus := newTestDevice(t)

	require.NoError(t, dev.SetGain(context.Background(), tsl2591.GainMed))
	require.NoError(t, dev.SetIntegrationTime(context.Background(), tsl2591.IntegrationTime400ms))

	// The second CONTROL write must still carry the gain set by the first.
	require.Len(t, bus.frames, 2)
	assert.Equal(t, []byte{0xA0 | 0x01, 0x10}, bus.frames[0])
	assert.Equal(t, []byte{0xA0 | 0x01, 0x10 | 0x03}, bus.frames[1])
}

func TestRegisterAccessUsesNormalTransaction(t *testing.T) {
	// Every register access goes out as a normal-operation command
	// (0xA0 | addr); the other transaction encodings are reserved.
	dev, bus := newTestDevice(t)

	require.NoError(t, dev.Enable(context.Background()))
	require.NoError(t, dev.SetGain(context.Background(), tsl2591.GainMed))
	_, err := dev.ID(context.Background())
	require.NoError(t, err)

	require.Len(t, bus.frames, 3)
	assert.Equal(t, byte(0xA0), bus.frames[0][0])
	assert.Equal(t, byte(0xA1), bus.frames[1][0])
	assert.Equal(t, byte(0xB2), bus.frames[2][0])
}

func TestFailedWriteKeepsConfirmedState(t *testing.T) {
	dev, bus := newTestDevice(t)
	before := dev.Config()

	bus.failOn = 1
	err := dev.SetGain(context.Background(), tsl2591.GainMax)
	var busErr *tsl2591.BusError
	require.ErrorAs(t, err, &busErr)

	// The requested gain must not be trusted after a failed write.
	assert.Equal(t, before, dev.Config())
}

func TestReadChannelsNotEnabled(t *testing.T) {
	dev, bus := newTestDevice(t)
	require.NoError(t, dev.Disable(context.Background()))
	bus.reset()

	_, err := dev.ReadChannels(context.Background())
	assert.ErrorIs(t, err, tsl2591.ErrNotEnabled)
	// The precondition is checked locally, no bus traffic.
	assert.Empty(t, bus.frames)
}

func TestReadChannelsDecodesLittleEndian(t *testing.T) {
	dev, bus := newTestDevice(t)
	bus.regs[0x14] = 0x10
	bus.regs[0x15] = 0x00
	bus.regs[0x16] = 0x08
	bus.regs[0x17] = 0x00

	reading, err := dev.ReadChannels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0010), reading.Full)
	assert.Equal(t, uint16(0x0008), reading.Infrared)

	// One auto-increment read of the four data registers.
	require.Len(t, bus.frames, 1)
	assert.Equal(t, []byte{0xA0 | 0x14}, bus.frames[0])
}

func TestReadLuxReferenceFixture(t *testing.T) {
	// ch0=0x0010, ch1=0x0008 at medium gain and 100ms:
	// cpl = (100 * 25) / 408, lux = (16-8) * (1 - 8/16) / cpl = 1632/2500
	dev, bus := newTestDevice(t,
		tsl2591.WithGain(tsl2591.GainMed),
		tsl2591.WithIntegrationTime(tsl2591.IntegrationTime100ms),
	)
	bus.regs[0x14] = 0x10
	bus.regs[0x16] = 0x08

	lux, err := dev.ReadLux(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.6528, lux, 1e-9)
}

var allGains = []tsl2591.Gain{
	tsl2591.GainLow, tsl2591.GainMed, tsl2591.GainHigh, tsl2591.GainMax,
}

var allTimes = []tsl2591.IntegrationTime{
	tsl2591.IntegrationTime100ms, tsl2591.IntegrationTime200ms,
	tsl2591.IntegrationTime300ms, tsl2591.IntegrationTime400ms,
	tsl2591.IntegrationTime500ms, tsl2591.IntegrationTime600ms,
}

func TestReadLuxSaturated(t *testing.T) {
	for _, gain := range allGains {
		for _, tm := range allTimes {
			dev, bus := newTestDevice(t,
				tsl2591.WithGain(gain), tsl2591.WithIntegrationTime(tm))
			bus.regs[0x14] = 0xFF
			bus.regs[0x15] = 0xFF

			_, err := dev.ReadLux(context.Background())
			assert.ErrorIs(t, err, tsl2591.ErrSaturated,
				"gain %v time %v", gain, tm)
		}
	}
}

func TestReadLuxSaturatedAt100msCeiling(t *testing.T) {
	// 36863 = 0x8FFF saturates only at the 100ms integration time.
	for _, tm := range []tsl2591.IntegrationTime{
		tsl2591.IntegrationTime100ms, tsl2591.IntegrationTime200ms,
	} {
		dev, bus := newTestDevice(t, tsl2591.WithIntegrationTime(tm))
		bus.regs[0x14] = 0xFF
		bus.regs[0x15] = 0x8F
		bus.regs[0x16] = 0x01

		_, err := dev.ReadLux(context.Background())
		if tm == tsl2591.IntegrationTime100ms {
			assert.ErrorIs(t, err, tsl2591.ErrSaturated)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestLuxMonotonicInGainAndTime(t *testing.T) {
	readLux := func(gain tsl2591.Gain, tm tsl2591.IntegrationTime) float64 {
		dev, bus := newTestDevice(t,
			tsl2591.WithGain(gain), tsl2591.WithIntegrationTime(tm))
		bus.regs[0x14] = 0xE8 // ch0 = 1000
		bus.regs[0x15] = 0x03
		bus.regs[0x16] = 0xC8 // ch1 = 200
		lux, err := dev.ReadLux(context.Background())
		require.NoError(t, err)
		return lux
	}

	// Fixed raw counts: a longer integration time never raises lux.
	for _, gain := range allGains {
		prev := readLux(gain, allTimes[0])
		for _, tm := range allTimes[1:] {
			lux := readLux(gain, tm)
			assert.LessOrEqual(t, lux, prev, "gain %v time %v", gain, tm)
			prev = lux
		}
	}
	// And a larger gain multiplier never raises lux.
	for _, tm := range allTimes {
		prev := readLux(allGains[0], tm)
		for _, gain := range allGains[1:] {
			lux := readLux(gain, tm)
			assert.LessOrEqual(t, lux, prev, "gain %v time %v", gain, tm)
			prev = lux
		}
	}
}

func TestEnableDisablePatterns(t *testing.T) {
	dev, bus := newTestDevice(t)

	require.NoError(t, dev.Disable(context.Background()))
	require.NoError(t, dev.Enable(context.Background()))
	require.Len(t, bus.frames, 2)
	assert.Equal(t, []byte{0xA0, 0x00}, bus.frames[0])
	assert.Equal(t, []byte{0xA0, 0x03}, bus.frames[1]) // PON | AEN

	// With the interrupt armed the enable pattern carries AIEN too.
	bus.reset()
	require.NoError(t, dev.EnableInterrupt(context.Background()))
	assert.Equal(t, []byte{0xA0, 0x13}, bus.frames[0]) // PON | AEN | AIEN
	require.NoError(t, dev.Disable(context.Background()))
	require.NoError(t, dev.Enable(context.Background()))
	assert.Equal(t, []byte{0xA0, 0x13}, bus.frames[2])
}

func TestCancelableBusCancellation(t *testing.T) {
	release := make(chan struct{})
	slow := transportFunc(func(ctx context.Context, out, in []byte) error {
		<-release
		return nil
	})
	bus := tsl2591.NewCancelableBus(slow)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := bus.Tx(ctx, []byte{0xA0}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestCancelableBusPassesThrough(t *testing.T) {
	called := false
	inner := transportFunc(func(ctx context.Context, out, in []byte) error {
		called = true
		return nil
	})
	bus := tsl2591.NewCancelableBus(inner)
	require.NoError(t, bus.Tx(context.Background(), []byte{0xA0}, nil))
	assert.True(t, called)
}

type transportFunc func(ctx context.Context, out, in []byte) error

func (f transportFunc) Tx(ctx context.Context, out, in []byte) error {
	return f(ctx, out, in)
}
