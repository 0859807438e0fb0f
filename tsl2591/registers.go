package tsl2591

import (
	"encoding/binary"
	"fmt"
)

// Register identifies one of the chip's addressable registers.
// The register file is a closed set; the named constants below are the only
// valid values, so raw register numbers never cross the package surface.
type Register byte

const (
	RegEnable  Register = 0x00 // Power, ALS and interrupt enables
	RegControl Register = 0x01 // System reset, analog gain, integration time

	RegAILTL Register = 0x04 // ALS low threshold, low byte
	RegAILTH Register = 0x05 // ALS low threshold, high byte
	RegAIHTL Register = 0x06 // ALS high threshold, low byte
	RegAIHTH Register = 0x07 // ALS high threshold, high byte

	RegNPAILTL Register = 0x08 // No-persist low threshold, low byte
	RegNPAILTH Register = 0x09 // No-persist low threshold, high byte
	RegNPAIHTL Register = 0x0A // No-persist high threshold, low byte
	RegNPAIHTH Register = 0x0B // No-persist high threshold, high byte

	RegPersist Register = 0x0C // Interrupt persistence filter

	RegPackageID Register = 0x11 // Package identification
	RegDeviceID  Register = 0x12 // Device identification, reads 0x50
	RegStatus    Register = 0x13 // AVALID, AINT, NPINTR flags

	RegChan0Low  Register = 0x14 // Channel 0 (full spectrum) low byte
	RegChan0High Register = 0x15 // Channel 0 high byte
	RegChan1Low  Register = 0x16 // Channel 1 (infrared) low byte
	RegChan1High Register = 0x17 // Channel 1 high byte
)

// Command byte layout: CMD:7 | TRANSACTION:6:5 | ADDR/SF:4:0
const (
	commandBit       byte = 0x80
	txnAutoIncrement byte = 0x20 // normal transaction, address auto-increments
	txnSpecial       byte = 0x60 // special function, low bits select the function
	addrMask         byte = 0x1F
)

// SpecialFunction selects one of the chip's predefined command-byte functions
// instead of addressing a register.
type SpecialFunction byte

const (
	ForceInterrupt          SpecialFunction = 0x04 // Assert the interrupt line now
	ClearALSInterrupt       SpecialFunction = 0x06 // Deassert a latched ALS interrupt
	ClearAllInterrupts      SpecialFunction = 0x07 // Clear ALS and no-persist interrupts
	ClearNoPersistInterrupt SpecialFunction = 0x0A // Clear the no-persist interrupt only
)

// Command encodes a register access command byte. With autoIncrement the chip
// advances the register address after each byte, which is how the four
// channel-data registers are read in a single transaction.
func Command(reg Register, autoIncrement bool) byte {
	cmd := commandBit | byte(reg)&addrMask
	if autoIncrement {
		cmd |= txnAutoIncrement
	}
	return cmd
}

// SpecialCommand encodes a special-function command byte.
func SpecialCommand(fn SpecialFunction) byte {
	return commandBit | txnSpecial | byte(fn)&addrMask
}

// ParseCommand decodes a command byte back into its register and
// auto-increment flag. Special-function selectors and addresses outside the
// register file are rejected.
func ParseCommand(cmd byte) (Register, bool, error) {
	if cmd&commandBit == 0 {
		return 0, false, fmt.Errorf("tsl2591: byte 0x%02X is not a command", cmd)
	}
	if cmd&txnSpecial == txnSpecial {
		return 0, false, fmt.Errorf("tsl2591: byte 0x%02X is a special function, not a register command", cmd)
	}
	if cmd&txnSpecial == 0x40 {
		return 0, false, fmt.Errorf("tsl2591: byte 0x%02X uses a reserved transaction encoding", cmd)
	}
	reg := Register(cmd & addrMask)
	switch reg {
	case RegEnable, RegControl,
		RegAILTL, RegAILTH, RegAIHTL, RegAIHTH,
		RegNPAILTL, RegNPAILTH, RegNPAIHTL, RegNPAIHTH,
		RegPersist, RegPackageID, RegDeviceID, RegStatus,
		RegChan0Low, RegChan0High, RegChan1Low, RegChan1High:
		return reg, cmd&txnAutoIncrement != 0, nil
	}
	return 0, false, fmt.Errorf("tsl2591: no register at address 0x%02X", byte(reg))
}

// decodeWord combines two register bytes little-endian, low byte first.
func decodeWord(lo, hi byte) uint16 {
	return binary.LittleEndian.Uint16([]byte{lo, hi})
}
