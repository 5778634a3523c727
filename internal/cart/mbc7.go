package cart

import (
	"bytes"
	"encoding/gob"
)

// eepromState mirrors the ChipState machine of the 93LC56 serial EEPROM
// wired into MBC7 carts (Kirby Tilt 'n' Tumble, Command Master), ported
// from jgb-core's mbc7.rs state-transition table.
type eepromState int

const (
	eepromStandby eepromState = iota
	eepromReadingOp
	eepromReadingData
	eepromSendingOutput
	eepromFinished
)

type eepromWriteType int

const (
	writeSingle eepromWriteType = iota
	writeAll
)

// mbc7EEPROM emulates the bit-serial protocol: each clock rising edge
// while chip-select is asserted shifts one bit of the current operation.
type mbc7EEPROM struct {
	memory [256]byte // 128 16-bit words

	state         eepromState
	writeEnabled  bool
	lastClock     bool
	opBits        uint16
	opBitsLeft    uint8
	dataBits      uint16
	dataBitsLeft  uint8
	writeType     eepromWriteType
	writeAddr     uint8
	readValue     uint16
	readBitsLeft  uint8
}

func newMBC7EEPROM() *mbc7EEPROM {
	return &mbc7EEPROM{state: eepromStandby}
}

// handleRead returns the register byte read at 0xA000-0xAFFF: bit7 and
// bits 5-1 are always high, bit6 mirrors the last clock line, bit0 is the
// serial data-out line.
func (e *mbc7EEPROM) handleRead() byte {
	var dataOut byte
	if e.state == eepromSendingOutput && e.readBitsLeft > 0 {
		bit := e.readBitsLeft - 1
		if e.readValue&(1<<bit) != 0 {
			dataOut = 1
		}
	}
	var clockBit byte
	if e.lastClock {
		clockBit = 1
	}
	return 0xBE | (clockBit << 6) | dataOut
}

func (e *mbc7EEPROM) handleWrite(value byte) {
	chipSelect := value&0x80 != 0
	clock := value&0x40 != 0
	dataIn := value&0x02 != 0

	if !e.lastClock && clock {
		e.clockEdge(chipSelect, dataIn)
	} else if !chipSelect {
		switch e.state {
		case eepromReadingOp, eepromSendingOutput, eepromFinished:
			// write-enable status is preserved across a mid-command abort
		case eepromReadingData:
			e.writeEnabled = true
			e.state = eepromStandby
		}
		if e.state != eepromReadingData {
			e.state = eepromStandby
		}
	}
	e.lastClock = clock
}

func (e *mbc7EEPROM) clockEdge(chipSelect, dataIn bool) {
	switch e.state {
	case eepromStandby:
		if chipSelect && dataIn {
			e.state = eepromReadingOp
			e.opBits = 0
			e.opBitsLeft = 10
		}
	case eepromReadingOp:
		if !chipSelect {
			e.state = eepromStandby
			return
		}
		e.opBitsLeft--
		if dataIn {
			e.opBits |= 1 << e.opBitsLeft
		}
		if e.opBitsLeft > 0 {
			return
		}
		e.decodeOpcode()
	case eepromReadingData:
		if !chipSelect {
			e.writeEnabled = true
			e.state = eepromStandby
			return
		}
		e.dataBitsLeft--
		if dataIn {
			e.dataBits |= 1 << e.dataBitsLeft
		}
		if e.dataBitsLeft > 0 {
			return
		}
		e.commitWrite()
	case eepromSendingOutput:
		if !chipSelect {
			e.state = eepromStandby
			return
		}
		if e.readBitsLeft > 0 {
			e.readBitsLeft--
		}
		if e.readBitsLeft == 0 {
			e.state = eepromFinished
		}
	case eepromFinished:
		if !chipSelect {
			e.state = eepromStandby
		}
	}
}

func (e *mbc7EEPROM) decodeOpcode() {
	switch e.opBits & 0x0300 {
	case 0x0000:
		switch e.opBits & 0x00C0 {
		case 0x0000:
			e.writeEnabled = false
			e.state = eepromFinished
		case 0x0040:
			if e.writeEnabled {
				e.writeType = writeAll
				e.dataBits, e.dataBitsLeft = 0, 16
				e.state = eepromReadingData
			} else {
				e.state = eepromFinished
			}
		case 0x0080:
			if e.writeEnabled {
				e.memory = [256]byte{}
			}
			e.state = eepromFinished
		case 0x00C0:
			e.writeEnabled = true
			e.state = eepromFinished
		}
	case 0x0100:
		addr := uint8(e.opBits & 0x007F)
		if e.writeEnabled {
			e.writeType = writeSingle
			e.writeAddr = addr
			e.dataBits, e.dataBitsLeft = 0, 16
			e.state = eepromReadingData
		} else {
			e.state = eepromFinished
		}
	case 0x0200:
		addr := int(e.opBits&0x007F) * 2
		value := uint16(e.memory[addr])<<8 | uint16(e.memory[addr+1])
		e.readValue = value
		e.readBitsLeft = 16
		e.state = eepromSendingOutput
	case 0x0300:
		addr := int(e.opBits&0x007F) * 2
		if e.writeEnabled {
			e.memory[addr], e.memory[addr+1] = 0, 0
		}
		e.state = eepromFinished
	}
}

func (e *mbc7EEPROM) commitWrite() {
	high, low := byte(e.dataBits>>8), byte(e.dataBits)
	switch e.writeType {
	case writeSingle:
		addr := int(e.writeAddr) * 2
		e.memory[addr], e.memory[addr+1] = high, low
	case writeAll:
		for i := 0; i+1 < len(e.memory); i += 2 {
			e.memory[i], e.memory[i+1] = high, low
		}
	}
	e.state = eepromFinished
}

// mbc7Accel models the two-axis accelerometer latch registers read at
// 0xA020/0xA030/0xA040/0xA050. Values center on 0x8000 with +/- deflection
// matching the +/-2G range Kirby Tilt 'n' Tumble expects.
type mbc7Accel struct {
	x, y     uint16
	latchedX uint16
	latchedY uint16
}

func newMBC7Accel() *mbc7Accel {
	return &mbc7Accel{x: 0x8000, y: 0x8000}
}

// SetTilt updates the raw axis values from a host input source (-1.0..1.0).
func (a *mbc7Accel) SetTilt(x, y float64) {
	a.x = uint16(0x8000 + int32(x*0x70))
	a.y = uint16(0x8000 + int32(y*0x70))
}

// MBC7 combines ROM banking, the 93LC56 EEPROM, and the tilt sensor.
type MBC7 struct {
	rom     []byte
	romBank uint16 // 8 bits used

	ramEnabled bool
	ramEnable2 bool // MBC7 gates the accelerometer/EEPROM behind two enables

	eeprom *mbc7EEPROM
	accel  *mbc7Accel
}

func NewMBC7(rom []byte) *MBC7 {
	return &MBC7{rom: rom, romBank: 1, eeprom: newMBC7EEPROM(), accel: newMBC7Accel()}
}

// SetTilt forwards host accelerometer/tilt input to the cartridge sensor.
func (m *MBC7) SetTilt(x, y float64) { m.accel.SetTilt(x, y) }

func (m *MBC7) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank)
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || !m.ramEnable2 {
			return 0xFF
		}
		reg := (addr - 0xA000) & 0x00FF
		switch {
		case reg == 0x20:
			return byte(m.accel.latchedX)
		case reg == 0x21:
			return byte(m.accel.latchedX >> 8)
		case reg == 0x30:
			return byte(m.accel.latchedY)
		case reg == 0x31:
			return byte(m.accel.latchedY >> 8)
		case reg == 0x40:
			return 0x00
		case reg == 0x50:
			return 0x01
		case reg >= 0x80:
			return m.eeprom.handleRead()
		default:
			return 0xFF
		}
	default:
		return 0xFF
	}
}

func (m *MBC7) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x3000:
		bank := value
		if bank == 0 {
			bank = 1
		}
		m.romBank = uint16(bank)
	case addr < 0x4000:
		m.ramEnable2 = (value & 0x0F) == 0x40
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		reg := (addr - 0xA000) & 0x00FF
		switch {
		case reg == 0x20 || reg == 0x30:
			m.accel.latchedX, m.accel.latchedY = m.accel.x, m.accel.y
		case reg >= 0x80:
			m.eeprom.handleWrite(value)
		}
	}
}

func (m *MBC7) SaveRAM() []byte {
	out := make([]byte, len(m.eeprom.memory))
	copy(out, m.eeprom.memory[:])
	return out
}

func (m *MBC7) LoadRAM(data []byte) {
	if len(data) == 0 {
		return
	}
	copy(m.eeprom.memory[:], data)
}

type mbc7State struct {
	RomBank    uint16
	RamEnabled bool
	RamEnable2 bool
	Memory     [256]byte
	State      eepromState
	WriteEn    bool
	LastClock  bool
	OpBits     uint16
	OpBitsLeft uint8
	DataBits   uint16
	DataLeft   uint8
	WriteType  eepromWriteType
	WriteAddr  uint8
	ReadValue  uint16
	ReadLeft   uint8
}

func (m *MBC7) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc7State{
		RomBank: m.romBank, RamEnabled: m.ramEnabled, RamEnable2: m.ramEnable2,
		Memory: m.eeprom.memory, State: m.eeprom.state, WriteEn: m.eeprom.writeEnabled,
		LastClock: m.eeprom.lastClock, OpBits: m.eeprom.opBits, OpBitsLeft: m.eeprom.opBitsLeft,
		DataBits: m.eeprom.dataBits, DataLeft: m.eeprom.dataBitsLeft, WriteType: m.eeprom.writeType,
		WriteAddr: m.eeprom.writeAddr, ReadValue: m.eeprom.readValue, ReadLeft: m.eeprom.readBitsLeft,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC7) LoadState(data []byte) {
	var s mbc7State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	m.romBank, m.ramEnabled, m.ramEnable2 = s.RomBank, s.RamEnabled, s.RamEnable2
	e := m.eeprom
	e.memory, e.state, e.writeEnabled = s.Memory, s.State, s.WriteEn
	e.lastClock, e.opBits, e.opBitsLeft = s.LastClock, s.OpBits, s.OpBitsLeft
	e.dataBits, e.dataBitsLeft, e.writeType = s.DataBits, s.DataLeft, s.WriteType
	e.writeAddr, e.readValue, e.readBitsLeft = s.WriteAddr, s.ReadValue, s.ReadLeft
}
