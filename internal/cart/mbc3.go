package cart

import (
	"bytes"
	"encoding/gob"
	"time"
)

// gbCPUHz is the Game Boy master clock rate. Treating one real second as
// this many elapsed T-cycles is accurate enough to keep the RTC in step
// with gameplay, and mirrors how jgb-core folds elapsed wall-clock time
// into the clock on load rather than driving it off a separate crystal.
const gbCPUHz = 4194304

// rtcRegs mirrors the five latched RTC registers exposed at 0xA000-0xBFFF
// when a bank-select write of 0x08-0x0C is in effect.
type rtcRegs struct {
	Seconds byte
	Minutes byte
	Hours   byte
	DayLow  byte // low 8 bits of the 9-bit day counter
	DayHigh byte // bit0: day bit8, bit6: halt, bit7: day-carry
}

func (r *rtcRegs) halted() bool { return r.DayHigh&0x40 != 0 }

func (r *rtcRegs) advanceSeconds(n int64) {
	if r.halted() || n <= 0 {
		return
	}
	total := int64(r.Seconds) + n
	r.Seconds = byte(total % 60)
	minutes := int64(r.Minutes) + total/60
	r.Minutes = byte(minutes % 60)
	hours := int64(r.Hours) + minutes/60
	r.Hours = byte(hours % 24)
	day := int64(r.DayLow) | int64(r.DayHigh&0x01)<<8
	day += hours / 24
	if day > 0x1FF {
		r.DayHigh |= 0x80
		day &= 0x1FF
	}
	r.DayLow = byte(day)
	r.DayHigh = (r.DayHigh &^ 0x01) | byte((day>>8)&0x01)
}

// MBC3 implements ROM/RAM banking plus the MBC3 real-time clock. Banking:
//   - 0000-1FFF: RAM/RTC enable (0x0A in low nibble)
//   - 2000-3FFF: ROM bank, 7 bits (0 maps to 1)
//   - 4000-5FFF: RAM bank 0-3, or RTC register select 0x08-0x0C
//   - 6000-7FFF: latch clock (0x00 then 0x01 copies live regs to latched)
//   - A000-BFFF: RAM window, or the latched RTC register when 0x08-0x0C
//     is selected
type MBC3 struct {
	rom []byte
	ram []byte

	ramEnabled bool
	romBank    byte
	bankSelect byte // 0..3 -> RAM bank, 0x08..0x0C -> RTC register

	rtc          rtcRegs
	rtcLatched   rtcRegs
	latchPrev    byte
	hasRTC       bool
	rtcSubCycles int64
}

func NewMBC3(rom []byte, ramSize int) *MBC3 {
	m := &MBC3{rom: rom, romBank: 1}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	return m
}

// NewMBC3WithRTC is used by the cartridge factory for cart types that carry
// a real-time clock (0x0F, 0x10).
func NewMBC3WithRTC(rom []byte, ramSize int) *MBC3 {
	m := NewMBC3(rom, ramSize)
	m.hasRTC = true
	return m
}

func (m *MBC3) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		if int(addr) < len(m.rom) {
			return m.rom[addr]
		}
		return 0xFF
	case addr < 0x8000:
		bank := int(m.romBank & 0x7F)
		if bank == 0 {
			bank = 1
		}
		off := bank*0x4000 + int(addr-0x4000)
		if off >= 0 && off < len(m.rom) {
			return m.rom[off]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.hasRTC && m.bankSelect >= 0x08 && m.bankSelect <= 0x0C {
			return m.readLatchedRTC()
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		rb := int(m.bankSelect & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC3) readLatchedRTC() byte {
	switch m.bankSelect {
	case 0x08:
		return m.rtcLatched.Seconds
	case 0x09:
		return m.rtcLatched.Minutes
	case 0x0A:
		return m.rtcLatched.Hours
	case 0x0B:
		return m.rtcLatched.DayLow
	case 0x0C:
		return m.rtcLatched.DayHigh
	default:
		return 0xFF
	}
}

func (m *MBC3) writeRTC(value byte) {
	switch m.bankSelect {
	case 0x08:
		m.rtc.Seconds = value % 60
	case 0x09:
		m.rtc.Minutes = value % 60
	case 0x0A:
		m.rtc.Hours = value % 24
	case 0x0B:
		m.rtc.DayLow = value
	case 0x0C:
		m.rtc.DayHigh = value & 0xC1
	}
}

func (m *MBC3) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr < 0x4000:
		v := value & 0x7F
		if v == 0 {
			v = 1
		}
		m.romBank = v
	case addr < 0x6000:
		if m.hasRTC && value >= 0x08 && value <= 0x0C {
			m.bankSelect = value
		} else {
			m.bankSelect = value & 0x03
		}
	case addr < 0x8000:
		if m.hasRTC && m.latchPrev == 0x00 && value == 0x01 {
			m.rtcLatched = m.rtc
		}
		m.latchPrev = value
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return
		}
		if m.hasRTC && m.bankSelect >= 0x08 && m.bankSelect <= 0x0C {
			m.writeRTC(value)
			return
		}
		if len(m.ram) == 0 {
			return
		}
		rb := int(m.bankSelect & 0x03)
		off := rb*0x2000 + int(addr-0xA000)
		if off >= 0 && off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// TickRTC advances the free-running clock by the given number of T-cycles.
// The bus calls this every step so the clock keeps pace with emulated time
// regardless of host speed.
func (m *MBC3) TickRTC(cycles int) {
	if !m.hasRTC {
		return
	}
	m.rtcSubCycles += int64(cycles)
	if m.rtcSubCycles >= gbCPUHz {
		seconds := m.rtcSubCycles / gbCPUHz
		m.rtcSubCycles %= gbCPUHz
		m.rtc.advanceSeconds(seconds)
	}
}

func (m *MBC3) SaveRAM() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC3) LoadRAM(data []byte) {
	if len(m.ram) == 0 || len(data) == 0 {
		return
	}
	n := len(m.ram)
	if n > len(data) {
		n = len(data)
	}
	copy(m.ram, data[:n])
}

// rtcBlob is the on-disk RTC record persisted alongside battery RAM: the
// five register bytes plus the Unix timestamp of the save, so elapsed
// wall-clock time can be folded back in on the next load.
type rtcBlob struct {
	Regs       rtcRegs
	SavedAtUTC int64
}

// nowUnix returns the current Unix time; overridable in tests.
var nowUnix = func() int64 { return time.Now().Unix() }

func (m *MBC3) SaveRTC() []byte {
	if !m.hasRTC {
		return nil
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(rtcBlob{Regs: m.rtc, SavedAtUTC: nowUnix()})
	return buf.Bytes()
}

// LoadRTC restores the clock from a saved blob and advances it by the
// elapsed wall-clock time since the save, unless the clock was halted.
func (m *MBC3) LoadRTC(data []byte) {
	if !m.hasRTC || len(data) == 0 {
		return
	}
	var b rtcBlob
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return
	}
	m.rtc = b.Regs
	m.rtcLatched = b.Regs
	if b.SavedAtUTC > 0 {
		m.rtc.advanceSeconds(nowUnix() - b.SavedAtUTC)
	}
}

type mbc3State struct {
	RAM         []byte
	RamEnabled  bool
	RomBank     byte
	BankSelect  byte
	RTC         rtcRegs
	RTCLatched  rtcRegs
	LatchPrev   byte
	RTCSubCycle int64
}

func (m *MBC3) SaveState() []byte {
	var buf bytes.Buffer
	s := mbc3State{
		RAM: append([]byte(nil), m.ram...), RamEnabled: m.ramEnabled,
		RomBank: m.romBank, BankSelect: m.bankSelect,
		RTC: m.rtc, RTCLatched: m.rtcLatched, LatchPrev: m.latchPrev,
		RTCSubCycle: m.rtcSubCycles,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (m *MBC3) LoadState(data []byte) {
	var s mbc3State
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	if len(m.ram) > 0 && len(s.RAM) > 0 {
		copy(m.ram, s.RAM)
	}
	m.ramEnabled, m.romBank, m.bankSelect = s.RamEnabled, s.RomBank, s.BankSelect
	m.rtc, m.rtcLatched, m.latchPrev = s.RTC, s.RTCLatched, s.LatchPrev
	m.rtcSubCycles = s.RTCSubCycle
}
