// Package bus implements the Game Boy system memory map: it owns work RAM,
// high RAM, the interrupt registers, OAM DMA/CGB HDMA, and routes every
// other address to the cartridge, PPU, APU, timer or joypad component that
// owns it.
package bus

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/nullterm/gopherboy/internal/apu"
	"github.com/nullterm/gopherboy/internal/cart"
	"github.com/nullterm/gopherboy/internal/joypad"
	"github.com/nullterm/gopherboy/internal/ppu"
	"github.com/nullterm/gopherboy/internal/timer"
)

// Joypad select-bit masks for SetJoypadState.
const (
	JoypRight = 1 << iota
	JoypLeft
	JoypUp
	JoypDown
	JoypA
	JoypB
	JoypSelectBtn
	JoypStart
)

// bootState tracks which boot ROM (if any) is currently mapped over $0000.
type bootState int

const (
	bootDisabled bootState = iota
	bootDMG
	bootCGB
)

// Bus wires every addressable component together behind a single memory map.
type Bus struct {
	cart cart.Cartridge
	ppu  *ppu.PPU
	apu  *apu.APU
	tmr  *timer.Timer
	joyp *joypad.Joypad

	wram  [8][0x1000]byte // CGB: 8 switchable 4KB banks; DMG only ever uses banks 0/1
	svbk  byte
	hram  [0x7F]byte // 0xFF80-0xFFFE
	ie    byte
	ifReg byte

	bootROM    []byte // 256-byte DMG boot ROM, if configured
	cgbBootROM []byte // 2048-byte CGB boot ROM, if configured
	boot       bootState

	key1 byte // FF4D: CGB speed-switch register
	sb   byte // FF01
	sc   byte // FF02
	serialW io.Writer

	// CGB HDMA/GDMA
	hdmaSrc, hdmaDst uint16
	hdmaLen          byte
	hdmaActive       bool

	// OAM DMA ($FF46): dmaCyclesLeft counts down the transfer window: OAM
	// reads return 0xFF and writes are dropped until it reaches zero.
	dmaSrc         uint16
	dmaCyclesLeft  int
	dmaActive      bool

	cgbMode bool
}

// oamDMACycles is how long an OAM DMA transfer blocks OAM access for.
const oamDMACycles = 160

// gdmaCyclesPerBlock is the CPU stall per 16-byte block of a CGB
// general-purpose DMA transfer.
const gdmaCyclesPerBlock = 8

// New constructs a Bus for the given ROM image, picking the right cartridge
// mapper from its header.
func New(rom []byte) *Bus {
	b := &Bus{cart: cart.NewCartridge(rom)}
	b.ppu = ppu.New(func(bit int) { b.ifReg |= 1 << uint(bit) })
	b.apu = apu.New(48000)
	b.tmr = timer.New()
	b.tmr.RequestInterrupt = func() { b.ifReg |= 1 << 2 }
	b.tmr.FrameSeqEdge = func() { b.apu.ClockFrameSequencer() }
	b.joyp = joypad.New()
	b.joyp.RequestInterrupt = func() { b.ifReg |= 1 << 4 }
	b.svbk = 1
	return b
}

func (b *Bus) Cart() cart.Cartridge { return b.cart }
func (b *Bus) PPU() *ppu.PPU        { return b.ppu }
func (b *Bus) APU() *apu.APU        { return b.apu }

// SetBootROM installs (or clears, if data is empty) the DMG boot ROM image.
func (b *Bus) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
	} else {
		b.bootROM = nil
	}
}

// SetCGBBootROM installs (or clears) the 2KB CGB boot ROM image.
func (b *Bus) SetCGBBootROM(data []byte) {
	if len(data) >= 0x800 {
		b.cgbBootROM = make([]byte, 0x800)
		copy(b.cgbBootROM, data[:0x800])
	} else {
		b.cgbBootROM = nil
	}
}

// EnableBoot selects which boot ROM (0=none, 1=DMG, 2=CGB) is mapped at
// $0000 for the next reset.
func (b *Bus) EnableBoot(which int) {
	switch which {
	case 1:
		b.boot = bootDMG
	case 2:
		b.boot = bootCGB
	default:
		b.boot = bootDisabled
	}
}

// SetCGBMode toggles CGB hardware (VRAM/WRAM banking, CRAM palettes).
func (b *Bus) SetCGBMode(on bool) {
	b.cgbMode = on
	b.ppu.SetCGBMode(on)
}

// SetSerialWriter routes completed serial transfers (one byte per SC=$81
// write) to w, e.g. for link-cable logging or test-ROM output capture.
func (b *Bus) SetSerialWriter(w io.Writer) { b.serialW = w }

// SetJoypadState replaces the full button state from a JoypXxx bitmask.
func (b *Bus) SetJoypadState(mask byte) {
	b.joyp.SetButtons(joypad.Buttons{
		Right:  mask&JoypRight != 0,
		Left:   mask&JoypLeft != 0,
		Up:     mask&JoypUp != 0,
		Down:   mask&JoypDown != 0,
		A:      mask&JoypA != 0,
		B:      mask&JoypB != 0,
		Select: mask&JoypSelectBtn != 0,
		Start:  mask&JoypStart != 0,
	})
}

func (b *Bus) wramBank(addr uint16) *[0x1000]byte {
	if addr < 0xD000 {
		return &b.wram[0]
	}
	bank := b.svbk & 0x07
	if bank == 0 {
		bank = 1
	}
	if !b.cgbMode {
		bank = 1
	}
	return &b.wram[bank]
}

func (b *Bus) Read(addr uint16) byte {
	switch {
	case b.boot == bootDMG && addr < 0x100:
		return b.bootROM[addr]
	case b.boot == bootCGB && addr < 0x100:
		return b.cgbBootROM[addr]
	case b.boot == bootCGB && addr >= 0x200 && addr < 0x900:
		return b.cgbBootROM[addr-0x100]
	case addr < 0x8000:
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xCFFF:
		return b.wram[0][addr-0xC000]
	case addr >= 0xD000 && addr <= 0xDFFF:
		return b.wramBank(addr)[addr-0xD000]
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.Read(addr - 0x2000)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return b.ppu.CPURead(addr)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		return 0xFF // prohibited area
	case addr == 0xFF00:
		return b.joyp.Read()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return b.sc | 0x7E
	case addr == 0xFF04:
		return b.tmr.ReadDIV()
	case addr == 0xFF05:
		return b.tmr.ReadTIMA()
	case addr == 0xFF06:
		return b.tmr.ReadTMA()
	case addr == 0xFF07:
		return b.tmr.ReadTAC()
	case addr == 0xFF0F:
		return 0xE0 | b.ifReg
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF4D:
		return b.key1 | 0x7E
	case addr == 0xFF4F:
		return b.ppu.CPURead(addr)
	case addr == 0xFF50:
		return 0xFF
	case addr >= 0xFF51 && addr <= 0xFF55:
		return b.hdmaRead(addr)
	case addr >= 0xFF68 && addr <= 0xFF6B:
		return b.ppu.CPURead(addr)
	case addr == 0xFF70:
		return 0xF8 | b.svbk
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr == 0xFFFF:
		return b.ie
	default:
		return 0xFF
	}
}

func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xCFFF:
		b.wram[0][addr-0xC000] = value
	case addr >= 0xD000 && addr <= 0xDFFF:
		b.wramBank(addr)[addr-0xD000] = value
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.Write(addr-0x2000, value)
	case addr >= 0xFE00 && addr <= 0xFE9F:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xFEA0 && addr <= 0xFEFF:
		// prohibited area, writes ignored
	case addr == 0xFF00:
		b.joyp.Write(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if value&0x80 != 0 {
			if b.serialW != nil {
				_, _ = b.serialW.Write([]byte{b.sb})
			}
			b.sb = 0xFF
			b.sc &^= 0x80
			b.ifReg |= 1 << 3
		}
	case addr == 0xFF04:
		b.tmr.WriteDIV(value)
	case addr == 0xFF05:
		b.tmr.WriteTIMA(value)
	case addr == 0xFF06:
		b.tmr.WriteTMA(value)
	case addr == 0xFF07:
		b.tmr.WriteTAC(value)
	case addr == 0xFF0F:
		b.ifReg = value & 0x1F
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.oamDMA(value)
	case addr >= 0xFF40 && addr <= 0xFF4B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF4D:
		b.key1 = (b.key1 & 0x80) | (value & 0x01)
	case addr == 0xFF4F:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF50:
		if value != 0 {
			b.boot = bootDisabled
		}
	case addr >= 0xFF51 && addr <= 0xFF55:
		b.hdmaWrite(addr, value)
	case addr >= 0xFF68 && addr <= 0xFF6B:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF70:
		b.svbk = value & 0x07
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr == 0xFFFF:
		b.ie = value
	}
}

// oamDMA arms the classic $FF46 OAM DMA transfer. The copy itself happens
// once oamDMACycles worth of Tick calls have elapsed (see advanceDMA); for
// the duration OAM reads return 0xFF and writes are dropped, matching real
// hardware's CPU-only-sees-HRAM restriction during the transfer window.
func (b *Bus) oamDMA(hi byte) {
	b.dmaSrc = uint16(hi) << 8
	b.dmaCyclesLeft = oamDMACycles
	b.dmaActive = true
	b.ppu.SetOAMDMABlocked(true)
}

// advanceDMA counts down an in-progress OAM DMA transfer and performs the
// actual byte copy once its window has elapsed.
func (b *Bus) advanceDMA(cycles int) {
	if !b.dmaActive {
		return
	}
	b.dmaCyclesLeft -= cycles
	if b.dmaCyclesLeft > 0 {
		return
	}
	for i := uint16(0); i < 0xA0; i++ {
		b.ppu.WriteOAMDMAByte(i, b.Read(b.dmaSrc+i))
	}
	b.dmaActive = false
	b.ppu.SetOAMDMABlocked(false)
}

func (b *Bus) hdmaRead(addr uint16) byte {
	if addr == 0xFF55 {
		if b.hdmaActive {
			return b.hdmaLen
		}
		return 0xFF
	}
	return 0xFF
}

// hdmaWrite handles CGB general-purpose and H-Blank DMA. H-Blank DMA copies
// one 16-byte block per H-Blank in real hardware; this model still performs
// that transfer in one shot (a simplification noted in the design ledger --
// it matches end state for titles that don't depend on mid-transfer VRAM
// timing). General-purpose DMA, by contrast, genuinely halts the CPU for
// the whole transfer on real hardware, so that case stalls every other
// cycle-driven component forward by the transfer's length before returning.
func (b *Bus) hdmaWrite(addr uint16, value byte) {
	switch addr {
	case 0xFF51:
		b.hdmaSrc = (b.hdmaSrc & 0x00FF) | (uint16(value) << 8)
	case 0xFF52:
		b.hdmaSrc = (b.hdmaSrc & 0xFF00) | uint16(value&0xF0)
	case 0xFF53:
		b.hdmaDst = (b.hdmaDst & 0x00FF) | (uint16(value&0x1F) << 8)
	case 0xFF54:
		b.hdmaDst = (b.hdmaDst & 0xFF00) | uint16(value&0xF0)
	case 0xFF55:
		blocks := uint16(value&0x7F) + 1
		length := blocks * 16
		dst := 0x8000 + (b.hdmaDst & 0x1FFF)
		for i := uint16(0); i < length; i++ {
			b.ppu.CPUWrite(dst+i, b.Read(b.hdmaSrc+i))
		}
		b.hdmaSrc += length
		b.hdmaDst += length
		b.hdmaLen = 0xFF
		b.hdmaActive = false
		if value&0x80 == 0 {
			b.Tick(int(blocks) * gdmaCyclesPerBlock)
		}
	}
}

// Tick advances every cycle-driven component by the given number of
// T-cycles: the timer (and through it, the APU's frame sequencer), the PPU,
// the APU's sample generator, and any cartridge real-time clock.
func (b *Bus) Tick(cycles int) {
	b.tmr.Tick(cycles)
	b.ppu.Tick(cycles)
	b.apu.Tick(cycles)
	if rtc, ok := b.cart.(cart.RTCCartridge); ok {
		rtc.TickRTC(cycles)
	}
	b.advanceDMA(cycles)
}

type busState struct {
	WRAM    [8][0x1000]byte
	SVBK    byte
	HRAM    [0x7F]byte
	IE      byte
	IF      byte
	Boot    bootState
	Key1    byte
	SB, SC  byte
	CGBMode bool

	HDMASrc, HDMADst           uint16
	HDMALen                    byte
	HDMAActive                 bool
	DMASrc                     uint16
	DMACyclesLeft              int
	DMAActive                  bool

	Cart  []byte
	PPU   []byte
	APU   []byte
	Timer []byte
	Joyp  []byte
}

// SaveState serializes the full system state: RAM/registers owned directly
// by the bus, plus each component's own SaveState blob.
func (b *Bus) SaveState() []byte {
	var buf bytes.Buffer
	s := busState{
		WRAM: b.wram, SVBK: b.svbk, HRAM: b.hram,
		IE: b.ie, IF: b.ifReg, Boot: b.boot, Key1: b.key1,
		SB: b.sb, SC: b.sc, CGBMode: b.cgbMode,
		HDMASrc: b.hdmaSrc, HDMADst: b.hdmaDst, HDMALen: b.hdmaLen, HDMAActive: b.hdmaActive,
		DMASrc: b.dmaSrc, DMACyclesLeft: b.dmaCyclesLeft, DMAActive: b.dmaActive,
		Cart: b.cart.SaveState(), PPU: b.ppu.SaveState(),
		APU: b.apu.SaveState(), Timer: b.tmr.SaveState(), Joyp: b.joyp.SaveState(),
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (b *Bus) LoadState(data []byte) {
	var s busState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	b.wram, b.svbk, b.hram = s.WRAM, s.SVBK, s.HRAM
	b.ie, b.ifReg, b.boot, b.key1 = s.IE, s.IF, s.Boot, s.Key1
	b.sb, b.sc, b.cgbMode = s.SB, s.SC, s.CGBMode
	b.hdmaSrc, b.hdmaDst, b.hdmaLen, b.hdmaActive = s.HDMASrc, s.HDMADst, s.HDMALen, s.HDMAActive
	b.dmaSrc, b.dmaCyclesLeft, b.dmaActive = s.DMASrc, s.DMACyclesLeft, s.DMAActive
	b.cart.LoadState(s.Cart)
	b.ppu.LoadState(s.PPU)
	b.apu.LoadState(s.APU)
	b.tmr.LoadState(s.Timer)
	b.joyp.LoadState(s.Joyp)
	b.ppu.SetOAMDMABlocked(b.dmaActive)
}
