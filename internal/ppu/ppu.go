// Package ppu implements the Game Boy picture processing unit: the
// dot-based scanline/mode state machine, VRAM/OAM memory (with CGB
// banking and CRAM palettes), and the per-scanline pixel compositor.
package ppu

import (
	"bytes"
	"encoding/gob"
)

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT).
type InterruptRequester func(bit int)

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, palettes, and scanline timing.
type PPU struct {
	vram  [0x2000]byte // bank 0, 0x8000-0x9FFF
	vram1 [0x2000]byte // CGB bank 1
	oam   [0xA0]byte   // 0xFE00-0xFE9F
	vbk   byte         // FF4F: CGB VRAM bank select (bit0)

	bgPal         [64]byte // 8 palettes * 4 colors * 2 bytes (RGB555 little-endian)
	objPal        [64]byte
	bcps          byte // FF68
	ocps          byte // FF6A
	bgPalWritten  bool
	objPalWritten bool

	lcdc byte // FF40
	stat byte // FF41
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47
	obp0 byte // FF48
	obp1 byte // FF49
	wy   byte // FF4A
	wx   byte // FF4B

	dot int

	req InterruptRequester

	lineRegs [154]LineRegs

	winLineCounter byte

	cgbMode      bool
	dmgPal       int // index into dmgPaletteSchemes
	colorCorrect bool

	dmaOAMBlock bool // true while an owning Bus's OAM DMA transfer is in flight

	fb [160 * 144 * 4]byte // RGBA framebuffer, filled scanline by scanline
}

func New(req InterruptRequester) *PPU {
	p := &PPU{req: req, colorCorrect: true}
	for i := 0; i < 64; i += 2 {
		p.bgPal[i], p.bgPal[i+1] = 0xFF, 0x7F
		p.objPal[i], p.objPal[i+1] = 0xFF, 0x7F
	}
	return p
}

// SetCGBMode toggles CGB-specific register/VRAM-attribute behavior.
func (p *PPU) SetCGBMode(on bool) { p.cgbMode = on }

// SetDMGPalette selects one of the built-in DMG color schemes (see palette.go).
func (p *PPU) SetDMGPalette(id int) {
	if id < 0 || id >= len(dmgPaletteSchemes) {
		id = 0
	}
	p.dmgPal = id
}

// SetColorCorrection toggles the CGB gamma/mixing correction matrix used
// when decoding RGB555 CRAM colors for display.
func (p *PPU) SetColorCorrection(on bool) { p.colorCorrect = on }

// BGPalReady/OBJPalReady report whether the game has written at least one
// CGB background/object palette entry; used to decide whether a DMG-mode
// title needs a synthesized color palette at boot.
func (p *PPU) BGPalReady() bool  { return p.bgPalWritten }
func (p *PPU) OBJPalReady() bool { return p.objPalWritten }

// SetOAMDMABlocked marks whether an OAM DMA transfer currently owns OAM:
// while true, CPU reads of $FE00-$FE9F return 0xFF and writes are dropped,
// on top of the usual PPU-mode-based access restriction.
func (p *PPU) SetOAMDMABlocked(blocked bool) { p.dmaOAMBlock = blocked }

// WriteOAMDMAByte performs the DMA controller's own write into OAM, which
// (unlike a CPU access) is never subject to the PPU-mode or DMA-in-progress
// access restrictions.
func (p *PPU) WriteOAMDMAByte(offset uint16, value byte) {
	if offset < uint16(len(p.oam)) {
		p.oam[offset] = value
	}
}

// LineRegs represents the PPU-visible registers relevant for rendering a scanline.
type LineRegs struct {
	LCDC    byte
	SCY     byte
	SCX     byte
	BGP     byte
	OBP0    byte
	OBP1    byte
	WY      byte
	WX      byte
	WinLine byte
}

// passthroughReg returns a pointer to the backing field of registers whose
// read/write behavior is a plain byte store with no side effects. LCDC,
// STAT, LY, LYC and the CGB palette-index/data ports all need bespoke
// handling and are not part of this table.
func (p *PPU) passthroughReg(addr uint16) *byte {
	switch addr {
	case 0xFF42:
		return &p.scy
	case 0xFF43:
		return &p.scx
	case 0xFF47:
		return &p.bgp
	case 0xFF48:
		return &p.obp0
	case 0xFF49:
		return &p.obp1
	case 0xFF4A:
		return &p.wy
	case 0xFF4B:
		return &p.wx
	default:
		return nil
	}
}

func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		return p.activeVRAM()[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if p.dmaOAMBlock {
			return 0xFF
		}
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF4F:
		return 0xFE | (p.vbk & 0x01)
	case addr == 0xFF68:
		return 0x40 | (p.bcps & 0xBF)
	case addr == 0xFF69:
		return p.bgPal[p.bcps&0x3F]
	case addr == 0xFF6A:
		return 0x40 | (p.ocps & 0xBF)
	case addr == 0xFF6B:
		return p.objPal[p.ocps&0x3F]
	default:
		if r := p.passthroughReg(addr); r != nil {
			return *r
		}
		return 0xFF
	}
}

func (p *PPU) activeVRAM() *[0x2000]byte {
	if p.cgbMode && p.vbk&0x01 != 0 {
		return &p.vram1
	}
	return &p.vram
}

func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		p.activeVRAM()[addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if p.dmaOAMBlock {
			return
		}
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			p.ly = 0
			p.dot = 0
			p.winLineCounter = 0
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.winLineCounter = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF4F:
		p.vbk = value & 0x01
	case addr == 0xFF68:
		p.bcps = value & 0xBF
	case addr == 0xFF69:
		if (p.stat & 0x03) == 3 {
			return
		}
		idx := int(p.bcps & 0x3F)
		p.bgPal[idx] = value
		p.bgPalWritten = true
		if (p.bcps & 0x80) != 0 {
			p.bcps = (p.bcps & 0xC0) | byte((idx+1)&0x3F)
		}
	case addr == 0xFF6A:
		p.ocps = value & 0xBF
	case addr == 0xFF6B:
		if (p.stat & 0x03) == 3 {
			return
		}
		idx := int(p.ocps & 0x3F)
		p.objPal[idx] = value
		p.objPalWritten = true
		if (p.ocps & 0x80) != 0 {
			p.ocps = (p.ocps & 0xC0) | byte((idx+1)&0x3F)
		}
	default:
		if r := p.passthroughReg(addr); r != nil {
			*r = value
		}
	}
}

// Tick advances PPU state by the given number of dots (T-cycles).
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 {
			continue
		}
		p.dot++
		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		p.setMode(mode)

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				if p.req != nil {
					p.req(0)
				}
				if (p.stat&(1<<4)) != 0 && p.req != nil {
					p.req(1)
				}
			} else if p.ly > 153 {
				p.ly = 0
				p.winLineCounter = 0
			}
			p.updateLYC()
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
				windowVisible := (p.lcdc&0x20) != 0 && (p.lcdc&0x01) != 0 && p.ly >= p.wy && p.wx <= 166
				if windowVisible {
					if p.ly == p.wy {
						p.winLineCounter = 0
					} else if p.ly > p.wy {
						p.winLineCounter++
					}
				}
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0:
		if (p.stat&(1<<3)) != 0 && p.req != nil {
			p.req(1)
		}
	case 2:
		if (p.stat&(1<<5)) != 0 && p.req != nil {
			p.req(1)
		}
	case 3:
		p.captureLineRegs()
		p.renderScanline(p.ly)
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat&(1<<6)) != 0 && p.req != nil {
			p.req(1)
		}
	} else {
		p.stat &^= 1 << 2
	}
}

func (p *PPU) captureLineRegs() {
	if p.ly < 144 {
		p.lineRegs[p.ly] = LineRegs{
			LCDC: p.lcdc, SCY: p.scy, SCX: p.scx,
			BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
			WY: p.wy, WX: p.wx, WinLine: p.winLineCounter,
		}
	}
}

func (p *PPU) LineRegs(y int) LineRegs {
	if y < 0 || y >= len(p.lineRegs) {
		return LineRegs{}
	}
	return p.lineRegs[y]
}

func (p *PPU) RawVRAM(addr uint16) byte {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return p.vram[addr-0x8000]
	}
	return 0xFF
}

func (p *PPU) RawVRAMBank(bank int, addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	off := addr - 0x8000
	if bank == 0 {
		return p.vram[off]
	}
	return p.vram1[off]
}

func (p *PPU) RawOAM(addr uint16) byte {
	if addr >= 0xFE00 && addr <= 0xFE9F {
		return p.oam[addr-0xFE00]
	}
	return 0xFF
}

func (p *PPU) BGColorRGB(palIdx, colorIdx byte) (r, g, b byte) {
	pi := int(palIdx&7)*8 + int(colorIdx&3)*2
	return p.decodeColor(p.bgPal[pi], p.bgPal[pi+1])
}

func (p *PPU) OBJColorRGB(palIdx, colorIdx byte) (r, g, b byte) {
	pi := int(palIdx&7)*8 + int(colorIdx&3)*2
	return p.decodeColor(p.objPal[pi], p.objPal[pi+1])
}

func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }

// Framebuffer returns the current RGBA 160x144 pixel buffer.
func (p *PPU) Framebuffer() []byte { return p.fb[:] }

type ppuState struct {
	VRAM, VRAM1                 [0x2000]byte
	OAM                         [0xA0]byte
	VBK                         byte
	BGPal, OBJPal               [64]byte
	BCPS, OCPS                  byte
	BGPalWritten, OBJPalWritten bool
	LCDC, STAT, SCY, SCX, LY    byte
	LYC, BGP, OBP0, OBP1        byte
	WY, WX                      byte
	DOT                         int
	LineRegs                    [154]LineRegs
	WinLine                     byte
	CGBMode                     bool
	DMGPal                      int
	ColorCorrect                bool
	FB                          [160 * 144 * 4]byte
}

func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	s := ppuState{
		VRAM: p.vram, VRAM1: p.vram1, OAM: p.oam, VBK: p.vbk,
		BGPal: p.bgPal, OBJPal: p.objPal, BCPS: p.bcps, OCPS: p.ocps,
		BGPalWritten: p.bgPalWritten, OBJPalWritten: p.objPalWritten,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		DOT: p.dot, LineRegs: p.lineRegs, WinLine: p.winLineCounter,
		CGBMode: p.cgbMode, DMGPal: p.dmgPal, ColorCorrect: p.colorCorrect, FB: p.fb,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s ppuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.vram, p.vram1, p.oam, p.vbk = s.VRAM, s.VRAM1, s.OAM, s.VBK
	p.bgPal, p.objPal, p.bcps, p.ocps = s.BGPal, s.OBJPal, s.BCPS, s.OCPS
	p.bgPalWritten, p.objPalWritten = s.BGPalWritten, s.OBJPalWritten
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.dot, p.lineRegs, p.winLineCounter = s.DOT, s.LineRegs, s.WinLine
	p.cgbMode, p.dmgPal, p.colorCorrect, p.fb = s.CGBMode, s.DMGPal, s.ColorCorrect, s.FB
}
