package ppu

import "testing"

// Tests for the per-scanline BG/window/sprite compositor: CGB tile
// attributes (palette, flips, bank), and sprite priority/tie-breaking.

func TestComposeBackgroundCGBAttrsFlipsBankPalette(t *testing.T) {
	p := New(func(int) {})
	p.SetCGBMode(true)

	// Tile 1, row 0 in bank0 (unused once y-flip selects row 7).
	p.vram[0x0010+0] = 0xF0
	p.vram[0x0010+1] = 0x00
	// Same tile, row 7 in bank1 -- this is what y-flip should select.
	p.vram1[0x0010+14] = 0x0F
	p.vram1[0x0010+15] = 0x00
	// BG map at 0x9800: tile 1 at the first entry.
	p.vram[0x1800+0] = 0x01
	// Attributes live in bank1 at the same map address: bank=1, xflip,
	// yflip, palette=5, BG-to-OBJ priority.
	p.vram1[0x1800+0] = 0x80 | 0x40 | 0x20 | 0x10 | 0x05

	regs := LineRegs{LCDC: 0x91} // BG+window+LCD on, 0x9800 BG map, 0x8000 addressing
	line := p.composeBackground(0, regs)

	if !line[0].priority {
		t.Fatalf("expected BG-to-OBJ priority bit set")
	}
	if line[0].colorIdx == 0 {
		t.Fatalf("unexpected color index 0 with flipped bank-1 tile data")
	}
}

func TestComposeBackgroundWindowBasic(t *testing.T) {
	p := New(func(int) {})
	p.SetCGBMode(true)

	// Tile 2, row 0: solid color index 1 across the row.
	p.vram[0x0020+0] = 0xFF
	p.vram[0x0020+1] = 0x00
	p.vram[0x1800+0] = 0x02 // window map entry (attrs in bank1 at the same address default to 0)

	regs := LineRegs{LCDC: 0xB1, WX: 7, WY: 0, WinLine: 0} // window enabled, WX=7 -> visible from x=0
	line := p.composeBackground(0, regs)

	if line[0].colorIdx == 0 {
		t.Fatalf("expected nonzero window color index at x=0")
	}
}

func TestCompositeSpritesPriorityAndTransparency(t *testing.T) {
	p := New(func(int) {})

	// Sprite tile: single opaque leftmost pixel (bit 7 set in the low plane).
	p.vram[0] = 0x80
	p.vram[1] = 0x00
	p.oam[0], p.oam[1], p.oam[2], p.oam[3] = 5+16, 10+8, 0, 0 // y=5,x=10,tile=0,attr=0

	var bg [160]bgPixel
	regs := LineRegs{LCDC: 0x02} // sprites enabled, BG off
	p.compositeSprites(5, regs, bg)
	if r, g, b := p.fb[(5*160+10)*4], p.fb[(5*160+10)*4+1], p.fb[(5*160+10)*4+2]; r == 0 && g == 0 && b == 0 {
		t.Fatalf("expected a drawn sprite pixel at x=10, got black")
	}

	// Behind-BG sprite priority: a nonzero BG pixel must hide it.
	for i := range p.fb {
		p.fb[i] = 0
	}
	p.oam[3] = 1 << 7 // OBJ-to-BG priority bit
	bg[10] = bgPixel{colorIdx: 1}
	p.compositeSprites(5, regs, bg)
	if r, g, b := p.fb[(5*160+10)*4], p.fb[(5*160+10)*4+1], p.fb[(5*160+10)*4+2]; r != 0 || g != 0 || b != 0 {
		t.Fatalf("expected sprite pixel hidden behind BG, fb has (%d,%d,%d)", r, g, b)
	}
}

func TestCompositeSpritesDMGTieBreakerByX(t *testing.T) {
	p := New(func(int) {})

	// Solid opaque tile shared by both overlapping sprites.
	p.vram[0] = 0xFF
	p.vram[1] = 0x00
	// Sprite A: OAM index 5, X=19 (pixel column 19..26).
	p.oam[5*4+0], p.oam[5*4+1], p.oam[5*4+2], p.oam[5*4+3] = 16, 19+8, 0, 0
	// Sprite B: OAM index 3, X=20 (pixel column 20..27), overlapping at x=20.
	p.oam[3*4+0], p.oam[3*4+1], p.oam[3*4+2], p.oam[3*4+3] = 16, 20+8, 0, 0

	var bg [160]bgPixel
	regs := LineRegs{LCDC: 0x02}
	p.compositeSprites(0, regs, bg)

	// DMG priority picks the smaller X (sprite A, X=19); that sprite's
	// column 1 (x=20) must be what ends up on screen.
	if r, g, b := p.fb[20*4], p.fb[20*4+1], p.fb[20*4+2]; r == 0 && g == 0 && b == 0 {
		t.Fatalf("expected a drawn sprite pixel at x=20")
	}
}
