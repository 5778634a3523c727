package ppu

// spriteEntry is one decoded OAM entry, used only during scanline sprite
// evaluation; it is not part of the PPU's persisted state.
type spriteEntry struct {
	y, x     int
	tile     byte
	attr     byte
	oamIndex int
}

// renderScanline draws one full 160-pixel row into the framebuffer. It
// runs once per line, right as the PPU enters mode 3 for that line --
// real hardware streams pixels out through mode 3 via a fetcher/FIFO, but
// computing the whole line at once from the same register snapshot
// produces an identical pixel result for the vast majority of games,
// which don't rewrite scroll/palette registers mid-scanline.
func (p *PPU) renderScanline(ly byte) {
	if ly >= 144 {
		return
	}
	regs := p.lineRegs[ly]

	bgLine := p.composeBackground(ly, regs)
	p.compositeSprites(ly, regs, bgLine)
}

// bgPixel carries the color plus the attribute bits later needed to
// resolve sprite-vs-background priority.
type bgPixel struct {
	colorIdx byte // 0-3, raw tile color before palette lookup
	r, g, b  byte
	priority bool // CGB BG-to-OBJ priority attribute
}

func (p *PPU) composeBackground(ly byte, regs LineRegs) [160]bgPixel {
	var line [160]bgPixel

	bgTileMapBase := uint16(0x9800)
	if regs.LCDC&0x08 != 0 {
		bgTileMapBase = 0x9C00
	}
	winTileMapBase := uint16(0x9800)
	if regs.LCDC&0x40 != 0 {
		winTileMapBase = 0x9C00
	}
	signedAddressing := regs.LCDC&0x10 == 0

	windowEnabled := regs.LCDC&0x20 != 0 && regs.WX <= 166 && ly >= regs.WY
	drawBG := p.cgbMode || regs.LCDC&0x01 != 0

	var rowCache bgRowCache

	for x := 0; x < 160; x++ {
		var tileMapBase uint16
		var tx, ty int
		isWindow := windowEnabled && int(regs.WX)-7 <= x
		if isWindow {
			tileMapBase = winTileMapBase
			wx := x - (int(regs.WX) - 7)
			tx, ty = wx/8, int(regs.WinLine)/8
		} else {
			if !drawBG {
				line[x] = bgPixel{}
				continue
			}
			tileMapBase = bgTileMapBase
			px := (x + int(regs.SCX)) & 0xFF
			py := (int(ly) + int(regs.SCY)) & 0xFF
			tx, ty = px/8, py/8
		}

		mapAddr := tileMapBase + uint16(ty*32+tx)
		tileIdx := p.RawVRAMBank(0, mapAddr)
		attr := byte(0)
		if p.cgbMode {
			attr = p.RawVRAMBank(1, mapAddr)
		}

		var fineX, fineY int
		if isWindow {
			fineX = (x - (int(regs.WX) - 7)) % 8
			fineY = int(regs.WinLine) % 8
		} else {
			fineX = (x + int(regs.SCX)) % 8
			fineY = (int(ly) + int(regs.SCY)) % 8
		}
		if attr&0x40 != 0 { // Y flip
			fineY = 7 - fineY
		}
		if attr&0x20 != 0 { // X flip
			fineX = 7 - fineX
		}

		tileDataBank := 0
		if attr&0x08 != 0 {
			tileDataBank = 1
		}
		colorIdx := rowCache.lookup(vramBankView{p: p, bank: tileDataBank}, tileDataBank, tileIdx, signedAddressing, fineX, fineY)

		var r, g, b byte
		if p.cgbMode {
			r, g, b = p.BGColorRGB(attr&0x07, colorIdx)
		} else {
			shade := (regs.BGP >> (colorIdx * 2)) & 0x03
			r, g, b = p.DMGColorRGB(shade)
		}
		line[x] = bgPixel{colorIdx: colorIdx, r: r, g: g, b: b, priority: attr&0x80 != 0}
		p.setPixel(x, int(ly), r, g, b)
	}
	return line
}

// vramBankView adapts one VRAM bank of a live PPU to the VRAMReader
// interface the tile fetcher operates on.
type vramBankView struct {
	p    *PPU
	bank int
}

func (v vramBankView) Read(addr uint16) byte { return v.p.RawVRAMBank(v.bank, addr) }

// tilePixel fetches one pixel's 2-bit color index out of 2bpp tile data,
// via the same row decode the fetcher uses for mode-3 FIFO filling.
func (p *PPU) tilePixel(bank int, tileIdx byte, signedAddressing bool, fineX, fineY int) byte {
	row := FetchTileRow(vramBankView{p: p, bank: bank}, tileIdx, signedAddressing, fineY)
	return row[fineX]
}

func (p *PPU) compositeSprites(ly byte, regs LineRegs, bg [160]bgPixel) {
	if regs.LCDC&0x02 == 0 {
		return
	}
	height := 8
	if regs.LCDC&0x04 != 0 {
		height = 16
	}

	var found []spriteEntry
	for i := 0; i < 40 && len(found) < 10; i++ {
		base := i * 4
		y := int(p.oam[base]) - 16
		if int(ly) < y || int(ly) >= y+height {
			continue
		}
		found = append(found, spriteEntry{
			y: y, x: int(p.oam[base+1]) - 8,
			tile: p.oam[base+2], attr: p.oam[base+3], oamIndex: i,
		})
	}

	// Draw order: the lowest-priority sprite first so higher-priority
	// sprites overwrite it. DMG priority is by X (smaller wins), tied by
	// OAM index; CGB priority is purely OAM index order.
	less := func(a, b spriteEntry) bool {
		if !p.cgbMode && a.x != b.x {
			return a.x < b.x
		}
		return a.oamIndex < b.oamIndex
	}
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && less(found[j], found[j-1]); j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
	for i, j := 0, len(found)-1; i < j; i, j = i+1, j-1 {
		found[i], found[j] = found[j], found[i]
	}

	for _, s := range found {
		tile := s.tile
		row := int(ly) - s.y
		if height == 16 {
			tile &^= 0x01
		}
		if s.attr&0x40 != 0 {
			row = height - 1 - row
		}
		bank := 0
		if p.cgbMode && s.attr&0x08 != 0 {
			bank = 1
		}
		tileIdx := tile
		rowInTile := row
		if height == 16 && row >= 8 {
			tileIdx++
			rowInTile -= 8
		}
		for col := 0; col < 8; col++ {
			sx := s.x + col
			if sx < 0 || sx >= 160 {
				continue
			}
			fineX := col
			if s.attr&0x20 != 0 {
				fineX = 7 - col
			}
			colorIdx := p.tilePixel(bank, tileIdx, false, fineX, rowInTile)
			if colorIdx == 0 {
				continue // transparent
			}
			bgPix := bg[sx]
			if p.spriteHiddenByBG(s.attr, bgPix) {
				continue
			}
			var r, g, b byte
			if p.cgbMode {
				r, g, b = p.OBJColorRGB(s.attr&0x07, colorIdx)
			} else {
				obp := regs.OBP0
				if s.attr&0x10 != 0 {
					obp = regs.OBP1
				}
				shade := (obp >> (colorIdx * 2)) & 0x03
				r, g, b = p.DMGColorRGB(shade)
			}
			p.setPixel(sx, int(ly), r, g, b)
		}
	}
}

// spriteHiddenByBG applies the OBJ-to-BG and (CGB) BG-to-OBJ priority
// rules: a nonzero BG pixel can hide a sprite either because the sprite's
// own OBJ-priority bit asks for it, or -- on CGB, when master priority
// (LCDC bit0) is set -- because the BG tile attribute's own priority bit
// asks for it.
func (p *PPU) spriteHiddenByBG(attr byte, bg bgPixel) bool {
	if bg.colorIdx == 0 {
		return false
	}
	if p.cgbMode && bg.priority {
		return true
	}
	return attr&0x80 != 0
}

func (p *PPU) setPixel(x, y int, r, g, b byte) {
	off := (y*160 + x) * 4
	p.fb[off] = r
	p.fb[off+1] = g
	p.fb[off+2] = b
	p.fb[off+3] = 0xFF
}
