package ppu

// bgRowCache avoids redecoding the same tile's 8-pixel row once per output
// column. composeBackground walks a scanline left to right, and a BG/window
// tile only changes once every 8 columns (barring the one partial tile at
// the very start introduced by SCX/WX), so a single cached row keyed on the
// tile's decoded identity is enough to skip the repeat VRAM reads.
type bgRowCache struct {
	valid   bool
	bank    int
	tileIdx byte
	signed  bool
	fineY   int
	row     [8]byte
}

// lookup returns the color index for fineX, decoding a fresh row via mem
// only when the requested tile differs from what's cached.
func (c *bgRowCache) lookup(mem VRAMReader, bank int, tileIdx byte, signedAddressing bool, fineX, fineY int) byte {
	if !c.valid || c.bank != bank || c.tileIdx != tileIdx || c.signed != signedAddressing || c.fineY != fineY {
		c.row = FetchTileRow(mem, tileIdx, signedAddressing, fineY)
		c.bank, c.tileIdx, c.signed, c.fineY, c.valid = bank, tileIdx, signedAddressing, fineY, true
	}
	return c.row[fineX]
}
