package ppu

// VRAMReader provides read-only access for the fetcher or scanline helpers.
// It abstracts how VRAM bytes are fetched (tests vs. live PPU, bank 0 vs 1).
type VRAMReader interface {
	Read(addr uint16) byte
}

// FetchTileRow decodes one 8-pixel row of 2bpp tile data for tileIdx,
// honoring the given addressing mode. The returned indices are in screen
// left-to-right order (index 0 is the tile's leftmost pixel); flips are
// the caller's responsibility since they depend on per-tile attribute
// bits the fetcher itself knows nothing about.
func FetchTileRow(mem VRAMReader, tileIdx byte, signedAddressing bool, fineY int) [8]byte {
	var base uint16
	if signedAddressing {
		base = uint16(0x9000 + int(int8(tileIdx))*16)
	} else {
		base = 0x8000 + uint16(tileIdx)*16
	}
	rowAddr := base + uint16(fineY)*2
	lo := mem.Read(rowAddr)
	hi := mem.Read(rowAddr + 1)
	var row [8]byte
	for px := 0; px < 8; px++ {
		bit := 7 - byte(px)
		row[px] = ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
	}
	return row
}

// fifo is a simple ring buffer for 2-bit color indices (0..3).
type fifo struct {
	buf  [32]byte // room for several tiles
	head int
	tail int
	size int
}

func (q *fifo) Clear()   { q.head, q.tail, q.size = 0, 0, 0 }
func (q *fifo) Len() int { return q.size }
func (q *fifo) Push(ci byte) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[q.tail] = ci & 0x03
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	return true
}
func (q *fifo) Pop() (byte, bool) {
	if q.size == 0 {
		return 0, false
	}
	v := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// bgFetcher models the two-step hardware fetch: read a tile number out of
// the tilemap, then read that tile's pixel row and queue it in the FIFO.
type bgFetcher struct {
	mem           VRAMReader
	fifo          *fifo
	tileData8000  bool   // true: 0x8000 addressing; false: 0x8800 signed
	tileIndexAddr uint16 // tile index address within map
	fineY         byte   // 0..7 within tile
}

func newBGFetcher(mem VRAMReader, f *fifo) *bgFetcher { return &bgFetcher{mem: mem, fifo: f} }

// Configure sets tilemap addressing mode and tile-row position for the next fetch.
func (fch *bgFetcher) Configure(tileData8000 bool, tileIndexAddr uint16, fineY byte) {
	fch.tileData8000 = tileData8000
	fch.tileIndexAddr = tileIndexAddr
	fch.fineY = fineY & 7
}

// Fetch pushes 8 pixels (color indices) for the current tile row to the FIFO.
func (fch *bgFetcher) Fetch() {
	tileNum := fch.mem.Read(fch.tileIndexAddr)
	row := FetchTileRow(fch.mem, tileNum, !fch.tileData8000, int(fch.fineY))
	for _, ci := range row {
		_ = fch.fifo.Push(ci)
	}
}
