package ppu

import "testing"

func TestFIFO(t *testing.T) {
	var q fifo
	if q.Len() != 0 {
		t.Fatal("new fifo not empty")
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("pop from empty should fail")
	}
	for i := 0; i < 32; i++ {
		if !q.Push(byte(i)) {
			t.Fatal("unexpected full")
		}
	}
	if q.Push(0) {
		t.Fatal("should be full")
	}
	for i := 0; i < 32; i++ {
		v, ok := q.Pop()
		if !ok {
			t.Fatal("unexpected empty")
		}
		if v != byte(i)&3 {
			t.Fatalf("got %d want %d", v, byte(i)&3)
		}
	}
}

type mockVRAM map[uint16]byte

func (m mockVRAM) Read(addr uint16) byte { return m[addr] }

func TestBGFetcherFetchesEightPixels(t *testing.T) {
	// Construct a tile row that yields ci = 0..3 pattern across 8 pixels.
	mem := mockVRAM{}
	// tile index addr -> tileNum=0
	mem[0x9800] = 0
	// tile row at 0x8000
	mem[0x8000] = 0x55
	mem[0x8001] = 0x33
	var q fifo
	f := newBGFetcher(mem, &q)
	f.Configure(true, 0x9800, 0)
	f.Fetch()
	if q.Len() != 8 {
		t.Fatalf("expected 8 pixels in fifo, got %d", q.Len())
	}
	lo, hi := byte(0x55), byte(0x33)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi>>b)&1)<<1 | ((lo >> b) & 1)
		got, _ := q.Pop()
		if got != want {
			t.Fatalf("px %d got %d want %d", i, got, want)
		}
	}
}

func TestBGFetcherSignedTileAddressing8800(t *testing.T) {
	mem := mockVRAM{}
	// map at 0x9C00 points to tile index 0xFF (-1)
	mapBase := uint16(0x9C00)
	mem[mapBase] = 0xFF
	// For 0x8800 signed addressing, index 0 is at 0x9000; -1 => 0x8FF0
	fineY := byte(5) // row 5 -> offset 10 bytes into tile (each row 2 bytes)
	rowAddr := uint16(0x8FF0) + uint16(fineY)*2
	lo, hi := byte(0xA5), byte(0x5A)
	mem[rowAddr] = lo
	mem[rowAddr+1] = hi

	var q fifo
	f := newBGFetcher(mem, &q)
	// tileData8000=false => use 0x8800 signed addressing
	f.Configure(false, mapBase, fineY)
	f.Fetch()
	if q.Len() != 8 {
		t.Fatalf("expected 8 pixels in fifo, got %d", q.Len())
	}
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((hi>>b)&1)<<1 | ((lo >> b) & 1)
		got, _ := q.Pop()
		if got != want {
			t.Fatalf("px %d got %d want %d", i, got, want)
		}
	}
}

func TestFetchTileRowMatchesBGFetcher(t *testing.T) {
	mem := mockVRAM{0x8010: 0xAA, 0x8011: 0xCC}
	row := FetchTileRow(mem, 1, false, 0)
	for i := 0; i < 8; i++ {
		b := 7 - byte(i)
		want := ((byte(0xCC)>>b)&1)<<1 | ((byte(0xAA) >> b) & 1)
		if row[i] != want {
			t.Fatalf("px %d got %d want %d", i, row[i], want)
		}
	}
}

func TestBGRowCacheReusesDecodedRowUntilTileChanges(t *testing.T) {
	mem := mockVRAM{0x8000: 0xF0, 0x8001: 0x00, 0x8010: 0x0F, 0x8011: 0x00}
	var c bgRowCache

	// Tile 0, column 0: high nibble set -> color index 1 for the first 4 pixels.
	if got := c.lookup(mem, 0, 0, false, 0, 0); got != 1 {
		t.Fatalf("tile0 px0: got %d want 1", got)
	}
	if !c.valid || c.tileIdx != 0 {
		t.Fatalf("cache did not record tile 0 as decoded")
	}
	// Same tile, next column: must come from the cached row, not a fresh read.
	if got := c.lookup(mem, 0, 0, false, 4, 0); got != 0 {
		t.Fatalf("tile0 px4: got %d want 0", got)
	}
	// Switching tile index must invalidate and re-decode.
	if got := c.lookup(mem, 0, 1, false, 0, 0); got != 0 {
		t.Fatalf("tile1 px0: got %d want 0", got)
	}
	if c.tileIdx != 1 {
		t.Fatalf("cache did not switch to tile 1")
	}
}
