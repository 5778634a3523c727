package cart

import (
	"bytes"
	"encoding/gob"
)

// ROMOnly implements cart types 0x00 (ROM ONLY), 0x08 (ROM+RAM) and 0x09
// (ROM+RAM+BATTERY). There is no bank switching: the whole ROM sits fixed
// at 0x0000-0x7FFF and, when the header calls for it, a single fixed bank
// of external RAM sits at 0xA000-0xBFFF. Writes to the ROM area are ignored
// since there are no control registers to write to.
type ROMOnly struct {
	rom     []byte
	ram     []byte
	battery bool
}

// NewROMOnly builds a plain, non-banked cartridge. ramSize of 0 means no
// external RAM is present at all (cart type 0x00); battery marks whether
// that RAM should be persisted across sessions (cart type 0x09).
func NewROMOnly(rom []byte, ramSize int, battery bool) *ROMOnly {
	c := &ROMOnly{rom: rom, battery: battery}
	if ramSize > 0 {
		c.ram = make([]byte, ramSize)
	}
	return c
}

func (c *ROMOnly) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if len(c.ram) == 0 {
			return 0xFF
		}
		return c.ram[int(addr-0xA000)%len(c.ram)]
	default:
		return 0xFF
	}
}

func (c *ROMOnly) Write(addr uint16, value byte) {
	if addr < 0xA000 || addr > 0xBFFF || len(c.ram) == 0 {
		return
	}
	c.ram[int(addr-0xA000)%len(c.ram)] = value
}

func (c *ROMOnly) SaveRAM() []byte {
	if !c.battery || len(c.ram) == 0 {
		return nil
	}
	out := make([]byte, len(c.ram))
	copy(out, c.ram)
	return out
}

func (c *ROMOnly) LoadRAM(data []byte) {
	if len(data) == 0 || len(c.ram) == 0 {
		return
	}
	copy(c.ram, data)
}

type romOnlyState struct {
	RAM []byte
}

func (c *ROMOnly) SaveState() []byte {
	if len(c.ram) == 0 {
		return nil
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(romOnlyState{RAM: c.ram})
	return buf.Bytes()
}

func (c *ROMOnly) LoadState(data []byte) {
	if len(data) == 0 || len(c.ram) == 0 {
		return
	}
	var s romOnlyState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	copy(c.ram, s.RAM)
}
