package cart

// Cartridge defines the minimal interface the bus needs for ROM/RAM banking.
// Implementations can be ROM-only or MBC variants. Addresses are CPU addresses.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
	// SaveState/LoadState serialize internal banking registers and external RAM for save states.
	SaveState() []byte
	LoadState(data []byte)
}

// BatteryBacked is an optional interface for cartridges with external RAM to be persisted.
type BatteryBacked interface {
	SaveRAM() []byte
	LoadRAM(data []byte)
}

// RTCCartridge is implemented by cartridges carrying a real-time clock.
// TickRTC advances the clock by cycles elapsed; SaveRTC/LoadRTC persist the
// clock alongside battery RAM in a .sav file.
type RTCCartridge interface {
	TickRTC(cycles int)
	SaveRTC() []byte
	LoadRTC(data []byte)
}

// TiltCartridge is implemented by cartridges with an accelerometer (MBC7).
type TiltCartridge interface {
	SetTilt(x, y float64)
}

// NewCartridge picks an implementation based on the ROM header.
func NewCartridge(rom []byte) Cartridge {
	h, err := ParseHeader(rom)
	if err != nil {
		return NewROMOnly(rom, 0, false)
	}
	switch h.CartType {
	case 0x00: // ROM ONLY
		return NewROMOnly(rom, 0, false)
	case 0x08: // ROM+RAM
		return NewROMOnly(rom, h.RAMSizeBytes, false)
	case 0x09: // ROM+RAM+BATTERY
		return NewROMOnly(rom, h.RAMSizeBytes, true)
	case 0x01, 0x02, 0x03: // MBC1 (+RAM)(+BATTERY)
		return NewMBC1(rom, h.RAMSizeBytes)
	case 0x05, 0x06: // MBC2 (+BATTERY)
		return NewMBC2(rom)
	case 0x0F, 0x10: // MBC3+TIMER(+RAM)+BATTERY
		return NewMBC3WithRTC(rom, h.RAMSizeBytes)
	case 0x11, 0x12, 0x13: // MBC3(+RAM)(+BATTERY)
		return NewMBC3(rom, h.RAMSizeBytes)
	case 0x19, 0x1A, 0x1B: // MBC5(+RAM)(+BATTERY)
		return NewMBC5(rom, h.RAMSizeBytes)
	case 0x1C, 0x1D, 0x1E: // MBC5+RUMBLE(+RAM)(+BATTERY)
		return NewMBC5Rumble(rom, h.RAMSizeBytes)
	case 0x22: // MBC7+ACCELEROMETER+EEPROM+BATTERY
		return NewMBC7(rom)
	default:
		// Fallback to ROM-only for unknown types to allow homebrew/test ROMs to run.
		return NewROMOnly(rom, 0, false)
	}
}
