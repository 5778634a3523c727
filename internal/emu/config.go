package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace        bool // log CPU instructions
	LimitFPS     bool // throttle to ~60 Hz (useful for headless test mode)
	UseFetcherBG bool // retained for UI compatibility; scanline rendering is always done by the PPU now
	UseCGBBG     bool // expose CGB color hardware (VRAM bank 1, CRAM palettes) when the cartridge supports it
}
