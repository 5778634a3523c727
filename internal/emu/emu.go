package emu

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/nullterm/gopherboy/internal/bus"
	"github.com/nullterm/gopherboy/internal/cart"
	"github.com/nullterm/gopherboy/internal/cpu"
)

type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

type Machine struct {
	cfg  Config
	w, h int
	fb   []byte // RGBA 160x144*4, mirrors the PPU's own framebuffer once per frame
	// core components
	bus        *bus.Bus
	cpu        *cpu.CPU
	romPath    string
	romTitle   string
	bootROM    []byte
	cgbBootROM []byte
	// ROM capability (from header): if false, do not expose CGB hardware even if toggle is on
	cgbCapable bool
}

func New(cfg Config) *Machine {
	return &Machine{
		cfg: cfg, w: 160, h: 144,
		fb: make([]byte, 160*144*4),
	}
}

func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	// Parse header (just for logging/validation for now)
	romHeader, err := cart.ParseHeader(rom)
	if err != nil {
		return err
	}
	m.romTitle = ""
	if romHeader != nil {
		m.romTitle = romHeader.Title
	}
	// Record whether the ROM supports or requires CGB features
	m.cgbCapable = false
	if romHeader != nil {
		if (romHeader.CGBFlag & 0x80) != 0 { // supports CGB (0x80) or CGB-only (0xC0)
			m.cgbCapable = true
		}
	}
	// Decide whether to use the supplied boot ROM. If a DMG boot ROM is provided
	// (256 bytes) but the game is CGB-capable, ignore it; without a proper CGB boot ROM,
	// start directly at $0100 with CGB post-boot semantics so the game detects CGB.
	useBoot := len(boot) >= 0x100
	if romHeader != nil && (romHeader.CGBFlag&0x80) != 0 && len(boot) == 0x100 {
		useBoot = false
	}
	// Wire bus+cpu. For now, ROM-only cartridge via bus.New.
	b := bus.New(rom)
	if useBoot {
		b.SetBootROM(boot)
	}
	c := cpu.New(b)
	if useBoot {
		// Boot ROM path: start at 0x0000; do not force post-boot IO
		c.SP = 0xFFFE
		c.PC = 0x0000
		c.IME = false
	} else {
		// No boot ROM: initialize to DMG post-boot state
		c.ResetNoBoot()
		c.SetPC(0x0100)
		// If the game is CGB-capable, set A=$11 so it detects CGB hardware per Pan Docs
		if romHeader != nil && (romHeader.CGBFlag&0x80) != 0 {
			c.A = 0x11
		}
	}
	m.bus = b
	m.cpu = c
	m.bootROM = nil
	if len(boot) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, boot[:0x100])
	}
	// Apply DMG post-boot IO defaults only when no boot ROM is used
	if len(boot) < 0x100 {
		m.applyDMGPostBootIO()
	}
	// Auto-enable CGB color path if ROM indicates CGB support
	if romHeader != nil {
		// CGBFlag: 0x80 = supports CGB (works on DMG), 0xC0 = CGB only
		if romHeader.CGBFlag&0x80 != 0 {
			m.cfg.UseCGBBG = true
			if m.bus != nil {
				m.bus.SetCGBMode(true)
			}
		} else {
			// for pure DMG, default to classic
			m.cfg.UseCGBBG = false
			if m.bus != nil {
				m.bus.SetCGBMode(false)
			}
		}
	}
	return nil
}

// SetUseFetcherBG toggles the BG renderer between classic and fetcher-based path.
func (m *Machine) SetUseFetcherBG(on bool) { m.cfg.UseFetcherBG = on }

// SetUseCGBBG toggles the CGB BG/Window/Sprite rendering path using CGB attributes and palettes.
func (m *Machine) SetUseCGBBG(on bool) {
	m.cfg.UseCGBBG = on
	if m.bus != nil {
		// Only expose CGB hardware if the loaded ROM is CGB-capable
		m.bus.SetCGBMode(on && m.cgbCapable)
	}
}

// UseCGBBG reports whether the CGB rendering path is enabled.
func (m *Machine) UseCGBBG() bool { return m.cfg.UseCGBBG && m.cgbCapable }

// WantCGBColors reports whether the user has asked for CGB colors, regardless
// of whether the loaded cartridge actually supports them.
func (m *Machine) WantCGBColors() bool { return m.cfg.UseCGBBG }

// ROMTitle returns the cartridge header title of the currently loaded ROM.
func (m *Machine) ROMTitle() string { return m.romTitle }

// IsCGBCompat reports whether the machine is currently running a DMG-only
// ROM under synthesized CGB colors. There is no such mode: DMG-only
// cartridges always render through the fixed host palette selected by
// SetDMGPalette, never a per-title synthesized CGB palette.
func (m *Machine) IsCGBCompat() bool { return false }

// CurrentCompatPalette, CompatPaletteName, SetCompatPalette, and
// CycleCompatPalette exist only to round out the settings UI that guards
// them behind IsCGBCompat; since that mode is never entered these are
// unreachable no-ops.
func (m *Machine) CurrentCompatPalette() int       { return 0 }
func (m *Machine) CompatPaletteName(id int) string { return "" }
func (m *Machine) SetCompatPalette(id int)         {}
func (m *Machine) CycleCompatPalette(delta int)    {}

// SetDMGPalette selects the host color scheme used to display 2-bit DMG
// shades (black/white, light green, or intense green), independent of any
// CGB hardware exposure.
func (m *Machine) SetDMGPalette(id int) {
	if m.bus != nil {
		m.bus.PPU().SetDMGPalette(id)
	}
}

// SetColorCorrection toggles the CGB LCD color-correction matrix applied to
// palette memory lookups.
func (m *Machine) SetColorCorrection(on bool) {
	if m.bus != nil {
		m.bus.PPU().SetColorCorrection(on)
	}
}

// LoadROMFromFile replaces the current cartridge with a ROM from disk, preserving boot ROM setting.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var boot []byte
	if len(m.bootROM) >= 0x100 {
		boot = m.bootROM
	}
	if err := m.LoadCartridge(data, boot); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// ROMPath returns the currently loaded ROM file path, if any.
func (m *Machine) ROMPath() string {
	return m.romPath
}

// SetROMPath sets the current ROM path (used by UI for state/save association).
// This does not reload the ROM and should be called only after a successful cartridge load.
func (m *Machine) SetROMPath(path string) { m.romPath = path }

// SetBootROM sets the DMG boot ROM to be used when loading ROMs or executing with boot.
func (m *Machine) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		m.bootROM = make([]byte, 0x100)
		copy(m.bootROM, data[:0x100])
	} else {
		m.bootROM = nil
	}
	if m.bus != nil {
		m.bus.SetBootROM(m.bootROM)
	}
}

// SetCGBBootROM sets the CGB boot ROM used when starting CGB-capable games.
func (m *Machine) SetCGBBootROM(data []byte) {
	if len(data) >= 0x800 {
		m.cgbBootROM = make([]byte, 0x800)
		copy(m.cgbBootROM, data[len(data)-0x800:])
	} else if len(data) >= 0x900 {
		m.cgbBootROM = make([]byte, 0x800)
		copy(m.cgbBootROM, data[len(data)-0x800:])
	} else {
		m.cgbBootROM = nil
	}
	if m.bus != nil {
		m.bus.SetCGBBootROM(m.cgbBootROM)
	}
}

// HasBootROM reports whether a DMG boot ROM is configured on this machine.
func (m *Machine) HasBootROM() bool { return len(m.bootROM) >= 0x100 }

// HasCGBBootROM reports whether a CGB boot ROM is configured.
func (m *Machine) HasCGBBootROM() bool { return len(m.cgbBootROM) >= 0x800 }

// ResetPostBoot resets CPU and IO to DMG post-boot state (no boot ROM), keeping the loaded cartridge.
func (m *Machine) ResetPostBoot() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	m.applyDMGPostBootIO()
	m.bus.EnableBoot(0)
}

// ResetWithBoot re-enables the boot ROM (if present) and restarts execution from 0x0000.
func (m *Machine) ResetWithBoot() {
	if m.cpu == nil || m.bus == nil || len(m.bootROM) < 0x100 {
		// Fallback to post-boot reset if no boot ROM
		m.ResetPostBoot()
		return
	}
	m.bus.SetBootROM(m.bootROM)
	m.bus.EnableBoot(1)
	m.cpu.SP = 0xFFFE
	m.cpu.PC = 0x0000
	m.cpu.IME = false
}

// ResetWithCGBBoot enables the CGB boot ROM and restarts from 0x0000.
func (m *Machine) ResetWithCGBBoot() {
	if m.cpu == nil || m.bus == nil || len(m.cgbBootROM) < 0x800 {
		m.ResetPostBoot()
		return
	}
	m.bus.SetCGBBootROM(m.cgbBootROM)
	m.bus.EnableBoot(2)
	m.cpu.SP = 0xFFFE
	m.cpu.PC = 0x0000
	m.cpu.IME = false
}

// ResetCGBPostBoot simulates the CGB boot hand-off: enables CGB hardware, sets A=0x11, and jumps to $0100.
// If compat is true (DMG ROM on CGB), this represents DMG compatibility mode; we still enable CGB hardware
// so palettes and VBK/SVBK exist, but DMG games will keep grayscale unless we implement compatibility palettes.
func (m *Machine) ResetCGBPostBoot(compat bool) {
	if m.cpu == nil || m.bus == nil {
		return
	}
	// Expose CGB hardware to the CPU
	m.bus.SetCGBMode(true)
	// Clear any boot mapping
	m.bus.EnableBoot(0)
	// CPU state like CGB after boot
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	m.cpu.A = 0x11 // indicate CGB hardware per Pan Docs
	// Set minimal IO similar to applyDMGPostBootIO
	m.applyDMGPostBootIO()
}

// applyDMGPostBootIO sets a minimal set of IO registers to DMG post-boot defaults,
// so ROMs can start from PC=0x0100 without a boot ROM and still have LCD enabled.
func (m *Machine) applyDMGPostBootIO() {
	if m == nil || m.bus == nil {
		return
	}
	b := m.bus
	// Joypad: no group selected, high bits set
	b.Write(0xFF00, 0xCF)
	// Timers
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC (disabled)
	// PPU regs (enable LCD, BG/window; default palettes)
	b.Write(0xFF40, 0x91) // LCDC: LCD on, BG on, tile data 8000, BG map 9800, sprites on 8x8
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	// IE: none enabled by default
	b.Write(0xFFFF, 0x00)
	// APU defaults (power on + route all to both, medium volume)
	b.Write(0xFF26, 0x80) // NR52 power
	b.Write(0xFF24, 0x77) // NR50: Vin off, L=7, R=7
	b.Write(0xFF25, 0xFF) // NR51: route all ch to both
	// Leave channels off until games configure them
}

// SaveBattery tries to persist external cartridge RAM to a provided sink via the BatteryBacked interface.
// The actual file IO is managed by the caller (e.g., cmd/gbemu).
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m == nil || m.bus == nil {
		return nil, false
	}
	if bb, ok := m.bus.Cart().(interface{ SaveRAM() []byte }); ok {
		data := bb.SaveRAM()
		if len(data) == 0 {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

// LoadBattery loads external RAM bytes into the cartridge if supported.
func (m *Machine) LoadBattery(data []byte) bool {
	if m == nil || m.bus == nil {
		return false
	}
	if bb, ok := m.bus.Cart().(interface{ LoadRAM([]byte) }); ok {
		bb.LoadRAM(data)
		return true
	}
	return false
}

// StepFrame advances the CPU for approximately one frame worth of cycles
// (~70224 T-cycles). Scanline rendering happens internally in the PPU as
// each bus.Tick crosses into mode 3, so this only needs to copy out the
// finished framebuffer once the frame's cycles are exhausted.
func (m *Machine) StepFrame() {
	if m.cpu == nil || m.bus == nil {
		return
	}
	const cyclesPerFrame = 70224
	acc := 0
	for acc < cyclesPerFrame {
		acc += m.cpu.Step()
	}
	copy(m.fb, m.bus.PPU().Framebuffer())
}

func (m *Machine) Framebuffer() []byte { return m.fb }

// SetSerialWriter connects an io.Writer to receive bytes written to the serial port (FF01/FF02).
// Useful for running test ROMs that report via serial.
func (m *Machine) SetSerialWriter(w interface{ Write([]byte) (int, error) }) {
	if m != nil && m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// APUPullSamples returns up to max mono int16 samples from the APU ring buffer.
func (m *Machine) APUPullSamples(max int) []int16 {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return nil
	}
	return m.bus.APU().PullSamples(max)
}

// APUPullStereo returns up to max stereo frames as interleaved int16 L,R pairs.
func (m *Machine) APUPullStereo(max int) []int16 {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

// APUBufferedStereo returns the number of stereo frames ready in the APU buffer.
func (m *Machine) APUBufferedStereo() int {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

// APUClearAudioLatency drops all buffered stereo frames to re-sync audio with video.
func (m *Machine) APUClearAudioLatency() {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return
	}
	m.bus.APU().ClearStereoBuffer()
}

// APUCapBufferedStereo trims the buffered frames to at most target frames.
func (m *Machine) APUCapBufferedStereo(target int) {
	if m == nil || m.bus == nil || m.bus.APU() == nil {
		return
	}
	m.bus.APU().TrimStereoTo(target)
}

// --- Save/Load state ---
type machineState struct {
	Bus []byte
	CPU []byte
}

func (m *Machine) SaveState() []byte {
	if m == nil || m.bus == nil || m.cpu == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	_ = enc.Encode(machineState{Bus: m.bus.SaveState(), CPU: m.cpu.SaveState()})
	return buf.Bytes()
}

func (m *Machine) LoadState(data []byte) error {
	if m == nil || m.bus == nil || m.cpu == nil {
		return nil
	}
	var s machineState
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&s); err != nil {
		return err
	}
	m.bus.LoadState(s.Bus)
	m.cpu.LoadState(s.CPU)
	return nil
}

func (m *Machine) SaveStateToFile(path string) error {
	data := m.SaveState()
	if len(data) == 0 {
		return nil
	}
	return os.WriteFile(path, data, 0644)
}

func (m *Machine) LoadStateFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.LoadState(data)
}
func (m *Machine) SetButtons(b Buttons) {
	if m.bus == nil {
		return
	}
	// Map buttons to joypad mask
	var mask byte
	if b.Right {
		mask |= bus.JoypRight
	}
	if b.Left {
		mask |= bus.JoypLeft
	}
	if b.Up {
		mask |= bus.JoypUp
	}
	if b.Down {
		mask |= bus.JoypDown
	}
	if b.A {
		mask |= bus.JoypA
	}
	if b.B {
		mask |= bus.JoypB
	}
	if b.Select {
		mask |= bus.JoypSelectBtn
	}
	if b.Start {
		mask |= bus.JoypStart
	}
	m.bus.SetJoypadState(mask)
}

