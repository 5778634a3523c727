package timer

import "testing"

func TestTIMAIncrementsOnSelectedFrequency(t *testing.T) {
	tm := New()
	tm.WriteTAC(0x05) // enabled, select bit 3 (262144Hz)
	tm.WriteTMA(0x10)
	tm.WriteDIV(0) // aligns div to 0

	fired := false
	tm.RequestInterrupt = func() { fired = true }

	// bit3 falling edge happens once every 16 T-cycles once past the first
	// rising edge; run enough cycles to see TIMA move off zero.
	tm.Tick(32)
	if tm.ReadTIMA() == 0 {
		t.Fatalf("expected TIMA to have incremented, got 0")
	}
	_ = fired
}

func TestTIMAOverflowReloadsFromTMADelayed(t *testing.T) {
	tm := New()
	tm.WriteTAC(0x05)
	tm.WriteTMA(0x42)
	tm.WriteDIV(0)

	var interrupts int
	tm.RequestInterrupt = func() { interrupts++ }

	tm.WriteTIMA(0xFF)
	// Drive one more falling edge to overflow TIMA to 0.
	tm.Tick(16)
	if tm.ReadTIMA() != 0 {
		t.Fatalf("expected TIMA to overflow to 0 immediately, got %#x", tm.ReadTIMA())
	}
	// The TMA reload and interrupt are delayed by ~4 T-cycles.
	tm.Tick(4)
	if tm.ReadTIMA() != 0x42 {
		t.Fatalf("expected TIMA reloaded from TMA=0x42, got %#x", tm.ReadTIMA())
	}
	if interrupts != 1 {
		t.Fatalf("expected exactly one timer interrupt, got %d", interrupts)
	}
}

func TestDIVWriteResetsCounter(t *testing.T) {
	tm := New()
	tm.Tick(1000)
	if tm.ReadDIV() == 0 {
		t.Fatalf("expected DIV to have advanced")
	}
	tm.WriteDIV(0xFF) // value is ignored; any write resets to 0
	if tm.ReadDIV() != 0 {
		t.Fatalf("expected DIV reset to 0 after write, got %#x", tm.ReadDIV())
	}
}

func TestTACReadOnlyBitsAreSet(t *testing.T) {
	tm := New()
	tm.WriteTAC(0x01)
	if tm.ReadTAC()&0xF8 != 0xF8 {
		t.Fatalf("expected unused TAC bits to read as 1")
	}
}
