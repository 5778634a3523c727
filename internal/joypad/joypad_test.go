package joypad

import "testing"

func TestReadDefaultsAllReleased(t *testing.T) {
	j := New()
	j.Write(0x30) // select neither group
	if j.Read()&0x0F != 0x0F {
		t.Fatalf("expected all released bits high, got %#x", j.Read())
	}
}

func TestButtonPressPullsLineLow(t *testing.T) {
	j := New()
	j.Write(0x10) // select action buttons (bit5=1 deselects dpad... wait bit4 selects dpad)
	j.SetButtons(Buttons{A: true})
	j.Write(0x20) // select dpad group only, deselect buttons
	// re-select buttons: bit4=1 (dpad off), bit5=0 (buttons on)
	j.Write(0x10)
	if j.Read()&0x01 != 0 {
		t.Fatalf("expected A bit to read low when pressed and selected")
	}
}

func TestInterruptFiresOnPressEdge(t *testing.T) {
	j := New()
	j.Write(0x10) // buttons selected
	fired := false
	j.RequestInterrupt = func() { fired = true }
	j.SetButtons(Buttons{Start: true})
	if !fired {
		t.Fatalf("expected joypad interrupt on button-press edge")
	}
}
