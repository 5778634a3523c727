// Package joypad models the P1/JOYP button matrix register and its
// falling-edge interrupt.
package joypad

import (
	"bytes"
	"encoding/gob"
)

// Buttons is the full set of physical inputs.
type Buttons struct {
	Right, Left, Up, Down   bool
	A, B, Select, Start bool
}

// Joypad holds the current button state and the select-line bits written
// to P1 (0xFF00). Reading P1 ORs together whichever of the two 4-bit
// button groups the game has selected.
type Joypad struct {
	buttons     Buttons
	selectDpad  bool // P1 bit4 = 0 selects direction keys
	selectBtns  bool // P1 bit5 = 0 selects action buttons
	prevLowNibble byte

	// RequestInterrupt fires on the falling edge of any selected input
	// line, matching real hardware's P10-P13 interrupt.
	RequestInterrupt func()
}

func New() *Joypad {
	j := &Joypad{selectDpad: true, selectBtns: true}
	j.prevLowNibble = j.lowNibble()
	return j
}

func (j *Joypad) SetButtons(b Buttons) {
	j.buttons = b
	j.checkEdge()
}

func (j *Joypad) lowNibble() byte {
	var n byte = 0x0F
	if !j.selectDpad {
		if j.buttons.Right {
			n &^= 0x01
		}
		if j.buttons.Left {
			n &^= 0x02
		}
		if j.buttons.Up {
			n &^= 0x04
		}
		if j.buttons.Down {
			n &^= 0x08
		}
	}
	if !j.selectBtns {
		if j.buttons.A {
			n &^= 0x01
		}
		if j.buttons.B {
			n &^= 0x02
		}
		if j.buttons.Select {
			n &^= 0x04
		}
		if j.buttons.Start {
			n &^= 0x08
		}
	}
	return n
}

// checkEdge fires the joypad interrupt on any high-to-low transition of a
// selected line, used by games to wake the CPU from STOP/HALT on a keypress.
func (j *Joypad) checkEdge() {
	cur := j.lowNibble()
	if (j.prevLowNibble &^ cur) != 0 && j.RequestInterrupt != nil {
		j.RequestInterrupt()
	}
	j.prevLowNibble = cur
}

// Read returns the P1 register value. Bits 6-7 always read 1.
func (j *Joypad) Read() byte {
	v := byte(0xC0)
	if !j.selectDpad {
		v |= 0x10
	}
	if !j.selectBtns {
		v |= 0x20
	}
	return v | j.lowNibble()
}

// Write updates the select lines (bits 4-5 are writable; bits 0-3 are
// read-only from the CPU's perspective).
func (j *Joypad) Write(value byte) {
	j.selectDpad = value&0x10 != 0
	j.selectBtns = value&0x20 != 0
	j.checkEdge()
}

type joypadState struct {
	Buttons       Buttons
	SelectDpad    bool
	SelectBtns    bool
	PrevLowNibble byte
}

func (j *Joypad) SaveState() []byte {
	var buf bytes.Buffer
	s := joypadState{j.buttons, j.selectDpad, j.selectBtns, j.prevLowNibble}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (j *Joypad) LoadState(data []byte) {
	var s joypadState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	j.buttons, j.selectDpad, j.selectBtns, j.prevLowNibble = s.Buttons, s.SelectDpad, s.SelectBtns, s.PrevLowNibble
}
