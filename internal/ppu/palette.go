package ppu

// dmgPaletteSchemes are fixed 4-shade RGB palettes used to colorize DMG
// output. Index order matches the host palette selector: black_white,
// light_green, intense_green.
var dmgPaletteSchemes = [][4][3]byte{
	{{0xFF, 0xFF, 0xFF}, {0xAA, 0xAA, 0xAA}, {0x55, 0x55, 0x55}, {0x00, 0x00, 0x00}}, // black_white
	{{0xE0, 0xF8, 0xD0}, {0x88, 0xC0, 0x70}, {0x34, 0x68, 0x56}, {0x08, 0x18, 0x20}}, // light_green (Pocket-style)
	{{0x9B, 0xBC, 0x0F}, {0x8B, 0xAC, 0x0F}, {0x30, 0x62, 0x30}, {0x0F, 0x38, 0x0F}}, // intense_green (original DMG LCD)
}

// DMGColorRGB resolves a 2-bit monochrome shade index (as decoded via
// BGP/OBP0/OBP1) through the selected color scheme.
func (p *PPU) DMGColorRGB(shade byte) (r, g, b byte) {
	scheme := dmgPaletteSchemes[p.dmgPal]
	c := scheme[shade&0x03]
	return c[0], c[1], c[2]
}

// decodeColor turns a little-endian RGB555 CRAM entry into 8-bit RGB,
// optionally applying the CGB LCD color-correction matrix that several
// emulators use to better match the real hardware's non-linear color
// mixing (the raw 5-bit-to-8-bit left-shift looks noticeably too saturated
// next to a real Game Boy Color screen).
func (p *PPU) decodeColor(lo, hi byte) (r, g, b byte) {
	v := uint16(lo) | uint16(hi)<<8
	r5 := byte(v & 0x1F)
	g5 := byte((v >> 5) & 0x1F)
	b5 := byte((v >> 10) & 0x1F)
	if !p.colorCorrect {
		return (r5 << 3) | (r5 >> 2), (g5 << 3) | (g5 >> 2), (b5 << 3) | (b5 >> 2)
	}
	return correctCGBColor(r5, g5, b5)
}

// correctCGBColor applies the widely used "Grimm" CGB color correction
// matrix, which blends a little of each channel into the others before
// gamma-scaling to 8 bits, approximating the Game Boy Color's backlit LCD.
func correctCGBColor(r5, g5, b5 byte) (r, g, b byte) {
	rf, gf, bf := float64(r5), float64(g5), float64(b5)
	rOut := 0.82*rf + 0.175*gf
	gOut := 0.125*rf + 0.665*gf + 0.21*bf
	bOut := 0.195*rf + 0.17*gf + 0.665*bf
	scale := func(v float64) byte {
		v = v * (255.0 / 31.0)
		if v > 255 {
			v = 255
		}
		if v < 0 {
			v = 0
		}
		return byte(v + 0.5)
	}
	return scale(rOut), scale(gOut), scale(bOut)
}
