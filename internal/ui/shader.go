package ui

import "github.com/hajimehoshi/ebiten/v2"

// Kage shader sources for the post-processing presets cycled from the
// settings menu. "off" uses no shader at all (a.shader stays nil).

const lcdShaderSrc = `package main

func Fragment(dstPos vec4, srcPos vec2, color vec4) vec4 {
	c := imageSrc0At(srcPos)
	// faint scanline darkening every other row
	if int(dstPos.y)%2 == 0 {
		c.rgb *= 0.85
	}
	return c
}
`

const crtShaderSrc = `package main

func Fragment(dstPos vec4, srcPos vec2, color vec4) vec4 {
	c := imageSrc0At(srcPos)
	if int(dstPos.y)%2 == 0 {
		c.rgb *= 0.7
	}
	// mild vignette toward the edges
	size := imageSrcTextureSize()
	uv := srcPos / size
	d := distance(uv, vec2(0.5, 0.5))
	c.rgb *= 1.0 - d*0.3
	return c
}
`

const ghostShaderSrc = `package main

func Fragment(dstPos vec4, srcPos vec2, color vec4) vec4 {
	c := imageSrc0At(srcPos)
	prev := imageSrc0At(srcPos - vec2(1, 0))
	c.rgb = c.rgb*0.8 + prev.rgb*0.2
	return c
}
`

// ensureShader (re)compiles the shader for the current ShaderPreset, or
// clears it for "off". Compile failures fall back to no shader.
func (a *App) ensureShader() {
	var src string
	switch a.cfg.ShaderPreset {
	case "lcd":
		src = lcdShaderSrc
	case "crt":
		src = crtShaderSrc
	case "ghost":
		src = ghostShaderSrc
	default:
		a.shader = nil
		return
	}
	sh, err := ebiten.NewShader([]byte(src))
	if err != nil {
		a.shader = nil
		return
	}
	a.shader = sh
}
