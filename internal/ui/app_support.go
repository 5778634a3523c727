package ui

import (
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
)

// toast shows a short-lived status line at the bottom of the screen.
func (a *App) toast(msg string) {
	a.toastMsg = msg
	a.toastUntil = time.Now().Add(2 * time.Second)
}

// statePath returns the save-state file path for a slot, derived from the
// currently loaded ROM so multiple games don't collide on slot0.savestate.
func (a *App) statePath(slot int) string {
	base := "gbemu"
	if a.m != nil {
		if p := a.m.ROMPath(); p != "" {
			base = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		}
	}
	return fmt.Sprintf("%s.slot%d.savestate", base, slot)
}

func (a *App) saveSlot(slot int) error {
	return a.m.SaveStateToFile(a.statePath(slot))
}

func (a *App) loadSlot(slot int) error {
	return a.m.LoadStateFromFile(a.statePath(slot))
}

// findROMs lists .gb/.gbc files under the configured ROMs directory.
func (a *App) findROMs() []string {
	var out []string
	entries, err := os.ReadDir(a.cfg.ROMsDir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if strings.HasSuffix(lower, ".gb") || strings.HasSuffix(lower, ".gbc") {
			out = append(out, filepath.Join(a.cfg.ROMsDir, e.Name()))
		}
	}
	return out
}

// findShellSkins lists overlay PNGs alongside the configured shell image.
func (a *App) findShellSkins() []string {
	dir := filepath.Dir(a.cfg.ShellImage)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if a.cfg.ShellImage != "" {
			return []string{a.cfg.ShellImage}
		}
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".png") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	if len(out) == 0 && a.cfg.ShellImage != "" {
		out = []string{a.cfg.ShellImage}
	}
	return out
}

// loadShell (re)loads the overlay skin image from cfg.ShellImage.
func (a *App) loadShell() {
	if a.cfg.ShellImage == "" {
		a.shellImg = nil
		return
	}
	f, err := os.Open(a.cfg.ShellImage)
	if err != nil {
		a.shellImg = nil
		return
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		a.shellImg = nil
		return
	}
	a.shellImg = ebiten.NewImageFromImage(img)
}

// applyWindowSize applies the host window size for the current scale
// factor. The menu's own coordinate space is the fixed 160x144 logical
// canvas (see Layout), tracked separately in curW/curH.
func (a *App) applyWindowSize() {
	ebiten.SetWindowSize(160*a.cfg.Scale, 144*a.cfg.Scale)
	a.curW, a.curH = 160, 144
}

// maxCharsForText returns how many characters of ebitenutil debug text fit
// on one line at the current window width, given a left margin in pixels.
func (a *App) maxCharsForText(marginPx int) int {
	const charW = 6 // ebitenutil debug font glyph advance in pixels
	n := (a.curW - 2*marginPx) / charW
	if n < 8 {
		n = 8
	}
	return n
}

func (a *App) truncateText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}

// wrapText greedily wraps s on spaces to fit within max characters per line.
func (a *App) wrapText(s string, max int) []string {
	if max <= 0 {
		return []string{s}
	}
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if len(cur)+1+len(w) > max {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	lines = append(lines, cur)
	return lines
}

// settingsFilePath is where persisted UI Config is stored between runs.
func (a *App) settingsFilePath() string {
	return "gbemu_settings.json"
}

func (a *App) saveSettings() {
	data, err := json.MarshalIndent(a.cfg, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(a.settingsFilePath(), data, 0644)
}

func (a *App) loadSettings() {
	data, err := os.ReadFile(a.settingsFilePath())
	if err != nil {
		return
	}
	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return
	}
	title, scale := a.cfg.Title, a.cfg.Scale
	a.cfg = loaded
	if a.cfg.Title == "" {
		a.cfg.Title = title
	}
	if scale > 0 {
		a.cfg.Scale = scale
	}
	a.cfg.Defaults()
}
