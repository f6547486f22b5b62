//go:build linux

package input

import "golang.design/x/hotkey"

// modAlt maps the "alt" token to X11's Mod1 mask.
func modAlt() hotkey.Modifier {
	return hotkey.Mod1
}

// modSuper maps the "cmd" and "super" tokens to X11's Mod4 mask (the
// Super/Win key on most keymaps).
func modSuper() hotkey.Modifier {
	return hotkey.Mod4
}
