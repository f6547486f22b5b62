//go:build darwin

package input

import "golang.design/x/hotkey"

// modAlt maps the "alt" token to the Option key.
func modAlt() hotkey.Modifier {
	return hotkey.ModOption
}

// modSuper maps the "cmd" and "super" tokens to the Command key.
func modSuper() hotkey.Modifier {
	return hotkey.ModCmd
}
