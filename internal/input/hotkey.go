package input

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// Controls is the subset of recording operations driven by hotkeys.
type Controls interface {
	Pause() error
	Resume() error
	Stop() error
}

// HotkeyManager registers the global pause/resume and stop hotkeys and
// forwards key presses to the recording controls. The pause key toggles:
// first press pauses, next press resumes.
type HotkeyManager struct {
	mu       sync.Mutex
	controls Controls
	onError  func(error)
	paused   bool

	pauseHK *hotkey.Hotkey
	stopHK  *hotkey.Hotkey
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHotkeyManager creates a new HotkeyManager. onError receives failures
// from rejected control calls; it may be nil.
func NewHotkeyManager(controls Controls, onError func(error)) *HotkeyManager {
	return &HotkeyManager{
		controls: controls,
		onError:  onError,
		done:     make(chan struct{}),
	}
}

// Start registers the hotkeys and begins listening for key events
func (h *HotkeyManager) Start(ctx context.Context, pauseKey, stopKey string) error {
	var err error
	h.pauseHK, err = registerHotkey(pauseKey)
	if err != nil {
		return fmt.Errorf("pause hotkey: %w", err)
	}
	h.stopHK, err = registerHotkey(stopKey)
	if err != nil {
		h.pauseHK.Unregister()
		return fmt.Errorf("stop hotkey: %w", err)
	}

	ctx, h.cancel = context.WithCancel(ctx)

	go func() {
		defer close(h.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-h.pauseHK.Keydown():
				if !ok {
					return
				}
				h.togglePause()
			case _, ok := <-h.stopHK.Keydown():
				if !ok {
					return
				}
				h.report(h.controls.Stop())
			}
		}
	}()

	return nil
}

// Stop unregisters the hotkeys and stops listening
func (h *HotkeyManager) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	if h.pauseHK != nil {
		h.pauseHK.Unregister()
	}
	if h.stopHK != nil {
		h.stopHK.Unregister()
	}
	// Wait briefly for goroutine to exit
	if h.done != nil {
		select {
		case <-h.done:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// IsPaused returns whether the toggle is currently in the paused position
func (h *HotkeyManager) IsPaused() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused
}

func (h *HotkeyManager) togglePause() {
	h.mu.Lock()
	paused := h.paused
	h.mu.Unlock()

	var err error
	if paused {
		err = h.controls.Resume()
	} else {
		err = h.controls.Pause()
	}
	if err != nil {
		h.report(err)
		return
	}

	h.mu.Lock()
	h.paused = !paused
	h.mu.Unlock()
}

func (h *HotkeyManager) report(err error) {
	if err != nil && h.onError != nil {
		h.onError(err)
	}
}

func registerHotkey(s string) (*hotkey.Hotkey, error) {
	mods, key, err := parseHotkey(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hotkey: %w", err)
	}
	hk := hotkey.New(mods, key)
	if err := hk.Register(); err != nil {
		return nil, fmt.Errorf("failed to register hotkey: %w", err)
	}
	return hk, nil
}

// parseHotkey parses a hotkey string like "ctrl+shift+f9" into modifiers and key
func parseHotkey(s string) ([]hotkey.Modifier, hotkey.Key, error) {
	parts := strings.Split(strings.ToLower(s), "+")
	if len(parts) == 0 {
		return nil, 0, fmt.Errorf("empty hotkey string")
	}

	var mods []hotkey.Modifier
	var key hotkey.Key
	var keyFound bool

	for _, part := range parts {
		part = strings.TrimSpace(part)
		switch part {
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		case "alt":
			mods = append(mods, modAlt())
		case "cmd", "command", "super", "win":
			mods = append(mods, modSuper())
		default:
			if keyFound {
				return nil, 0, fmt.Errorf("multiple keys specified")
			}
			k, err := parseKey(part)
			if err != nil {
				return nil, 0, err
			}
			key = k
			keyFound = true
		}
	}

	if !keyFound {
		return nil, 0, fmt.Errorf("no key specified")
	}

	return mods, key, nil
}

var keyNames = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"escape": hotkey.KeyEscape,
	"esc":    hotkey.KeyEscape,
	"a":      hotkey.KeyA,
	"b":      hotkey.KeyB,
	"c":      hotkey.KeyC,
	"d":      hotkey.KeyD,
	"e":      hotkey.KeyE,
	"f":      hotkey.KeyF,
	"g":      hotkey.KeyG,
	"h":      hotkey.KeyH,
	"i":      hotkey.KeyI,
	"j":      hotkey.KeyJ,
	"k":      hotkey.KeyK,
	"l":      hotkey.KeyL,
	"m":      hotkey.KeyM,
	"n":      hotkey.KeyN,
	"o":      hotkey.KeyO,
	"p":      hotkey.KeyP,
	"q":      hotkey.KeyQ,
	"r":      hotkey.KeyR,
	"s":      hotkey.KeyS,
	"t":      hotkey.KeyT,
	"u":      hotkey.KeyU,
	"v":      hotkey.KeyV,
	"w":      hotkey.KeyW,
	"x":      hotkey.KeyX,
	"y":      hotkey.KeyY,
	"z":      hotkey.KeyZ,
	"0":      hotkey.Key0,
	"1":      hotkey.Key1,
	"2":      hotkey.Key2,
	"3":      hotkey.Key3,
	"4":      hotkey.Key4,
	"5":      hotkey.Key5,
	"6":      hotkey.Key6,
	"7":      hotkey.Key7,
	"8":      hotkey.Key8,
	"9":      hotkey.Key9,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}

// parseKey parses a key name to hotkey.Key
func parseKey(s string) (hotkey.Key, error) {
	if k, ok := keyNames[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown key: %s", s)
}
