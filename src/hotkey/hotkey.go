// Package hotkey listens for one global key combination.
package hotkey

import (
	"context"
	"fmt"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
	"github.com/sirupsen/logrus"
)

// rawcodes maps key names to Windows virtual key codes, which gohook
// reports as Rawcode. Modifiers list both left and right variants.
var rawcodes = map[string][]uint16{
	"ctrl":  {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":   {164, 165}, // VK_LMENU, VK_RMENU
	"shift": {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":   {91, 92},   // VK_LWIN, VK_RWIN

	"space": {32}, "enter": {13}, "esc": {27}, "tab": {9}, "backspace": {8},
	"delete": {46}, "insert": {45}, "home": {36}, "end": {35},
	"pageup": {33}, "pagedown": {34},
	"left": {37}, "up": {38}, "right": {39}, "down": {40},
}

var aliases = map[string]string{
	"control": "ctrl", "option": "alt", "win": "cmd", "super": "cmd", "meta": "cmd",
	"return": "enter", "escape": "esc", "del": "delete", "ins": "insert",
	"pgup": "pageup", "pgdn": "pagedown",
}

func init() {
	for c := 'a'; c <= 'z'; c++ {
		rawcodes[string(c)] = []uint16{uint16(c - 'a' + 65)}
	}
	for d := 0; d <= 9; d++ {
		rawcodes[fmt.Sprint(d)] = []uint16{uint16(48 + d)}
	}
	for f := 1; f <= 24; f++ {
		rawcodes[fmt.Sprintf("f%d", f)] = []uint16{uint16(111 + f)} // VK_F1 = 112
	}
}

// parseHotkey converts "Ctrl+Alt+e" to normalized key names.
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if a, ok := aliases[part]; ok {
			part = a
		}
		keys = append(keys, part)
	}
	return keys
}

func keyNameToRawcodes(keyName string) []uint16 {
	name := strings.ToLower(strings.TrimSpace(keyName))
	if a, ok := aliases[name]; ok {
		name = a
	}
	return rawcodes[name]
}

// combo tracks which keys of a combination are held down.
type combo struct {
	mu      sync.Mutex
	keys    [][]uint16
	pressed []bool
}

func newCombo(hotkeyConfig string) (*combo, error) {
	c := &combo{}
	for _, name := range parseHotkey(hotkeyConfig) {
		codes := keyNameToRawcodes(name)
		if len(codes) == 0 {
			return nil, fmt.Errorf("hotkey %q: unknown key %q", hotkeyConfig, name)
		}
		c.keys = append(c.keys, codes)
	}
	if len(c.keys) == 0 {
		return nil, fmt.Errorf("hotkey %q: no keys", hotkeyConfig)
	}
	c.pressed = make([]bool, len(c.keys))
	return c, nil
}

// down records a key press and reports whether the full combination is now
// held. A completed combination resets so holding it fires once.
func (c *combo) down(code uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(code, true)
	for _, p := range c.pressed {
		if !p {
			return false
		}
	}
	for i := range c.pressed {
		c.pressed[i] = false
	}
	return true
}

func (c *combo) up(code uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(code, false)
}

func (c *combo) set(code uint16, v bool) {
	for i, codes := range c.keys {
		for _, rc := range codes {
			if rc == code {
				c.pressed[i] = v
			}
		}
	}
}

// Listen registers hotkeyConfig globally and calls callback on every
// activation until ctx is done. It returns once the hook is installed.
func Listen(ctx context.Context, hotkeyConfig string, callback func(), log logrus.FieldLogger) error {
	c, err := newCombo(hotkeyConfig)
	if err != nil {
		return err
	}
	evChan := gohook.Start()
	if evChan == nil {
		return fmt.Errorf("hotkey %q: global hook unavailable", hotkeyConfig)
	}
	log.WithField("hotkey", hotkeyConfig).Info("hotkey listener started")

	go func() {
		<-ctx.Done()
		gohook.End()
	}()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("hotkey listener crashed")
			}
		}()
		for ev := range evChan {
			switch ev.Kind {
			case gohook.KeyDown:
				if c.down(ev.Rawcode) {
					log.WithField("hotkey", hotkeyConfig).Debug("hotkey activated")
					callback()
				}
			case gohook.KeyUp:
				c.up(ev.Rawcode)
			}
		}
		log.Debug("hotkey event channel closed")
	}()
	return nil
}
