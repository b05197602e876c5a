// Package tray shows the tray icon, its menu and status tooltips.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"
)

const DefaultTooltip = "AI Book Reader"

// Actions are the menu callbacks. Nil actions hide their menu item.
type Actions struct {
	Explain func()
	Start   func()
	Cancel  func()
	Quit    func()
}

// Tray owns the systray icon. Until Run has made it ready, tooltip updates
// are only remembered.
type Tray struct {
	mu      sync.Mutex
	ready   bool
	tooltip string
	about   string
	log     logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Tray {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tray{tooltip: DefaultTooltip, log: log}
}

// Run shows the icon and blocks until Quit. It must be called from the main
// goroutine on macOS.
func (t *Tray) Run(actions Actions) {
	systray.Run(func() { t.onReady(actions) }, func() {
		t.mu.Lock()
		t.ready = false
		t.mu.Unlock()
	})
}

func (t *Tray) onReady(actions Actions) {
	systray.SetIcon(Icon())
	systray.SetTitle("")

	t.mu.Lock()
	t.ready = true
	systray.SetTooltip(t.tooltip)
	about := t.about
	t.mu.Unlock()

	type item struct {
		title, tip string
		action     func()
	}
	items := []item{
		{"Explain current page", "Paste the page into the chat and ask for an explanation", actions.Explain},
		{"Start reading session", "Send the startup prompt", actions.Start},
		{"Cancel", "Stop the running explanation", actions.Cancel},
	}
	for _, it := range items {
		if it.action == nil {
			continue
		}
		mi := systray.AddMenuItem(it.title, it.tip)
		go func(action func()) {
			for range mi.ClickedCh {
				action()
			}
		}(it.action)
	}
	if about != "" {
		systray.AddSeparator()
		info := systray.AddMenuItem(about, "")
		info.Disable()
	}
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Quit the application")
	go func() {
		<-mQuit.ClickedCh
		if actions.Quit != nil {
			actions.Quit()
		}
		systray.Quit()
	}()
	t.log.Debug("tray ready")
}

// SetAbout adds a disabled informational line to the menu. It only takes
// effect when called before Run.
func (t *Tray) SetAbout(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.about = text
}

// SetTooltip replaces the icon tooltip.
func (t *Tray) SetTooltip(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tooltip = text
	if t.ready {
		systray.SetTooltip(text)
	}
}

const busyTooltip = DefaultTooltip + ": working..."

// SetBusy shows the busy tooltip. Clearing it restores the default only
// while the busy text is still shown, so a message that arrived during the
// run stays visible.
func (t *Tray) SetBusy(busy bool) {
	if busy {
		t.SetTooltip(busyTooltip)
		return
	}
	if t.Tooltip() == busyTooltip {
		t.SetTooltip(DefaultTooltip)
	}
}

// Tooltip returns the current tooltip text.
func (t *Tray) Tooltip() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tooltip
}

// Show implements notification.Sink by putting the message in the tooltip.
func (t *Tray) Show(title, body string) error {
	t.SetTooltip(title + ": " + body)
	return nil
}

// Quit removes the icon and makes Run return.
func (t *Tray) Quit() { systray.Quit() }
