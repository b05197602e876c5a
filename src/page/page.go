// Package page defines the narrow contract the automation core uses to
// observe and manipulate the hosted chat page.
package page

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by element operations when the selector matches nothing.
var ErrNotFound = errors.New("element not found")

// ErrInvalidSelector is wrapped by Query when the page's selector engine
// rejects the selector itself. Any other Query error means the page could
// not be observed.
var ErrInvalidSelector = errors.New("invalid selector")

// Element is the observable part of a matched DOM element.
type Element struct {
	Found    bool
	Disabled bool
}

// EventKind selects a synthetic event.
type EventKind int

const (
	// EventPasteShortcut is the OS paste key combination (Ctrl+V / Cmd+V).
	EventPasteShortcut EventKind = iota
	// EventClipboardPaste is a DOM "paste" ClipboardEvent.
	EventClipboardPaste
	// EventInput is a bubbling, composed "input" event.
	EventInput
	// EventCustom is a window-level CustomEvent named by Event.Name.
	EventCustom
)

func (k EventKind) String() string {
	switch k {
	case EventPasteShortcut:
		return "paste-shortcut"
	case EventClipboardPaste:
		return "clipboard-paste"
	case EventInput:
		return "input"
	case EventCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Blob is one typed item of clipboard data.
type Blob struct {
	MIME string
	Data []byte
}

// IsImage reports whether the blob carries image data.
func (b Blob) IsImage() bool { return strings.HasPrefix(b.MIME, "image/") }

// Event is a synthetic event to dispatch.
type Event struct {
	Kind   EventKind
	Name   string
	Detail map[string]any
}

// Page is the host page accessor. Implementations must not block beyond
// their own per-call timeout and must honour ctx.
type Page interface {
	// Query evaluates one selector against the live document. A selector
	// the query engine rejects returns an error wrapping ErrInvalidSelector.
	Query(ctx context.Context, selector string) (Element, error)
	// Focus focuses the first element matching selector.
	Focus(ctx context.Context, selector string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// ExecCommand runs document.execCommand(command).
	ExecCommand(ctx context.Context, command string) error
	// Dispatch fires ev at the first element matching selector. Custom
	// events ignore selector and target the window.
	Dispatch(ctx context.Context, selector string, ev Event) error
	// SetParagraph writes text as a paragraph inside the element, clearing
	// existing content first when replace is true.
	SetParagraph(ctx context.Context, selector, text string, replace bool) error
	// AppendImage appends an <img> carrying the blob's bytes to the element.
	AppendImage(ctx context.Context, selector string, img Blob) error
}
