// Package pagetest provides a scripted in-memory page for exercising the
// automation core without a browser.
package pagetest

import (
	"context"
	"fmt"
	"sync"

	"ai-book-reader/src/page"
)

// DOM maps selectors to the element they currently match. Absent
// selectors match nothing.
type DOM map[string]page.Element

// Present marks an enabled element as matching.
func Present() page.Element { return page.Element{Found: true} }

// Disabled marks a disabled element as matching.
func Disabled() page.Element { return page.Element{Found: true, Disabled: true} }

// Call records one mutating or event operation.
type Call struct {
	Op       string
	Selector string
	Arg      string
}

// Page is a page.Page backed by a sequence of DOM snapshots. Advance
// moves to the next snapshot; the last one sticks.
type Page struct {
	mu      sync.Mutex
	script  []DOM
	pos     int
	invalid map[string]bool
	queries map[string]int
	calls   []Call
	// queryErr, when set, fails every Query as a lost page would.
	queryErr error

	// AfterClick, when set, runs after a successful Click while the lock is
	// not held, so it may call Advance or Replace.
	AfterClick func(selector string)
	// Err, when set, is returned by every mutating call.
	Err error
}

// New returns a page that walks through the given snapshots.
func New(script ...DOM) *Page {
	if len(script) == 0 {
		script = []DOM{{}}
	}
	return &Page{
		script:  script,
		invalid: map[string]bool{},
		queries: map[string]int{},
	}
}

// Invalid makes Query reject sel as a syntax error.
func (p *Page) Invalid(sel string) *Page {
	p.mu.Lock()
	p.invalid[sel] = true
	p.mu.Unlock()
	return p
}

// FailQueries makes every later Query return err, as a closed or crashed
// tab does. A nil err restores normal queries.
func (p *Page) FailQueries(err error) {
	p.mu.Lock()
	p.queryErr = err
	p.mu.Unlock()
}

// Advance moves to the next snapshot.
func (p *Page) Advance() {
	p.mu.Lock()
	if p.pos < len(p.script)-1 {
		p.pos++
	}
	p.mu.Unlock()
}

// Replace swaps the current snapshot.
func (p *Page) Replace(dom DOM) {
	p.mu.Lock()
	p.script[p.pos] = dom
	p.mu.Unlock()
}

// Position returns the index of the current snapshot.
func (p *Page) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Queries returns how many times sel was queried.
func (p *Page) Queries(sel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queries[sel]
}

// Calls returns a copy of the recorded operations.
func (p *Page) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallsOf returns the recorded operations named op.
func (p *Page) CallsOf(op string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (p *Page) Query(ctx context.Context, sel string) (page.Element, error) {
	if err := ctx.Err(); err != nil {
		return page.Element{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries[sel]++
	if p.invalid[sel] {
		return page.Element{}, fmt.Errorf("%w: SyntaxError: '%s' is not a valid selector", page.ErrInvalidSelector, sel)
	}
	if p.queryErr != nil {
		return page.Element{}, p.queryErr
	}
	return p.script[p.pos][sel], nil
}

func (p *Page) record(ctx context.Context, c Call, needsElement bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if needsElement && !p.script[p.pos][c.Selector].Found {
		return page.ErrNotFound
	}
	p.calls = append(p.calls, c)
	return nil
}

func (p *Page) Focus(ctx context.Context, sel string) error {
	return p.record(ctx, Call{Op: "focus", Selector: sel}, true)
}

func (p *Page) Click(ctx context.Context, sel string) error {
	if err := p.record(ctx, Call{Op: "click", Selector: sel}, true); err != nil {
		return err
	}
	if p.AfterClick != nil {
		p.AfterClick(sel)
	}
	return nil
}

func (p *Page) ExecCommand(ctx context.Context, command string) error {
	return p.record(ctx, Call{Op: "exec", Arg: command}, false)
}

func (p *Page) Dispatch(ctx context.Context, sel string, ev page.Event) error {
	arg := ev.Kind.String()
	if ev.Kind == page.EventCustom {
		arg = ev.Name
		if name, ok := ev.Detail["bookName"].(string); ok {
			arg += ":" + name
		}
		return p.record(ctx, Call{Op: "dispatch", Arg: arg}, false)
	}
	return p.record(ctx, Call{Op: "dispatch", Selector: sel, Arg: arg}, true)
}

func (p *Page) SetParagraph(ctx context.Context, sel, text string, replace bool) error {
	op := "append-text"
	if replace {
		op = "replace-text"
	}
	return p.record(ctx, Call{Op: op, Selector: sel, Arg: text}, true)
}

func (p *Page) AppendImage(ctx context.Context, sel string, img page.Blob) error {
	return p.record(ctx, Call{Op: "append-image", Selector: sel, Arg: fmt.Sprintf("%s:%d", img.MIME, len(img.Data))}, true)
}

var _ page.Page = (*Page)(nil)
