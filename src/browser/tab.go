package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"ai-book-reader/src/page"
)

// Tab is one browser tab. It implements page.Page; every call is bounded by
// the tab timeout and by the caller's context.
type Tab struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

var _ page.Page = (*Tab)(nil)

func newTab(ctx context.Context, cancel context.CancelFunc, timeout time.Duration) *Tab {
	return &Tab{ctx: ctx, cancel: cancel, timeout: timeout}
}

func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url in the tab.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	return t.run(ctx, chromedp.Navigate(url))
}

type elementResult struct {
	Found    bool   `json:"found"`
	Disabled bool   `json:"disabled"`
	Error    string `json:"error"`
}

// evalElement runs body against the first element matching selector.
// body sees the element as el and may return a result object early.
func (t *Tab) evalElement(ctx context.Context, selector, body string) (elementResult, error) {
	var res elementResult
	if err := t.run(ctx, chromedp.Evaluate(elementScript(selector, body), &res)); err != nil {
		return res, err
	}
	if res.Error != "" {
		return res, fmt.Errorf("%w %q: %s", page.ErrInvalidSelector, selector, res.Error)
	}
	return res, nil
}

// mutate is evalElement for operations that require the element.
func (t *Tab) mutate(ctx context.Context, selector, body string) error {
	res, err := t.evalElement(ctx, selector, body)
	if err != nil {
		return err
	}
	if !res.Found {
		return page.ErrNotFound
	}
	return nil
}

func (t *Tab) Query(ctx context.Context, selector string) (page.Element, error) {
	res, err := t.evalElement(ctx, selector,
		`return {found: true, disabled: !!el.disabled || el.getAttribute("aria-disabled") === "true"};`)
	if err != nil {
		return page.Element{}, err
	}
	return page.Element{Found: res.Found, Disabled: res.Disabled}, nil
}

func (t *Tab) Focus(ctx context.Context, selector string) error {
	return t.mutate(ctx, selector, `el.focus();`)
}

func (t *Tab) Click(ctx context.Context, selector string) error {
	return t.mutate(ctx, selector, `el.click();`)
}

func (t *Tab) ExecCommand(ctx context.Context, command string) error {
	var ok bool
	if err := t.run(ctx, chromedp.Evaluate(fmt.Sprintf("document.execCommand(%s)", jsString(command)), &ok)); err != nil {
		return fmt.Errorf("execCommand %s: %w", command, err)
	}
	return nil
}

func (t *Tab) Dispatch(ctx context.Context, selector string, ev page.Event) error {
	switch ev.Kind {
	case page.EventPasteShortcut:
		if err := t.Focus(ctx, selector); err != nil {
			return err
		}
		return t.run(ctx, pasteKeys(pasteModifier())...)
	case page.EventClipboardPaste:
		return t.mutate(ctx, selector, `el.dispatchEvent(new ClipboardEvent("paste", {bubbles: true, cancelable: true, clipboardData: new DataTransfer()}));`)
	case page.EventInput:
		return t.mutate(ctx, selector, `el.dispatchEvent(new InputEvent("input", {bubbles: true, composed: true}));`)
	case page.EventCustom:
		script, err := customEventScript(ev)
		if err != nil {
			return err
		}
		var dispatched bool
		return t.run(ctx, chromedp.Evaluate(script, &dispatched))
	default:
		return fmt.Errorf("unsupported event kind %s", ev.Kind)
	}
}

func (t *Tab) SetParagraph(ctx context.Context, selector, text string, replace bool) error {
	body := fmt.Sprintf(`if (%t) { el.innerHTML = ""; }
  const p = document.createElement("p");
  p.textContent = %s;
  el.appendChild(p);`, replace, jsString(text))
	return t.mutate(ctx, selector, body)
}

func (t *Tab) AppendImage(ctx context.Context, selector string, img page.Blob) error {
	src := "data:" + img.MIME + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	body := fmt.Sprintf(`const img = document.createElement("img");
  img.src = %s;
  el.appendChild(img);`, jsString(src))
	return t.mutate(ctx, selector, body)
}

func elementScript(selector, body string) string {
	return fmt.Sprintf(`(function() {
  let el;
  try { el = document.querySelector(%s); } catch (e) { return {error: String(e)}; }
  if (!el) { return {found: false}; }
  %s
  return {found: true};
})()`, jsString(selector), body)
}

func customEventScript(ev page.Event) (string, error) {
	detail := ev.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return "", fmt.Errorf("encode event detail: %w", err)
	}
	return fmt.Sprintf(`window.dispatchEvent(new CustomEvent(%s, {detail: %s}))`, jsString(ev.Name), raw), nil
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	raw, _ := json.Marshal(s)
	return string(raw)
}

func pasteModifier() input.Modifier {
	if runtime.GOOS == "darwin" {
		return input.ModifierMeta
	}
	return input.ModifierCtrl
}

// pasteKeys is the OS paste shortcut as raw key events. The "paste" editing
// command makes the browser read the system clipboard like a real keypress.
func pasteKeys(mod input.Modifier) []chromedp.Action {
	key := func(typ input.KeyType) chromedp.Action {
		return input.DispatchKeyEvent(typ).
			WithKey("v").
			WithCode("KeyV").
			WithWindowsVirtualKeyCode(86).
			WithNativeVirtualKeyCode(86).
			WithModifiers(mod).
			WithCommands([]string{"paste"})
	}
	return []chromedp.Action{key(input.KeyRawDown), key(input.KeyUp)}
}
