package notification

import (
	"context"
	"errors"

	"ai-book-reader/src/page"
)

// PageEvent dispatches the completion as a window CustomEvent inside the
// hosted page, with {bookName} as detail.
type PageEvent struct {
	Page page.Page
}

func (p PageEvent) Completed(ctx context.Context, displayName string) error {
	if p.Page == nil {
		return errors.New("page unavailable")
	}
	return p.Page.Dispatch(ctx, "", page.Event{
		Kind:   page.EventCustom,
		Name:   CompletionEvent,
		Detail: map[string]any{"bookName": displayName},
	})
}

// Show is a no-op: the page only understands completions.
func (p PageEvent) Show(title, body string) error { return nil }
