package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ai-book-reader/src/page"
	"ai-book-reader/src/selectors"
)

// ClipboardReader exposes the typed items currently on the system clipboard.
type ClipboardReader interface {
	ReadItems() ([]page.Blob, error)
}

// Injector places the clipboard image and the prompt into the composer.
// Every paste layer is best-effort: the page is not ours, so several
// independent methods are tried and individual failures are only logged.
type Injector struct {
	Page     page.Page
	Registry *selectors.Registry
	Detector *Detector
	Timing   Timing
	Sleep    Sleeper
	Log      logrus.FieldLogger

	// Clipboard, when set together with AppendClipboardImages, is read
	// directly and each image item is appended to the editor.
	Clipboard             ClipboardReader
	AppendClipboardImages bool
	// AppendPrompt keeps existing editor content instead of replacing it.
	AppendPrompt bool
}

// LocateEditor reports whether the editable surface exists.
func (in *Injector) LocateEditor(ctx context.Context) (bool, error) {
	el, err := in.Page.Query(ctx, in.Registry.Editor())
	if err != nil {
		return false, fmt.Errorf("query editor: %w", err)
	}
	return el.Found, nil
}

// Inject focuses the editor, pastes the clipboard image when withImage is
// set, waits for the page to pick it up and writes promptText. Only a
// failure to place the prompt, or ctx ending, is returned.
func (in *Injector) Inject(ctx context.Context, promptText string, withImage bool) error {
	editor := in.Registry.Editor()
	log := in.logger().WithField("editor", editor)

	if err := in.Page.Focus(ctx, editor); err != nil {
		log.WithError(err).Warn("focus editor failed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if withImage {
		in.paste(ctx, editor, log)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := in.sleep(ctx, in.Timing.PasteSettle); err != nil {
			return err
		}
		if err := in.waitUploads(ctx, log); err != nil {
			return err
		}
	}

	if promptText != "" {
		if err := in.Page.SetParagraph(ctx, editor, promptText, !in.AppendPrompt); err != nil {
			return fmt.Errorf("write prompt: %w", err)
		}
	}
	if err := in.Page.Dispatch(ctx, editor, page.Event{Kind: page.EventInput}); err != nil {
		log.WithError(err).Warn("input event failed")
	}
	log.WithField("prompt_len", len(promptText)).Debug("prompt injected")
	return ctx.Err()
}

func (in *Injector) paste(ctx context.Context, editor string, log logrus.FieldLogger) {
	if err := in.Page.ExecCommand(ctx, "paste"); err != nil {
		log.WithError(err).Debug("execCommand paste failed")
	}
	if err := in.Page.Dispatch(ctx, editor, page.Event{Kind: page.EventPasteShortcut}); err != nil {
		log.WithError(err).Debug("paste shortcut failed")
	}
	if err := in.Page.Dispatch(ctx, editor, page.Event{Kind: page.EventClipboardPaste}); err != nil {
		log.WithError(err).Debug("paste event failed")
	}
	if !in.AppendClipboardImages || in.Clipboard == nil {
		return
	}
	items, err := in.Clipboard.ReadItems()
	if err != nil {
		log.WithError(err).Debug("read clipboard failed")
		return
	}
	for _, item := range items {
		if !item.IsImage() {
			continue
		}
		if err := in.Page.AppendImage(ctx, editor, item); err != nil {
			log.WithError(err).Debug("append image failed")
		}
	}
}

// waitUploads polls the upload indicators until none is present or the
// budget runs out. Running out is not an error; the send-ready wait that
// follows has its own ceiling.
func (in *Injector) waitUploads(ctx context.Context, log logrus.FieldLogger) error {
	t := in.Timing
	if t.UploadMaxWait <= 0 || in.Detector == nil {
		return nil
	}
	attempts := int((t.UploadMaxWait + t.UploadPollInterval - 1) / t.UploadPollInterval)
	for i := 0; i < attempts; i++ {
		m, busy, err := in.Detector.First(ctx, selectors.RoleUpload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Debug("upload check failed, continuing")
			return nil
		}
		if !busy {
			return nil
		}
		if i == 0 {
			log.WithField("indicator", m.Selector).Debug("waiting for upload")
		}
		if err := in.sleep(ctx, t.UploadPollInterval); err != nil {
			return err
		}
	}
	log.WithField("max_wait", t.UploadMaxWait).Info("upload indicator still present, continuing")
	return nil
}

func (in *Injector) sleep(ctx context.Context, d time.Duration) error {
	if in.Sleep == nil {
		return Sleep(ctx, d)
	}
	return in.Sleep(ctx, d)
}

func (in *Injector) logger() logrus.FieldLogger {
	if in.Log == nil {
		return logrus.StandardLogger()
	}
	return in.Log
}
