package clipboard

import (
	"errors"
	"sync"

	"golang.design/x/clipboard"

	"ai-book-reader/src/page"
)

// ErrUnavailable is returned when the system clipboard could not be initialised.
var ErrUnavailable = errors.New("clipboard unavailable")

// System is the process-wide system clipboard. Writes and reads are
// serialised so a capture never interleaves with a paste read.
type System struct {
	mu    sync.Mutex
	ready bool
}

// Init prepares the system clipboard. Until it succeeds every operation
// returns ErrUnavailable.
func (s *System) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := clipboard.Init(); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// WriteImage places PNG bytes on the clipboard.
func (s *System) WriteImage(png []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrUnavailable
	}
	if len(png) == 0 {
		return errors.New("empty clipboard image")
	}
	clipboard.Write(clipboard.FmtImage, png)
	return nil
}

// ReadItems returns the clipboard contents as typed blobs, image first.
func (s *System) ReadItems() ([]page.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, ErrUnavailable
	}
	var items []page.Blob
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		items = append(items, page.Blob{MIME: "image/png", Data: img})
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		items = append(items, page.Blob{MIME: "text/plain", Data: text})
	}
	return items, nil
}
