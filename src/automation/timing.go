package automation

import (
	"context"
	"time"
)

// Timing holds every interval and budget of a run. Normalize replaces
// non-positive poll intervals and attempt budgets with the defaults; settle
// delays may legitimately be zero.
type Timing struct {
	SendReadyPollInterval time.Duration
	SendReadyMaxAttempts  int
	PostClickSettle       time.Duration
	MonitorPollInterval   time.Duration
	MonitorMaxAttempts    int
	PasteSettle           time.Duration
	UploadPollInterval    time.Duration
	// UploadMaxWait of zero disables upload-indicator polling.
	UploadMaxWait time.Duration
}

// DefaultTiming mirrors the values the chat page was tuned against: 30
// one-second polls for the send button and a five minute answer ceiling.
func DefaultTiming() Timing {
	return Timing{
		SendReadyPollInterval: time.Second,
		SendReadyMaxAttempts:  30,
		PostClickSettle:       time.Second,
		MonitorPollInterval:   5 * time.Second,
		MonitorMaxAttempts:    60,
		PasteSettle:           500 * time.Millisecond,
		UploadPollInterval:    100 * time.Millisecond,
	}
}

// Normalize fills unset fields from DefaultTiming.
func (t Timing) Normalize() Timing {
	d := DefaultTiming()
	if t.SendReadyPollInterval <= 0 {
		t.SendReadyPollInterval = d.SendReadyPollInterval
	}
	if t.SendReadyMaxAttempts <= 0 {
		t.SendReadyMaxAttempts = d.SendReadyMaxAttempts
	}
	if t.PostClickSettle < 0 {
		t.PostClickSettle = d.PostClickSettle
	}
	if t.MonitorPollInterval <= 0 {
		t.MonitorPollInterval = d.MonitorPollInterval
	}
	if t.MonitorMaxAttempts <= 0 {
		t.MonitorMaxAttempts = d.MonitorMaxAttempts
	}
	if t.PasteSettle < 0 {
		t.PasteSettle = d.PasteSettle
	}
	if t.UploadPollInterval <= 0 {
		t.UploadPollInterval = d.UploadPollInterval
	}
	if t.UploadMaxWait < 0 {
		t.UploadMaxWait = 0
	}
	return t
}

// Sleeper suspends the calling run for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper. It leaves no timer behind on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
