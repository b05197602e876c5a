package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-book-reader/src/page/pagetest"
)

type recordingSink struct {
	titles []string
	bodies []string
	err    error
}

func (r *recordingSink) Show(title, body string) error {
	r.titles = append(r.titles, title)
	r.bodies = append(r.bodies, body)
	return r.err
}

func TestNotifyFansOut(t *testing.T) {
	log, _ := test.NewNullLogger()
	a, b := &recordingSink{}, &recordingSink{}
	n := New(log, a, nil, b)

	n.Notify(context.Background(), "SICP")
	require.Len(t, a.bodies, 1)
	require.Len(t, b.bodies, 1)
	assert.Equal(t, "Explanation of SICP finished", a.bodies[0])
}

func TestNotifyContinuesPastFailingSink(t *testing.T) {
	log, hook := test.NewNullLogger()
	bad := &recordingSink{err: errors.New("dbus down")}
	good := &recordingSink{}
	n := New(log, bad, good)

	n.Notify(context.Background(), "SICP")
	assert.Len(t, good.bodies, 1)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestNotifyWithoutChannelDoesNotPanic(t *testing.T) {
	var n *Notifier
	assert.NotPanics(t, func() { n.Notify(context.Background(), "x") })
	assert.NotPanics(t, func() { New(nil).Notify(context.Background(), "x") })
	assert.NotPanics(t, func() { New(nil).Alert("t", "b") })
}

func TestPageEventDispatchesCustomEvent(t *testing.T) {
	p := pagetest.New()
	log, _ := test.NewNullLogger()
	plain := &recordingSink{}
	n := New(log, PageEvent{Page: p}, plain)

	n.Notify(context.Background(), "SICP")
	calls := p.CallsOf("dispatch")
	require.Len(t, calls, 1)
	assert.Equal(t, CompletionEvent+":SICP", calls[0].Arg)

	n.Alert("Stopped", "Send button not found")
	assert.Len(t, p.CallsOf("dispatch"), 1, "alerts are not page events")
	assert.Equal(t, []string{"Stopped"}, plain.titles[1:])
}

func TestPageEventWithoutPage(t *testing.T) {
	assert.Error(t, PageEvent{}.Completed(context.Background(), "x"))
}

func TestCompletionMessage(t *testing.T) {
	_, body := CompletionMessage("")
	assert.Equal(t, "Explanation finished", body)
}

func TestLogSinkWithoutLogger(t *testing.T) {
	require.NoError(t, Log{}.Show("t", "b"))
}
