package worker

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-book-reader/src/automation"
	"ai-book-reader/src/session"
)

func TestSubmitRunsTaskAndCallsBack(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := New(log)
	defer p.Close()

	done := make(chan session.Result, 1)
	ok := p.Submit(context.Background(), func(ctx context.Context) session.Result {
		return session.Result{RunID: "r1", Outcome: automation.Result(automation.CodeSuccess)}
	}, func(r session.Result) { done <- r })
	require.True(t, ok)

	select {
	case r := <-done:
		assert.Equal(t, "r1", r.RunID)
		assert.True(t, r.Outcome.OK())
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestSubmitAppliesBackPressure(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := New(log)

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := func(ctx context.Context) session.Result {
		close(started)
		<-release
		return session.Result{}
	}
	idle := func(ctx context.Context) session.Result { return session.Result{} }

	require.True(t, p.Submit(context.Background(), blocking, nil))
	<-started
	require.True(t, p.Submit(context.Background(), idle, nil), "queue slot is free while the worker runs")
	assert.False(t, p.Submit(context.Background(), idle, nil), "queue is full")

	close(release)
	p.Close()
}

func TestCancelledTaskStillReports(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := New(log)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan session.Result, 1)
	require.True(t, p.Submit(ctx, func(ctx context.Context) session.Result {
		return session.Result{Outcome: automation.Failure(ctx.Err())}
	}, func(r session.Result) { done <- r }))

	r := <-done
	assert.Equal(t, automation.CodeError, r.Outcome.Code)
}
