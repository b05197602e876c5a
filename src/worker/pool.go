package worker

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"ai-book-reader/src/session"
)

// Task is one unit of browser automation. It must honour ctx.
type Task func(ctx context.Context) session.Result

// ResultCallback is invoked on task completion (from a worker goroutine).
// The event loop should pass a closure that posts back into the event loop safely.
type ResultCallback func(session.Result)

// Pool runs tasks on a single goroutine with a 1-slot input queue (strict
// back-pressure): the page supports one run at a time.
type Pool struct {
	jobs chan job
	wg   sync.WaitGroup
	log  logrus.FieldLogger
}

type job struct {
	ctx  context.Context
	task Task
	cb   ResultCallback
}

// New creates a started pool.
func New(log logrus.FieldLogger) *Pool {
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Pool{jobs: make(chan job, 1), log: log}
	p.wg.Add(1)
	go p.loop()
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for j := range p.jobs {
		if err := j.ctx.Err(); err != nil {
			p.log.WithError(err).Debug("worker: task cancelled before start")
		}
		res := j.task(j.ctx)
		p.log.WithFields(logrus.Fields{"run_id": res.RunID, "outcome": res.Outcome.String()}).Debug("worker: task finished")
		if j.cb != nil {
			j.cb(res)
		}
	}
}

// Submit enqueues a task if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, task Task, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, task: task, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
