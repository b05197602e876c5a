package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"ai-book-reader/src/singleinstance"
)

type stressOptions struct {
	n        int
	command  string
	deadline time.Duration
}

type tally struct {
	ok, busy, failed int32
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-delegate",
		Short:         "Fire concurrent delegated requests at the resident",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			client := singleinstance.NewClient()
			return runWithOptions(*opts, req, client.Delegate, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of concurrent clients")
	cmd.Flags().StringVar(&opts.command, "command", "status", "status|explain|detect")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

func (o stressOptions) request() (singleinstance.Request, error) {
	switch strings.ToLower(o.command) {
	case "status":
		return singleinstance.Request{Command: singleinstance.CommandStatus}, nil
	case "explain":
		return singleinstance.Request{Command: singleinstance.CommandExplain}, nil
	case "detect":
		return singleinstance.Request{Command: singleinstance.CommandDetect}, nil
	}
	return singleinstance.Request{}, fmt.Errorf("unsupported command %q", o.command)
}

type delegateFunc func(ctx context.Context, req singleinstance.Request) (string, error)

func runWithOptions(opts stressOptions, req singleinstance.Request, send delegateFunc, out io.Writer) error {
	var wg sync.WaitGroup
	var t tally

	start := time.Now()
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), opts.deadline)
			defer cancel()
			t.record(send(ctx, req))
		}()
	}
	wg.Wait()
	fmt.Fprintf(out, "launched=%d ok=%d busy=%d err=%d elapsed=%s\n",
		opts.n, t.ok, t.busy, t.failed, time.Since(start).Round(time.Millisecond))
	return nil
}

func (t *tally) record(_ string, err error) {
	switch {
	case err == nil:
		atomic.AddInt32(&t.ok, 1)
	case strings.Contains(strings.ToLower(err.Error()), "busy"):
		atomic.AddInt32(&t.busy, 1)
	default:
		atomic.AddInt32(&t.failed, 1)
	}
}
