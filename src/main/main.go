package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ai-book-reader/src/config"
	"ai-book-reader/src/singleinstance"
)

const delegateTimeout = 10 * time.Minute

type mainOptions struct {
	debug    bool
	dataDir  string
	cdpURL   string
	headless string
}

func (o mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		Debug:            o.debug,
		DataDirOverride:  o.dataDir,
		CDPURLOverride:   o.cdpURL,
		HeadlessOverride: o.headless,
	}
}

// delegator forwards a request to the resident instance.
type delegator interface {
	Delegate(ctx context.Context, req singleinstance.Request) (string, error)
}

var newClient = func() delegator { return singleinstance.NewClient() }

func init() {
	// The tray event loop must own the main thread on macOS.
	runtime.LockOSThread()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"ai-book-reader"}
	}

	opts := &mainOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ai-book-reader [book.pdf]",
		Short:         "Read a book page by page with a hosted AI chat",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var book string
			if len(args) == 1 {
				book = args[0]
			}
			return runResident(*opts, book)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "Debug logging and devtools for every tab")
	flags.StringVar(&opts.dataDir, "data-dir", "", "Directory for the browser profile and logs")
	flags.StringVar(&opts.cdpURL, "cdp-url", "", "Attach to a running browser at this DevTools URL")
	flags.StringVar(&opts.headless, "headless", "", "Run the browser headless (true|false)")
	flags.Lookup("headless").NoOptDefVal = "true"

	cmd.AddCommand(
		newDelegateCmd("explain", "Explain the current page", singleinstance.CommandExplain),
		newDelegateCmd("start", "Send the reading-session startup prompt", singleinstance.CommandStart),
		newDelegateCmd("cancel", "Cancel the run in progress", singleinstance.CommandCancel),
		newDelegateCmd("status", "Show what the resident is doing", singleinstance.CommandStatus),
		newDelegateCmd("detect", "Print the detected chat page state", singleinstance.CommandDetect),
		newOpenCmd(),
	)
	return cmd
}

func newDelegateCmd(use, short string, command singleinstance.Command) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return delegate(cmd.Context(), cmd.OutOrStdout(), singleinstance.Request{Command: command})
		},
	}
}

func newOpenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <book.pdf>",
		Short: "Open a PDF in the reader tab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// The resident may run in another working directory.
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
			req := singleinstance.Request{Command: singleinstance.CommandOpen, Arg: path}
			return delegate(cmd.Context(), cmd.OutOrStdout(), req)
		},
	}
}

func delegate(ctx context.Context, out io.Writer, req singleinstance.Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, delegateTimeout)
	defer cancel()

	reply, err := newClient().Delegate(ctx, req)
	if errors.Is(err, singleinstance.ErrNotRunning) {
		return fmt.Errorf("%w: start ai-book-reader first", err)
	}
	if err != nil {
		return err
	}
	reply = strings.TrimRight(reply, "\n")
	if reply != "" {
		fmt.Fprintln(out, reply)
	}
	return nil
}

// normalizeLegacyArgs maps the single-dash and --enable-debug spellings of
// older builds onto the current flags.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		switch {
		case arg == "--enable-debug" || arg == "-enable-debug" || arg == "-debug":
			normalized[i] = "--debug"
		case arg == "-data-dir":
			normalized[i] = "--data-dir"
		case strings.HasPrefix(arg, "-data-dir="):
			normalized[i] = "--data-dir=" + arg[len("-data-dir="):]
		case arg == "-cdp-url":
			normalized[i] = "--cdp-url"
		case strings.HasPrefix(arg, "-cdp-url="):
			normalized[i] = "--cdp-url=" + arg[len("-cdp-url="):]
		case strings.HasPrefix(arg, "-headless="):
			normalized[i] = "--headless=" + arg[len("-headless="):]
		}
	}

	return normalized
}
