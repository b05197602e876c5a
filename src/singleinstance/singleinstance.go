// Package singleinstance lets CLI invocations delegate commands to the
// resident process over a loopback TCP endpoint.
//
// Protocol: the client sends one line "COMMAND[ argument]\n"; the resident
// answers "SUCCESS\n" or "ERROR\n" followed by free text until EOF. A bare
// "PING\n" is answered with "PONG\n" and used for discovery.
package singleinstance

import (
	"context"
	"errors"
	"strings"
)

// ErrNotRunning is returned by Delegate when no resident answered.
var ErrNotRunning = errors.New("no resident instance running")

// Command is a request the resident understands.
type Command string

const (
	CommandExplain Command = "EXPLAIN"
	CommandStart   Command = "START"
	CommandCancel  Command = "CANCEL"
	CommandStatus  Command = "STATUS"
	CommandDetect  Command = "DETECT"
	CommandOpen    Command = "OPEN"
)

var knownCommands = map[Command]bool{
	CommandExplain: true, CommandStart: true, CommandCancel: true,
	CommandStatus: true, CommandDetect: true, CommandOpen: true,
}

// Request is one delegated command.
type Request struct {
	Command Command
	// Arg is the rest of the request line, e.g. the PDF path for OPEN.
	Arg string
}

func (r Request) line() string {
	if r.Arg == "" {
		return string(r.Command) + "\n"
	}
	return string(r.Command) + " " + r.Arg + "\n"
}

// parseRequest parses one request line. Unknown commands are an error.
func parseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	cmd, arg, _ := strings.Cut(line, " ")
	req := Request{Command: Command(strings.ToUpper(strings.TrimSpace(cmd))), Arg: strings.TrimSpace(arg)}
	if !knownCommands[req.Command] {
		return Request{}, errors.New("unknown command " + strings.TrimSpace(cmd))
	}
	return req, nil
}

// Server owns the TCP endpoint and hands out client requests.
type Server interface {
	// Start binds the first port of the configured range and begins accepting.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	Request() Request
	RespondSuccess(text string) error
	RespondError(msg string) error
	Close() error
}

// Client delegates a command to a resident server.
type Client interface {
	// Delegate scans the port range, performs the handshake and sends req.
	// It returns ErrNotRunning when no resident is found. A resident ERROR
	// reply is returned as an error carrying the resident's message.
	Delegate(ctx context.Context, req Request) (string, error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }
