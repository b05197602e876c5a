package singleinstance

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freePortRange points the port range at a single free loopback port.
func freePortRange(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := lis.Addr().(*net.TCPAddr).Port
	require.NoError(t, lis.Close())
	t.Setenv(PortStartEnvVar, fmt.Sprint(port))
	t.Setenv(PortEndEnvVar, fmt.Sprint(port))
	return port
}

func startServer(t *testing.T, ctx context.Context) Server {
	t.Helper()
	freePortRange(t)
	srv := NewServer()
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestServerClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t, ctx)

	type reply struct {
		text string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		text, err := NewClient().Delegate(ctx, Request{Command: CommandOpen, Arg: "/books/My Book.pdf"})
		done <- reply{text, err}
	}()

	conn, err := srv.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, Request{Command: CommandOpen, Arg: "/books/My Book.pdf"}, conn.Request())
	require.NoError(t, conn.RespondSuccess("opened My Book"))
	require.NoError(t, conn.Close())

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "opened My Book", r.text)
}

func TestDelegateErrorReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t, ctx)

	done := make(chan error, 1)
	go func() {
		_, err := NewClient().Delegate(ctx, Request{Command: CommandExplain})
		done <- err
	}()

	conn, err := srv.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.RespondError("Busy, please retry"))
	require.NoError(t, conn.Close())
	assert.EqualError(t, <-done, "Busy, please retry")
}

func TestDetectResidentPort(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv := startServer(t, ctx)

	port, ok := DetectResidentPort(ctx)
	require.True(t, ok)
	assert.Equal(t, srv.Port(), port)
}

func TestDelegateWithoutResident(t *testing.T) {
	freePortRange(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := NewClient().Delegate(ctx, Request{Command: CommandStatus})
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestDelegateSkipsSilentListenerQuickly(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("loopback unavailable in this environment: %v", err)
	}
	defer lis.Close()
	port := lis.Addr().(*net.TCPAddr).Port
	t.Setenv(PortStartEnvVar, fmt.Sprint(port))
	t.Setenv(PortEndEnvVar, fmt.Sprint(port))

	prev := probeTimeout
	probeTimeout = 100 * time.Millisecond
	t.Cleanup(func() { probeTimeout = prev })

	// The caller's long deadline must not stretch the handshake.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	started := time.Now()
	_, err = NewClient().Delegate(ctx, Request{Command: CommandExplain})
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.Less(t, time.Since(started), 5*time.Second)
}

func TestParseRequest(t *testing.T) {
	req, err := parseRequest("open /a b/c.pdf\r\n")
	require.NoError(t, err)
	assert.Equal(t, Request{Command: CommandOpen, Arg: "/a b/c.pdf"}, req)

	req, err = parseRequest("STATUS\n")
	require.NoError(t, err)
	assert.Equal(t, CommandStatus, req.Command)
	assert.Equal(t, "STATUS\n", req.line())

	_, err = parseRequest("STDOUT\n")
	assert.Error(t, err)
}

func TestPortRangeClamps(t *testing.T) {
	t.Setenv(PortStartEnvVar, "80")
	t.Setenv(PortEndEnvVar, "70000")
	start, end := PortRange()
	assert.Equal(t, 1024, start)
	assert.Equal(t, 65535, end)

	t.Setenv(PortStartEnvVar, "50010")
	t.Setenv(PortEndEnvVar, "50000")
	start, end = PortRange()
	assert.Equal(t, 50000, start)
	assert.Equal(t, 50010, end)

	t.Setenv(PortStartEnvVar, "junk")
	t.Setenv(PortEndEnvVar, "")
	start, end = PortRange()
	assert.Equal(t, defaultPortStart, start)
	assert.Equal(t, defaultPortEnd, end)
}
