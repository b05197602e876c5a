package singleinstance

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"

	statusSuccess = "SUCCESS\n"
	statusError   = "ERROR\n"

	handshakeTimeout = 3 * time.Second
)

// tcpServer accepts delegated requests on a loopback port. PING probes are
// answered inline; everything else is queued for Next.
type tcpServer struct {
	mu       sync.Mutex
	lis      net.Listener
	requests chan *tcpConn
	closed   bool
	log      logrus.FieldLogger
}

func newTcpServer() *tcpServer {
	return &tcpServer{
		requests: make(chan *tcpConn, 8),
		log:      logrus.WithField("component", "singleinstance"),
	}
}

// Start binds the first port of the range. An occupied port is an error, so
// only one resident ever answers.
func (s *tcpServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil
	}
	start, _ := getPortRange()
	addr := net.JoinHostPort(residentHost, strconv.Itoa(start))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.WithError(err).WithField("addr", addr).Warn("bind failed")
		return err
	}
	s.lis = lis
	s.log.WithField("addr", lis.Addr().String()).Info("listening")
	go s.serve(ctx, lis)
	return nil
}

func (s *tcpServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis == nil {
		return 0
	}
	return s.lis.Addr().(*net.TCPAddr).Port
}

func (s *tcpServer) serve(ctx context.Context, lis net.Listener) {
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		go s.handshake(ctx, c)
	}
}

// handshake reads the request line and either answers it or queues the
// connection for the owner.
func (s *tcpServer) handshake(ctx context.Context, c net.Conn) {
	log := s.log.WithField("remote", c.RemoteAddr().String())
	_ = c.SetDeadline(time.Now().Add(handshakeTimeout))
	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil && line == "" {
		_ = c.Close()
		return
	}
	tc := &tcpConn{c: c, w: bufio.NewWriter(c)}

	if line == pingRequest {
		log.Debug("PING -> PONG")
		_ = tc.write(pongResponse, "")
		_ = c.Close()
		return
	}
	req, err := parseRequest(line)
	if err != nil {
		log.WithError(err).Debug("rejected request")
		_ = tc.RespondError(err.Error())
		_ = c.Close()
		return
	}
	tc.r = req
	// Runs may take minutes; the reply has no deadline.
	_ = c.SetDeadline(time.Time{})
	log.WithField("command", req.Command).Debug("request")

	select {
	case s.requests <- tc:
	case <-ctx.Done():
		_ = c.Close()
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case tc := <-s.requests:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.lis != nil {
		return s.lis.Close()
	}
	return nil
}

type tcpConn struct {
	c net.Conn
	r Request
	w *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) RespondSuccess(text string) error { return tc.write(statusSuccess, text) }

func (tc *tcpConn) RespondError(msg string) error { return tc.write(statusError, msg) }

func (tc *tcpConn) write(status, body string) error {
	if _, err := tc.w.WriteString(status + body); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }
