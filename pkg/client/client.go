// Package client speaks the nslcd socket protocol from the caller's side.
// It is what the PAM and name service modules do, and is used by the
// command line tools and tests.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/glauth/nslcd/pkg/protocol"
)

const DefaultTimeout = 10 * time.Second

var (
	// ErrNoResult is returned when a PAM call got an empty response
	ErrNoResult = errors.New("client: no result record")
	// ErrNotFound is returned by single lookups that matched nothing
	ErrNotFound = errors.New("client: not found")
	// ErrNoStream is returned by Cursor.Next when the cursor is not open
	ErrNoStream = errors.New("client: no open stream")
	// ErrUnexpectedResponse means the daemon answered something else than asked
	ErrUnexpectedResponse = errors.New("client: unexpected response")
)

type Client struct {
	SocketPath string
	Timeout    time.Duration
}

func New(socketPath string, timeout time.Duration) *Client {
	return &Client{SocketPath: socketPath, Timeout: timeout}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// stream is one request and its response on a connection of its own
type stream struct {
	conn    net.Conn
	r       *protocol.Reader
	timeout time.Duration
}

// open dials the daemon, sends action with the fields written by req and
// checks the response header
func (c *Client) open(ctx context.Context, action int32, req func(w *protocol.Writer)) (*stream, error) {
	d := net.Dialer{Timeout: c.timeout()}
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return nil, err
	}
	s := &stream{conn: conn, r: protocol.NewReader(conn), timeout: c.timeout()}
	if err := s.refresh(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	w := protocol.NewWriter(conn)
	w.WriteInt32(protocol.Version)
	w.WriteInt32(action)
	if req != nil {
		req(w)
	}
	if err := w.Flush(); err != nil {
		conn.Close()
		return nil, err
	}

	version, err := s.r.ReadInt32()
	if err != nil {
		conn.Close()
		return nil, err
	}
	got, err := s.r.ReadInt32()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if version != protocol.Version || got != action {
		conn.Close()
		return nil, fmt.Errorf("%w: version %d action %s", ErrUnexpectedResponse, version, protocol.ActionName(got))
	}
	return s, nil
}

// refresh moves the connection deadline forward, never past the one of ctx
func (s *stream) refresh(ctx context.Context) error {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return s.conn.SetDeadline(deadline)
}

// next reads a record marker. It reports true when a record follows and
// false at the end of the response.
func (s *stream) next() (bool, error) {
	marker, err := s.r.ReadInt32()
	if err != nil {
		return false, err
	}
	switch marker {
	case protocol.ResultBegin:
		return true, nil
	case protocol.ResultEnd:
		return false, nil
	}
	return false, fmt.Errorf("%w: record marker %d", protocol.ErrFraming, marker)
}

func (s *stream) close() error {
	return s.conn.Close()
}

// single runs a request that answers with at most one record. ErrNoResult
// is returned for an empty response.
func single[T any](ctx context.Context, c *Client, action int32, req func(w *protocol.Writer), read func(r *protocol.Reader) (T, error)) (T, error) {
	var zero T
	s, err := c.open(ctx, action, req)
	if err != nil {
		return zero, err
	}
	defer s.close()

	ok, err := s.next()
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrNoResult
	}
	v, err := read(s.r)
	if err != nil {
		return zero, err
	}
	more, err := s.next()
	if err != nil {
		return zero, err
	}
	if more {
		return zero, fmt.Errorf("%w: more than one record", ErrUnexpectedResponse)
	}
	return v, nil
}

// fields is a short way to write string request fields
func fields(values ...string) func(w *protocol.Writer) {
	return func(w *protocol.Writer) {
		for _, v := range values {
			w.WriteString(v)
		}
	}
}
