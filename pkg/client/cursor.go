package client

import (
	"context"
	"io"

	"github.com/glauth/nslcd/pkg/protocol"
)

// Cursor walks the records of an enumeration. It owns at most one open
// stream: Open on an open cursor closes the old stream before starting a new
// one. A cursor belongs to one goroutine, give every goroutine its own.
type Cursor[T any] struct {
	client *Client
	action int32
	req    func(w *protocol.Writer)
	read   func(r *protocol.Reader) (T, error)

	s *stream
}

// Open starts the enumeration from the beginning
func (c *Cursor[T]) Open(ctx context.Context) error {
	c.Close()
	s, err := c.client.open(ctx, c.action, c.req)
	if err != nil {
		return err
	}
	c.s = s
	return nil
}

// IsOpen reports whether the cursor holds a stream
func (c *Cursor[T]) IsOpen() bool {
	return c.s != nil
}

// Next returns the next record. At the end of the records it returns io.EOF
// and releases the stream. Any other error releases the stream as well.
// Without an open stream it returns ErrNoStream.
func (c *Cursor[T]) Next() (T, error) {
	var zero T
	if c.s == nil {
		return zero, ErrNoStream
	}
	if err := c.s.refresh(context.Background()); err != nil {
		c.Close()
		return zero, err
	}
	ok, err := c.s.next()
	if err != nil {
		c.Close()
		if err == io.EOF {
			// the daemon gave up without an end marker
			err = io.ErrUnexpectedEOF
		}
		return zero, err
	}
	if !ok {
		c.Close()
		return zero, io.EOF
	}
	v, err := c.read(c.s.r)
	if err != nil {
		c.Close()
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return zero, err
	}
	return v, nil
}

// Close releases the stream. It can be called any number of times.
func (c *Cursor[T]) Close() error {
	if c.s == nil {
		return nil
	}
	err := c.s.close()
	c.s = nil
	return err
}
