package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrFieldTooLong = errors.New("protocol: field exceeds its maximum length")
	ErrFraming      = errors.New("protocol: malformed framing")
)

// Reader decodes request or response fields from a stream.
type Reader struct {
	r   io.Reader
	buf [4]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (r *Reader) ReadInt32() (int32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf[:])), nil
}

// ReadString reads a length-prefixed string of at most max bytes. The
// declared length is checked before anything is allocated.
func (r *Reader) ReadString(max int) (string, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative string length %d", ErrFraming, n)
	}
	if int(n) > max {
		return "", fmt.Errorf("%w: %d > %d", ErrFieldTooLong, n, max)
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStringList reads a count followed by that many strings
func (r *Reader) ReadStringList(maxItems, maxLen int) ([]string, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if n < 0 || int(n) > maxItems {
		return nil, fmt.Errorf("%w: list of %d entries", ErrFraming, n)
	}
	list := make([]string, 0, n)
	for i := int32(0); i < n; i++ {
		s, err := r.ReadString(maxLen)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

// SkipString discards one string without keeping it
func (r *Reader) SkipString() error {
	n, err := r.ReadInt32()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: negative string length %d", ErrFraming, n)
	}
	_, err = io.CopyN(io.Discard, r.r, int64(n))
	return err
}
