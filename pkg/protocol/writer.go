package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
)

// Writer encodes response or request fields. The first write error sticks:
// later writes become no-ops and Flush reports it.
type Writer struct {
	w   *bufio.Writer
	buf [4]byte
	err error
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) WriteInt32(v int32) {
	if w.err != nil {
		return
	}
	binary.BigEndian.PutUint32(w.buf[:], uint32(v))
	_, w.err = w.w.Write(w.buf[:])
}

func (w *Writer) WriteString(s string) {
	w.WriteInt32(int32(len(s)))
	if w.err != nil || len(s) == 0 {
		return
	}
	_, w.err = w.w.WriteString(s)
}

func (w *Writer) WriteStringList(list []string) {
	w.WriteInt32(int32(len(list)))
	for _, s := range list {
		w.WriteString(s)
	}
}

// WriteHeader starts a response for action
func (w *Writer) WriteHeader(action int32) {
	w.WriteInt32(Version)
	w.WriteInt32(action)
}

// Begin marks the start of a result record
func (w *Writer) Begin() {
	w.WriteInt32(ResultBegin)
}

// End terminates the list of result records
func (w *Writer) End() {
	w.WriteInt32(ResultEnd)
}

func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}
