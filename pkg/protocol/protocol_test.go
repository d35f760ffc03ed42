package protocol

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteHeader(ActionPAMAuthc)
	w.Begin()
	w.WriteString("ab")
	w.WriteInt32(-1)
	w.End()
	require.NoError(t, w.Flush())

	want := []byte{
		0, 0, 0, 1, // version
		0, 0x0d, 0, 1, // action
		0, 0, 0, 1, // begin
		0, 0, 0, 2, 'a', 'b',
		0xff, 0xff, 0xff, 0xff,
		0, 0, 0, 2, // end
	}
	assert.Equal(t, want, buf.Bytes())
}

func TestReadStringBounds(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteString(strings.Repeat("x", MaxServiceLen))
	w.WriteString(strings.Repeat("x", MaxServiceLen+1))
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	s, err := r.ReadString(MaxServiceLen)
	require.NoError(t, err)
	assert.Len(t, s, MaxServiceLen)

	_, err = r.ReadString(MaxServiceLen)
	assert.True(t, errors.Is(err, ErrFieldTooLong), "got %v", err)
}

func TestReadStringNegativeLength(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xfe}))
	_, err := r.ReadString(MaxNameLen)
	assert.True(t, errors.Is(err, ErrFraming), "got %v", err)
}

func TestReadStringTruncatedStream(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 0, 0, 5, 'a', 'b'}))
	_, err := r.ReadString(MaxNameLen)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestStringList(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteStringList([]string{"alice", "", "bob"})
	w.WriteInt32(MaxListLen + 1)
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	list, err := r.ReadStringList(MaxListLen, MaxNameLen)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "", "bob"}, list)

	_, err = r.ReadStringList(MaxListLen, MaxNameLen)
	assert.ErrorIs(t, err, ErrFraming)
}

func TestSkipString(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteString("skipped")
	w.WriteInt32(42)
	require.NoError(t, w.Flush())

	r := NewReader(&buf)
	require.NoError(t, r.SkipString())
	v, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)
}

type failingWriter struct{ n int }

func (f *failingWriter) Write(p []byte) (int, error) {
	f.n++
	return 0, errors.New("broken pipe")
}

func TestWriterErrorSticks(t *testing.T) {
	fw := &failingWriter{}
	w := NewWriter(fw)
	w.WriteString(strings.Repeat("y", 8192)) // larger than the bufio buffer
	require.Error(t, w.Err())
	w.WriteInt32(1)
	w.WriteString("more")
	assert.Error(t, w.Flush())
	assert.Equal(t, 1, fw.n, "no writes after the first failure")
}

func TestAddressRecords(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteAddress("192.0.2.7"))
	require.NoError(t, w.WriteAddress("2001:db8::1"))
	err := w.WriteAddress("not-an-address")
	assert.ErrorIs(t, err, ErrBadAddress)
	require.NoError(t, w.Flush())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	ip, err := r.ReadAddress()
	require.NoError(t, err)
	assert.True(t, ip.Equal(net.ParseIP("192.0.2.7")))
	assert.Len(t, ip, net.IPv4len)

	ip, err = r.ReadAddress()
	require.NoError(t, err)
	assert.True(t, ip.Equal(net.ParseIP("2001:db8::1")))

	// the invalid marker keeps the stream aligned but is not a valid record
	_, err = r.ReadAddress()
	assert.ErrorIs(t, err, ErrFraming)
	_, err = r.ReadInt32()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadAddressLengthMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteInt32(FamilyInet)
	w.WriteInt32(net.IPv6len)
	require.NoError(t, w.Flush())

	_, err := NewReader(&buf).ReadAddress()
	assert.ErrorIs(t, err, ErrFraming)
}

func TestActionName(t *testing.T) {
	assert.Equal(t, "pam_authc", ActionName(ActionPAMAuthc))
	assert.Equal(t, "group_all", ActionName(ActionGroupAll))
	assert.Equal(t, "0x00000063", ActionName(99))
}
