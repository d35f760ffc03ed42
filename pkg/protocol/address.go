package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// Address families as used on the wire
const (
	FamilyInet  int32 = 2
	FamilyInet6 int32 = 10
)

var ErrBadAddress = errors.New("protocol: unparseable address")

// WriteAddress writes an address record: family, length, raw bytes. An
// address that does not parse is still written, as family -1 and length 0,
// so the surrounding list stays aligned; ErrBadAddress is returned so the
// caller can log it. Address records are reserved for the hosts and
// networks maps.
func (w *Writer) WriteAddress(addr string) error {
	ip := net.ParseIP(addr)
	if ip == nil {
		w.WriteInt32(-1)
		w.WriteInt32(0)
		return fmt.Errorf("%w: %q", ErrBadAddress, addr)
	}
	if v4 := ip.To4(); v4 != nil {
		w.WriteInt32(FamilyInet)
		w.WriteInt32(net.IPv4len)
		w.write(v4)
		return nil
	}
	w.WriteInt32(FamilyInet6)
	w.WriteInt32(net.IPv6len)
	w.write(ip.To16())
	return nil
}

func (w *Writer) write(b []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.w.Write(b)
}

// ReadAddress reads an address record. Unknown families and lengths that do
// not fit the family are framing errors.
func (r *Reader) ReadAddress() (net.IP, error) {
	family, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	var want int
	switch family {
	case FamilyInet:
		want = net.IPv4len
	case FamilyInet6:
		want = net.IPv6len
	default:
		return nil, fmt.Errorf("%w: incorrect address family %d", ErrFraming, family)
	}
	if n <= 0 || int(n) > MaxAddressLen || int(n) != want {
		return nil, fmt.Errorf("%w: address length %d", ErrFraming, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return net.IP(b), nil
}
