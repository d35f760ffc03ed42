package handler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/glauth/nslcd/pkg/config"
	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/protocol"
)

const (
	baseDN  = "dc=example,dc=org"
	aliceDN = "uid=alice,ou=people,dc=example,dc=org"
	bobDN   = "uid=bob,ou=people,dc=example,dc=org"
	carolDN = "uid=carol,ou=people,dc=example,dc=org"
	adminDN = "cn=admin,dc=example,dc=org"
)

var (
	root = Caller{UID: 0}
	user = Caller{UID: 1000}
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LDAP.Bases = []string{baseDN}
	cfg.SetDefaults()
	return cfg
}

// newTestHandler returns the concrete handler so tests can pin the clock and
// the host names. Log output is collected in the returned buffer.
func newTestHandler(cfg *config.Config, dir directory.Directory) (*nslcdHandler, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := zerolog.New(buf).Level(zerolog.DebugLevel)
	h := NewHandler(Config(cfg), Directory(dir), Logger(&log)).(*nslcdHandler)
	h.hostname = func() (string, error) { return "client", nil }
	h.fqdn = func() (string, bool) { return "client.example.org", true }
	h.now = func() time.Time { return time.Unix(19000*86400+3600, 0) }
	return h, buf
}

// encode writes the request fields, strings and int32s, the way a client
// module would after the action code
func encode(t *testing.T, fields ...any) *protocol.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := protocol.NewWriter(&buf)
	for _, f := range fields {
		switch v := f.(type) {
		case string:
			w.WriteString(v)
		case int32:
			w.WriteInt32(v)
		default:
			t.Fatalf("unsupported field %T", f)
		}
	}
	require.NoError(t, w.Flush())
	return protocol.NewReader(&buf)
}

// call runs action and returns the raw response
func call(t *testing.T, h Handler, action int32, caller Caller, fields ...any) (*bytes.Buffer, error) {
	t.Helper()
	fn, ok := h.Dispatch(action)
	require.True(t, ok, "no handler for %s", protocol.ActionName(action))

	var out bytes.Buffer
	w := protocol.NewWriter(&out)
	err := fn(context.Background(), encode(t, fields...), w, caller)
	require.NoError(t, w.Flush())
	return &out, err
}

// response decodes what a handler wrote
type response struct {
	t *testing.T
	r *protocol.Reader
}

func newResponse(t *testing.T, out *bytes.Buffer, action int32) *response {
	t.Helper()
	r := protocol.NewReader(out)
	version, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, protocol.Version, version)
	got, err := r.ReadInt32()
	require.NoError(t, err)
	require.Equal(t, action, got)
	return &response{t: t, r: r}
}

func (p *response) int32() int32 {
	p.t.Helper()
	v, err := p.r.ReadInt32()
	require.NoError(p.t, err)
	return v
}

func (p *response) string() string {
	p.t.Helper()
	v, err := p.r.ReadString(1 << 16)
	require.NoError(p.t, err)
	return v
}

func (p *response) strings() []string {
	p.t.Helper()
	v, err := p.r.ReadStringList(protocol.MaxListLen, 1<<16)
	require.NoError(p.t, err)
	return v
}

func (p *response) begin() {
	p.t.Helper()
	require.Equal(p.t, protocol.ResultBegin, p.int32())
}

func (p *response) end() {
	p.t.Helper()
	require.Equal(p.t, protocol.ResultEnd, p.int32())
	_, err := p.r.ReadInt32()
	require.Error(p.t, err, "nothing may follow the end marker")
}

func TestIsValidName(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"alice", true},
		{"Alice.Smith", true},
		{"svc_backup$", true},
		{"a-b~c", true},
		{"DOMAIN\\user", true},
		{"first last", true},
		{"@admins", true},
		{"", false},
		{"-alice", false},
		{"~alice", false},
		{"\\alice", false},
		{"alice\\", false},
		{" alice", false},
		{"alice ", false},
		{"al/ice", false},
		{"al)ice", false},
		{"al*ice", false},
		{"alice\n", false},
		{strings.Repeat("a", 255), true},
		{strings.Repeat("a", 256), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.valid, IsValidName(c.name), "IsValidName(%q)", c.name)
	}
}

func TestPickFQDN(t *testing.T) {
	cases := []struct {
		hostname string
		names    []string
		want     string
	}{
		{"client", []string{"client.example.org."}, "client.example.org"},
		{"client", []string{"other.example.org", "client.example.org"}, "client.example.org"},
		{"client", []string{"localhost", "other.example.org"}, "other.example.org"},
		{"client", []string{"localhost"}, "client"},
		{"client", nil, "client"},
		{"Client", []string{"client.Example.org"}, "client.Example.org"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, pickFQDN(c.hostname, c.names), "%s %v", c.hostname, c.names)
	}
}

func TestDispatch(t *testing.T) {
	h := NewHandler()
	for _, action := range []int32{
		protocol.ActionPAMAuthc, protocol.ActionPAMAuthz, protocol.ActionPAMSessOpen,
		protocol.ActionPAMSessClose, protocol.ActionPAMPwMod,
		protocol.ActionGroupByName, protocol.ActionGroupByGID, protocol.ActionGroupAll,
		protocol.ActionPasswdByName, protocol.ActionPasswdByUID, protocol.ActionPasswdAll,
	} {
		_, ok := h.Dispatch(action)
		assert.True(t, ok, protocol.ActionName(action))
	}
	_, ok := h.Dispatch(0x7fff0001)
	assert.False(t, ok)
}

func TestSessions(t *testing.T) {
	ctrl := gomock.NewController(t)
	// sessions never reach the directory
	h, _ := newTestHandler(testConfig(), directory.NewMockDirectory(ctrl))

	out, err := call(t, h, protocol.ActionPAMSessOpen, user, "alice", aliceDN, "sshd", "pts/0", "remote", "alice", int32(0))
	require.NoError(t, err)
	res := newResponse(t, out, protocol.ActionPAMSessOpen)
	res.begin()
	assert.Equal(t, int32(12345), res.int32())
	res.end()

	out, err = call(t, h, protocol.ActionPAMSessClose, user, "alice", aliceDN, "sshd", "pts/0", "remote", "alice", int32(12345))
	require.NoError(t, err)
	res = newResponse(t, out, protocol.ActionPAMSessClose)
	res.begin()
	assert.Equal(t, int32(0), res.int32())
	res.end()
}

func TestOversizedFieldIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	h, _ := newTestHandler(testConfig(), directory.NewMockDirectory(ctrl))

	out, err := call(t, h, protocol.ActionPAMAuthc, user, "alice", "", strings.Repeat("s", 64), "secret")
	assert.ErrorIs(t, err, protocol.ErrFieldTooLong)
	assert.Zero(t, out.Len(), "nothing is written for a request that could not be read")
}

// searchReturns makes sess answer one search with entries
func searchReturns(sess *directory.MockSession, entries ...*directory.Entry) *gomock.Call {
	return sess.EXPECT().Search(gomock.Any(), gomock.Any()).Return(entries, nil)
}

func entry(dn string, attrs ...string) *directory.Entry {
	e := &directory.Entry{DN: dn, Attributes: map[string][]string{}}
	for i := 0; i+1 < len(attrs); i += 2 {
		e.Attributes[attrs[i]] = append(e.Attributes[attrs[i]], attrs[i+1])
	}
	return e
}

func invalidCredentials() error {
	return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
}
