// Package ldaptest runs a small in-memory LDAP directory for tests.
package ldaptest

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/glauth/ldap"
)

var errNoSuchObject = errors.New("no such object")

// Entry is one directory object. Password, when set, is what a simple bind
// as DN has to present.
type Entry struct {
	DN       string
	Password string
	Attrs    map[string][]string
}

type Server struct {
	URI string

	mu      sync.Mutex
	entries []Entry
	binds   []string

	l  *ldap.Server
	ln net.Listener
}

// NewServer starts a directory on a loopback port serving entries. It is
// stopped when the test finishes.
func NewServer(t testing.TB, entries ...Entry) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		URI:     "ldap://" + ln.Addr().String(),
		entries: entries,
		l:       ldap.NewServer(),
		ln:      ln,
	}
	s.l.EnforceLDAP = true
	s.l.BindFunc("", s)
	s.l.SearchFunc("", s)
	go func() { _ = s.l.Serve(ln) }()

	t.Cleanup(func() {
		s.l.Quit <- true
		_ = s.ln.Close()
	})
	return s
}

// Binds lists the DNs of every bind attempt, successful or not
func (s *Server) Binds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.binds...)
}

// SetPassword changes the bind password of dn
func (s *Server) SetPassword(dn, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if strings.EqualFold(s.entries[i].DN, dn) {
			s.entries[i].Password = password
		}
	}
}

func (s *Server) Bind(bindDN, bindSimplePw string, conn net.Conn) (ldap.LDAPResultCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.binds = append(s.binds, bindDN)
	for _, e := range s.entries {
		if strings.EqualFold(e.DN, bindDN) && e.Password != "" && e.Password == bindSimplePw {
			return ldap.LDAPResultSuccess, nil
		}
	}
	return ldap.LDAPResultInvalidCredentials, nil
}

func (s *Server) Search(boundDN string, req ldap.SearchRequest, conn net.Conn) (ldap.ServerSearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := strings.ToLower(req.BaseDN)
	var found []*ldap.Entry
	for _, e := range s.entries {
		dn := strings.ToLower(e.DN)
		if req.Scope == ldap.ScopeBaseObject {
			if dn != base {
				continue
			}
		} else if dn != base && !strings.HasSuffix(dn, ","+base) {
			continue
		}
		entry := &ldap.Entry{DN: e.DN}
		for name, values := range e.Attrs {
			entry.Attributes = append(entry.Attributes, &ldap.EntryAttribute{Name: name, Values: values})
		}
		found = append(found, entry)
	}
	if req.Scope == ldap.ScopeBaseObject && len(found) == 0 {
		return ldap.ServerSearchResult{ResultCode: ldap.LDAPResultNoSuchObject}, errNoSuchObject
	}
	return ldap.ServerSearchResult{Entries: found, Referrals: []string{}, Controls: []ldap.Control{}, ResultCode: ldap.LDAPResultSuccess}, nil
}
