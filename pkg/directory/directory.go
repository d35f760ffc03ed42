// Package directory is the narrow view of the LDAP directory the request
// handlers work against: open a session, bind, search, change a password and
// replace an attribute. Everything else about the directory protocol stays
// behind this interface.
package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrNoResults is returned when a lookup of a single entry comes back empty
var ErrNoResults = ldap.NewError(ldap.LDAPResultNoResultsReturned, errors.New("no results returned"))

type Scope int

const (
	ScopeBase Scope = iota
	ScopeSubtree
)

type SearchRequest struct {
	BaseDN     string
	Scope      Scope
	Filter     string
	Attributes []string
	// SizeLimit caps the number of entries returned, 0 means no limit
	SizeLimit int
}

// Directory hands out fresh sessions. Sessions are never shared between
// requests.
type Directory interface {
	// Open returns a session bound with the configured service credentials,
	// or an anonymous one when none are configured
	Open(ctx context.Context) (Session, error)
	// OpenAs returns a session bound as dn
	OpenAs(ctx context.Context, dn, password string) (Session, error)
}

type Session interface {
	Search(ctx context.Context, req SearchRequest) ([]*Entry, error)
	PasswordModify(ctx context.Context, userDN, oldPassword, newPassword string) error
	Replace(ctx context.Context, dn, attribute string, values ...string) error
	Close() error
}

type Entry struct {
	DN         string
	Attributes map[string][]string
}

// Values returns all values of attr, matching the name case-insensitively
func (e *Entry) Values(attr string) []string {
	if v, ok := e.Attributes[attr]; ok {
		return v
	}
	for name, v := range e.Attributes {
		if strings.EqualFold(name, attr) {
			return v
		}
	}
	return nil
}

// Value returns the first value of attr or ""
func (e *Entry) Value(attr string) string {
	if v := e.Values(attr); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Has reports whether the entry carries attr at all
func (e *Entry) Has(attr string) bool {
	return e.Values(attr) != nil
}

// RDNValue returns the value of attr in the leftmost RDN of the entry's DN,
// e.g. "alice" for attr "uid" and "uid=alice,ou=people,dc=example,dc=org".
func (e *Entry) RDNValue(attr string) (string, bool) {
	dn, err := ldap.ParseDN(e.DN)
	if err != nil || len(dn.RDNs) == 0 {
		return "", false
	}
	for _, ava := range dn.RDNs[0].Attributes {
		if strings.EqualFold(ava.Type, attr) {
			return ava.Value, true
		}
	}
	return "", false
}

// ResultCode extracts the LDAP result code carried by err. A nil error is
// success; errors that did not come from the directory count as "other".
func ResultCode(err error) uint16 {
	if err == nil {
		return ldap.LDAPResultSuccess
	}
	var lerr *ldap.Error
	if errors.As(err, &lerr) {
		return lerr.ResultCode
	}
	return ldap.LDAPResultOther
}

// ResultText is the human readable description of an LDAP result code
func ResultText(code uint16) string {
	if text, ok := ldap.LDAPResultCodeMap[code]; ok {
		return text
	}
	return "Unknown error"
}

func IsNoSuchObject(err error) bool {
	return ResultCode(err) == ldap.LDAPResultNoSuchObject
}

func IsSizeLimitExceeded(err error) bool {
	return ResultCode(err) == ldap.LDAPResultSizeLimitExceeded
}

// Unavailable wraps err as a "server unavailable" directory error
func Unavailable(err error) error {
	return ldap.NewError(ldap.LDAPResultUnavailable, err)
}
