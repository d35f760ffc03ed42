package directory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
)

//go:generate mockgen -build_flags=--mod=mod -package directory -destination ./mock_directory.go -source=./directory.go

func TestEntryValuesIgnoreCase(t *testing.T) {
	e := &Entry{
		DN: "uid=alice,ou=people,dc=example,dc=org",
		Attributes: map[string][]string{
			"uidNumber":  {"1000"},
			"memberUid":  {"bob", "carol"},
			"loginShell": {},
		},
	}

	assert.Equal(t, []string{"1000"}, e.Values("uidnumber"))
	assert.Equal(t, "bob", e.Value("MEMBERUID"))
	assert.Equal(t, "", e.Value("gecos"))
	assert.True(t, e.Has("loginShell"))
	assert.False(t, e.Has("gecos"))
}

func TestRDNValue(t *testing.T) {
	cases := []struct {
		dn    string
		attr  string
		value string
		ok    bool
	}{
		{"uid=alice,ou=people,dc=example,dc=org", "uid", "alice", true},
		{"UID=alice,ou=people,dc=example,dc=org", "uid", "alice", true},
		{"cn=Alice Smith+uid=asmith,ou=people,dc=example,dc=org", "uid", "asmith", true},
		{"cn=alice,ou=people,dc=example,dc=org", "uid", "", false},
		{"not a dn", "uid", "", false},
		{"", "uid", "", false},
	}
	for _, c := range cases {
		t.Run(c.dn, func(t *testing.T) {
			e := &Entry{DN: c.dn}
			v, ok := e.RDNValue(c.attr)
			assert.Equal(t, c.ok, ok)
			assert.Equal(t, c.value, v)
		})
	}
}

func TestResultCode(t *testing.T) {
	assert.Equal(t, uint16(ldap.LDAPResultSuccess), ResultCode(nil))
	assert.Equal(t, uint16(ldap.LDAPResultOther), ResultCode(errors.New("plain")))

	wrapped := fmt.Errorf("bind: %w", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("nope")))
	assert.Equal(t, uint16(ldap.LDAPResultInvalidCredentials), ResultCode(wrapped))

	assert.Equal(t, uint16(ldap.LDAPResultUnavailable), ResultCode(Unavailable(errors.New("down"))))
	assert.True(t, IsNoSuchObject(ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone"))))
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "Invalid Credentials", ResultText(ldap.LDAPResultInvalidCredentials))
	assert.Equal(t, "Unknown error", ResultText(9999))
}
