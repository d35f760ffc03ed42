package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vars = ResolverFunc(func(name string) (string, bool) {
	v, ok := map[string]string{
		"username": "alice",
		"service":  "sshd",
		"rhost":    "",
		"dn":       "uid=alice,ou=people,dc=example,dc=org",
	}[name]
	return v, ok
})

func TestExpand(t *testing.T) {
	cases := []struct {
		name, template, want string
	}{
		{"plain", "(objectClass=posixAccount)", "(objectClass=posixAccount)"},
		{"bare", "(uid=$username)", "(uid=alice)"},
		{"braced", "(cn=${username}_x)", "(cn=alice_x)"},
		{"bare stops at non-name char", "$username-$service", "alice-sshd"},
		{"unknown is empty", "(x=$nosuch)", "(x=)"},
		{"default used", "(host=${rhost:-localhost})", "(host=localhost)"},
		{"default skipped", "(host=${service:-none})", "(host=sshd)"},
		{"alternative used", "${service:+(svc=$service)}", "(svc=sshd)"},
		{"alternative skipped", "${rhost:+(host=$rhost)}", ""},
		{"nested default", "${rhost:-${service}}", "sshd"},
		{"escaped dollar", `price \$5`, "price $5"},
		{"escaped brace in word", `${rhost:-a\}b}`, "a}b"},
		{"full authz filter",
			"(&(objectClass=posixAccount)(uid=$username)(|(authorizedService=$service)(authorizedService=\\*)))",
			"(&(objectClass=posixAccount)(uid=alice)(|(authorizedService=sshd)(authorizedService=*)))"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Expand(c.template, vars)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestExpandSyntaxErrors(t *testing.T) {
	for _, template := range []string{
		"$",
		"($)",
		"${",
		"${}",
		"${username",
		"${username:-x",
		"${username:x}",
		"${username:",
		"${username!}",
		`trailing\`,
	} {
		t.Run(template, func(t *testing.T) {
			_, err := Expand(template, vars)
			assert.ErrorIs(t, err, ErrSyntax)
			assert.ErrorIs(t, Parse(template), ErrSyntax)
		})
	}
}

func TestVariables(t *testing.T) {
	names, err := Variables("(&(uid=$username)(host=${rhost:-$fqdn})(uid=$username))")
	require.NoError(t, err)
	assert.Equal(t, []string{"username", "rhost", "fqdn"}, names)
}

func TestNilResolver(t *testing.T) {
	got, err := Expand("(uid=$username)", nil)
	require.NoError(t, err)
	assert.Equal(t, "(uid=)", got)
}
