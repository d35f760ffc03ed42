package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Map.UID = "sAMAccountName"
	cfg.SetDefaults()

	assert.Equal(t, DefaultSocketPath, cfg.Socket.Path)
	assert.Equal(t, DefaultSocketMode, cfg.Socket.Mode)
	assert.Equal(t, DefaultTimeout, cfg.LDAP.Timeout)
	assert.Equal(t, "demand", cfg.LDAP.TLSReqCert)
	assert.Equal(t, "sAMAccountName", cfg.Map.UID, "explicit values must survive")
	assert.Equal(t, DefaultPasswdFilter, cfg.Map.PasswdFilter)
	assert.Equal(t, DefaultGroupFilter, cfg.Map.GroupFilter)
	assert.Equal(t, "memberUid", cfg.Map.MemberUID)
	assert.Empty(t, cfg.Map.UserPassword)
}

func TestSnapshotIsDeep(t *testing.T) {
	cfg := &Config{}
	cfg.LDAP.URIs = []string{"ldap://one"}
	cfg.LDAP.Bases = []string{"dc=example,dc=com"}
	cfg.LDAP.Timeout = 3 * time.Second

	snap, err := Snapshot(cfg)
	require.NoError(t, err)
	require.Equal(t, cfg, snap)

	cfg.LDAP.URIs[0] = "ldap://two"
	cfg.LDAP.Bases = append(cfg.LDAP.Bases, "dc=other")

	assert.Equal(t, []string{"ldap://one"}, snap.LDAP.URIs)
	assert.Equal(t, []string{"dc=example,dc=com"}, snap.LDAP.Bases)
	assert.Equal(t, 3*time.Second, snap.LDAP.Timeout)
}
