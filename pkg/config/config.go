package config

import "time"

// config file
type (
	Socket struct {
		Path string
		Mode string // octal, e.g. "0666"
	}

	LDAP struct {
		URIs        []string
		Bases       []string
		BindDN      string
		BindPW      string
		RootPwModDN string // administrator identity for password changes and blank-user authc
		RootPwModPW string // only handed out to callers running as root
		Timeout     time.Duration
		PageSize    int
		// TLS parameters
		StartTLS      bool
		TLSReqCert    string // never, allow, try, demand, hard
		TLSCACertFile string
		TLSCert       string
		TLSKey        string
	}

	PAM struct {
		AuthzSearch string
	}

	// Map names the directory attributes and filters used for lookups
	Map struct {
		UID           string
		LastChange    string
		PasswdFilter  string
		GroupFilter   string
		UIDNumber     string
		GIDNumber     string
		Gecos         string
		HomeDirectory string
		LoginShell    string
		CN            string
		MemberUID     string
		UserPassword  string // empty: never expose password hashes
	}

	API struct {
		Cert      string
		Enabled   bool
		Internals bool
		Key       string
		Listen    string
		TLS       bool
	}

	Tracing struct {
		Enabled      bool
		GRPCEndpoint string
		HTTPEndpoint string
	}

	Config struct {
		Debug              bool
		Syslog             bool
		StructuredLog      bool
		WatchConfig        bool
		Socket             Socket
		LDAP               LDAP
		PAM                PAM
		Map                Map
		API                API
		Tracing            Tracing
		ConfigFile         string `toml:"-"` // where the config was loaded from
	}
)

const (
	DefaultSocketPath   = "/var/run/nslcd/socket"
	DefaultSocketMode   = "0666"
	DefaultTimeout      = 10 * time.Second
	DefaultUID          = "uid"
	DefaultLastChange   = "shadowLastChange"
	DefaultPasswdFilter = "(objectClass=posixAccount)"
	DefaultGroupFilter  = "(objectClass=posixGroup)"
)

// SetDefaults fills in every unset field with its default value
func (c *Config) SetDefaults() {
	if c.Socket.Path == "" {
		c.Socket.Path = DefaultSocketPath
	}
	if c.Socket.Mode == "" {
		c.Socket.Mode = DefaultSocketMode
	}
	if c.LDAP.Timeout == 0 {
		c.LDAP.Timeout = DefaultTimeout
	}
	if c.LDAP.TLSReqCert == "" {
		c.LDAP.TLSReqCert = "demand"
	}
	m := &c.Map
	if m.UID == "" {
		m.UID = DefaultUID
	}
	if m.LastChange == "" {
		m.LastChange = DefaultLastChange
	}
	if m.PasswdFilter == "" {
		m.PasswdFilter = DefaultPasswdFilter
	}
	if m.GroupFilter == "" {
		m.GroupFilter = DefaultGroupFilter
	}
	if m.UIDNumber == "" {
		m.UIDNumber = "uidNumber"
	}
	if m.GIDNumber == "" {
		m.GIDNumber = "gidNumber"
	}
	if m.Gecos == "" {
		m.Gecos = "gecos"
	}
	if m.HomeDirectory == "" {
		m.HomeDirectory = "homeDirectory"
	}
	if m.LoginShell == "" {
		m.LoginShell = "loginShell"
	}
	if m.CN == "" {
		m.CN = "cn"
	}
	if m.MemberUID == "" {
		m.MemberUID = "memberUid"
	}
}
