package handler

import (
	"net"
	"os"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

// MaxFilterLen bounds an expanded authorisation filter, and so also any
// single escaped value
const MaxFilterLen = 1023

// PolicyContext holds the variables available to the authorisation filter
// template. Values are escaped for use in a search filter when they are
// set; nothing unescaped can be resolved from it.
type PolicyContext struct {
	values map[string]string
	log    *zerolog.Logger
}

func NewPolicyContext(log *zerolog.Logger) *PolicyContext {
	return &PolicyContext{values: make(map[string]string), log: log}
}

// Set escapes value and stores it under name. A value that would not fit a
// filter once escaped is left out.
func (p *PolicyContext) Set(name, value string) {
	escaped := ldap.EscapeFilter(value)
	if len(escaped) > MaxFilterLen {
		p.log.Error().Str("variable", name).Int("length", len(escaped)).Msg("escaped value does not fit, variable left unset")
		return
	}
	p.values[name] = escaped
}

func (p *PolicyContext) Resolve(name string) (string, bool) {
	v, ok := p.values[name]
	return v, ok
}

// Close drops every value. The context resolves nothing afterwards.
func (p *PolicyContext) Close() {
	for k := range p.values {
		delete(p.values, k)
	}
}

var (
	fqdnOnce  sync.Once
	fqdnValue string
	fqdnOK    bool
)

// cachedFQDN determines the fully qualified name of this host once per
// process
func cachedFQDN() (string, bool) {
	fqdnOnce.Do(func() {
		fqdnValue, fqdnOK = lookupFQDN()
	})
	return fqdnValue, fqdnOK
}

func lookupFQDN() (string, bool) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", false
	}
	var names []string
	if cname, err := net.LookupCNAME(hostname); err == nil {
		names = append(names, cname)
	}
	if addrs, err := net.LookupHost(hostname); err == nil {
		for _, addr := range addrs {
			if rev, err := net.LookupAddr(addr); err == nil {
				names = append(names, rev...)
			}
		}
	}
	return pickFQDN(hostname, names), true
}

// pickFQDN prefers a name that extends hostname with a domain, then any
// name with a dot in it, then hostname itself
func pickFQDN(hostname string, names []string) string {
	for i := range names {
		names[i] = strings.TrimSuffix(names[i], ".")
	}
	prefix := strings.ToLower(hostname) + "."
	for _, name := range names {
		if len(name) > len(prefix) && strings.HasPrefix(strings.ToLower(name), prefix) {
			return name
		}
	}
	for _, name := range names {
		if strings.Contains(name, ".") {
			return name
		}
	}
	return hostname
}
