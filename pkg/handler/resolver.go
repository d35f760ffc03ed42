package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/protocol"
)

var (
	ErrInvalidName  = errors.New("invalid name")
	ErrNoSuchUser   = errors.New("no such user")
	ErrInvalidEntry = errors.New("directory entry has no valid user name")
	ErrConfigFit    = errors.New("configured value does not fit its field")
)

// DN is a distinguished name that is either already known or still has to
// be looked up from the user name
type DN struct {
	value string
	known bool
}

// UnresolvedDN asks the resolver to look the DN up
var UnresolvedDN = DN{}

func KnownDN(dn string) DN {
	return DN{value: dn, known: true}
}

// dnFromWire maps the empty string clients send for "unknown" to UnresolvedDN
func dnFromWire(dn string) DN {
	if dn == "" {
		return UnresolvedDN
	}
	return KnownDN(dn)
}

func (d DN) Get() (string, bool) {
	return d.value, d.known
}

func (d DN) String() string {
	return d.value
}

// Identity is a validated (name, dn) pair
type Identity struct {
	Name string
	DN   string
}

// IsValidName reports whether name may be used as a user or group name.
// Letters, digits, '.', '_', '$' and the '@'..'Z' range are allowed anywhere;
// '-' and '~' not as the first character; '\' and ' ' neither first nor last.
func IsValidName(name string) bool {
	if name == "" || len(name) > protocol.MaxNameLen {
		return false
	}
	last := len(name) - 1
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= '@' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '.', c == '_', c == '$':
			continue
		case i > 0 && (c == '-' || c == '~'):
			continue
		case i > 0 && i < last && (c == '\\' || c == ' '):
			continue
		}
		return false
	}
	return true
}

// fit checks that a configured value can be used for a wire field bounded
// by max
func fit(value string, max int) error {
	if len(value) > max {
		return fmt.Errorf("%w: %d > %d", ErrConfigFit, len(value), max)
	}
	return nil
}

// validateUser checks name and, when dn is not yet known, looks the user up
// and adopts the directory's spelling of the name
func (h *nslcdHandler) validateUser(ctx context.Context, log *zerolog.Logger, name string, dn DN) (Identity, error) {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.validateUser")
	defer span.End()

	if !IsValidName(name) {
		log.Warn().Str("username", name).Msg("invalid user name")
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if known, ok := dn.Get(); ok {
		return Identity{Name: name, DN: known}, nil
	}

	sess, err := h.dir.Open(ctx)
	if err != nil {
		log.Warn().Str("username", name).Err(err).Msg("user not found")
		return Identity{}, err
	}
	defer sess.Close()

	entry, err := h.uid2entry(ctx, sess, name)
	if err != nil {
		log.Warn().Str("username", name).Err(err).Msg("user not found")
		return Identity{}, err
	}
	if entry == nil {
		log.Warn().Str("username", name).Msg("user not found")
		return Identity{}, fmt.Errorf("%w: %q", ErrNoSuchUser, name)
	}
	if entry.DN == "" {
		log.Warn().Str("username", name).Msg("user has no DN")
		return Identity{}, fmt.Errorf("%w: %q has no DN", ErrNoSuchUser, name)
	}

	uidAttr := h.cfg.Map.UID
	canonical, ok := entry.RDNValue(uidAttr)
	if !ok {
		canonical = entry.Value(uidAttr)
		if canonical == "" {
			log.Warn().Str("username", name).Str("dn", entry.DN).Str("attribute", uidAttr).Msg("entry is missing the user name attribute")
		}
	}
	if !IsValidName(canonical) {
		log.Warn().Str("username", name).Str("dn", entry.DN).Msg("entry has invalid user name")
		return Identity{}, fmt.Errorf("%w: %s", ErrInvalidEntry, entry.DN)
	}
	if canonical != name {
		log.Info().Str("from", name).Str("to", canonical).Msg("username changed")
	}
	return Identity{Name: canonical, DN: entry.DN}, nil
}

// uid2entry returns the first entry under any base that carries name as its
// user name. No entry and no error means the user does not exist.
func (h *nslcdHandler) uid2entry(ctx context.Context, sess directory.Session, name string) (*directory.Entry, error) {
	filter := fmt.Sprintf("(&%s(%s=%s))", h.cfg.Map.PasswdFilter, h.cfg.Map.UID, ldap.EscapeFilter(name))
	var lastErr error
	for _, base := range h.cfg.LDAP.Bases {
		entries, err := sess.Search(ctx, directory.SearchRequest{
			BaseDN:     base,
			Scope:      directory.ScopeSubtree,
			Filter:     filter,
			Attributes: []string{h.cfg.Map.UID},
		})
		if err != nil {
			if !directory.IsNoSuchObject(err) {
				lastErr = err
			}
			continue
		}
		if len(entries) > 0 {
			return entries[0], nil
		}
	}
	return nil, lastErr
}

// dn2uid reads the user name stored for dn. On a freshly bound session it
// doubles as a check that the credentials work and the entry is readable.
func (h *nslcdHandler) dn2uid(ctx context.Context, sess directory.Session, dn string) (string, error) {
	entry, err := h.lookupEntry(ctx, sess, dn, h.cfg.Map.UID)
	if err != nil {
		return "", err
	}
	name, ok := entry.RDNValue(h.cfg.Map.UID)
	if !ok {
		name = entry.Value(h.cfg.Map.UID)
	}
	if !IsValidName(name) {
		return "", fmt.Errorf("%w: %s", ErrInvalidEntry, dn)
	}
	return name, nil
}

// lookupEntry reads dn itself
func (h *nslcdHandler) lookupEntry(ctx context.Context, sess directory.Session, dn string, attrs ...string) (*directory.Entry, error) {
	entries, err := sess.Search(ctx, directory.SearchRequest{
		BaseDN:     dn,
		Scope:      directory.ScopeBase,
		Filter:     "(objectClass=*)",
		Attributes: attrs,
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, directory.ErrNoResults
	}
	return entries[0], nil
}
