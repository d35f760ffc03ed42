package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/glauth/nslcd/pkg/stats"
)

var errNoServers = errors.New("no directory server configured")

type ldapDirectory struct {
	uris     []string
	bindDN   string
	bindPW   string
	timeout  time.Duration
	pageSize int
	startTLS bool
	tls      *tls.Config

	log    *zerolog.Logger
	tracer trace.Tracer
}

// NewLDAPDirectory returns a Directory speaking LDAP to the configured
// servers. No connection is made until a session is opened.
func NewLDAPDirectory(opts ...Option) Directory {
	options := newOptions(opts...)

	d := &ldapDirectory{
		uris:     options.URIs,
		bindDN:   options.BindDN,
		bindPW:   options.BindPW,
		timeout:  options.Timeout,
		pageSize: options.PageSize,
		startTLS: options.StartTLS,
		tls:      options.TLSConfig,
		log:      options.Logger,
		tracer:   options.Tracer,
	}
	if d.log == nil {
		nop := zerolog.Nop()
		d.log = &nop
	}
	if d.tracer == nil {
		d.tracer = noop.NewTracerProvider().Tracer("github.com/glauth/nslcd")
	}
	return d
}

func (d *ldapDirectory) Open(ctx context.Context) (Session, error) {
	if d.bindDN == "" {
		return d.open(ctx, "", "", false)
	}
	return d.open(ctx, d.bindDN, d.bindPW, true)
}

func (d *ldapDirectory) OpenAs(ctx context.Context, dn, password string) (Session, error) {
	return d.open(ctx, dn, password, true)
}

func (d *ldapDirectory) open(ctx context.Context, dn, password string, bind bool) (Session, error) {
	ctx, span := d.tracer.Start(ctx, "directory.ldapDirectory.Open")
	defer span.End()
	span.SetAttributes(attribute.String("binddn", dn))

	conn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	s := &ldapSession{conn: conn, timeout: d.timeout, pageSize: d.pageSize, log: d.log, tracer: d.tracer}
	// a cancelled request tears the connection down, which fails any
	// outstanding operation with a network error
	s.stop = context.AfterFunc(ctx, func() { conn.Close() })

	if bind {
		stats.Backend.Add("binds", 1)
		if err := conn.Bind(dn, password); err != nil {
			stats.Backend.Add("bind_errors", 1)
			d.log.Debug().Str("binddn", dn).Err(err).Msg("bind failed")
			s.Close()
			return nil, mapError(err)
		}
	}
	return s, nil
}

// dial tries every URI in order and returns the first connection that
// could be established
func (d *ldapDirectory) dial(ctx context.Context) (*ldap.Conn, error) {
	if len(d.uris) == 0 {
		return nil, Unavailable(errNoServers)
	}
	var lastErr error
	for _, uri := range d.uris {
		if err := ctx.Err(); err != nil {
			return nil, Unavailable(err)
		}
		stats.Backend.Add("dials", 1)
		conn, err := d.dialURI(uri)
		if err != nil {
			stats.Backend.Add("dial_errors", 1)
			d.log.Warn().Str("uri", uri).Err(err).Msg("failed to connect to directory server")
			lastErr = err
			continue
		}
		return conn, nil
	}
	return nil, Unavailable(fmt.Errorf("no available directory server: %w", lastErr))
}

func (d *ldapDirectory) dialURI(uri string) (*ldap.Conn, error) {
	dialer := &net.Dialer{Timeout: d.timeout}
	opts := []ldap.DialOpt{ldap.DialWithDialer(dialer)}
	if d.tls != nil && strings.HasPrefix(uri, "ldaps://") {
		opts = append(opts, ldap.DialWithTLSConfig(d.tls))
	}
	conn, err := ldap.DialURL(uri, opts...)
	if err != nil {
		return nil, err
	}
	if d.timeout > 0 {
		conn.SetTimeout(d.timeout)
	}
	if d.startTLS && strings.HasPrefix(uri, "ldap://") {
		if err := conn.StartTLS(d.startTLSConfig(uri)); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (d *ldapDirectory) startTLSConfig(uri string) *tls.Config {
	cfg := &tls.Config{}
	if d.tls != nil {
		cfg = d.tls.Clone()
	}
	if cfg.ServerName == "" {
		if u, err := url.Parse(uri); err == nil {
			cfg.ServerName = u.Hostname()
		}
	}
	return cfg
}

type ldapSession struct {
	conn     *ldap.Conn
	stop     func() bool
	timeout  time.Duration
	pageSize int

	log    *zerolog.Logger
	tracer trace.Tracer
}

func (s *ldapSession) Search(ctx context.Context, req SearchRequest) ([]*Entry, error) {
	_, span := s.tracer.Start(ctx, "directory.ldapSession.Search")
	defer span.End()
	span.SetAttributes(attribute.String("base", req.BaseDN), attribute.String("filter", req.Filter))

	scope := ldap.ScopeWholeSubtree
	if req.Scope == ScopeBase {
		scope = ldap.ScopeBaseObject
	}
	sr := ldap.NewSearchRequest(
		req.BaseDN,
		scope, ldap.NeverDerefAliases, req.SizeLimit, int(s.timeout.Seconds()), false,
		req.Filter,
		req.Attributes,
		nil,
	)

	stats.Backend.Add("searches", 1)
	var res *ldap.SearchResult
	var err error
	if s.pageSize > 0 && req.SizeLimit == 0 {
		res, err = s.conn.SearchWithPaging(sr, uint32(s.pageSize))
	} else {
		res, err = s.conn.Search(sr)
	}
	// a capped search keeps what it got before the server stopped it
	if err != nil && req.SizeLimit > 0 && ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && res != nil && len(res.Entries) > 0 {
		err = nil
	}
	if err != nil {
		stats.Backend.Add("search_errors", 1)
		s.log.Debug().Str("base", req.BaseDN).Str("filter", req.Filter).Err(err).Msg("search failed")
		return nil, mapError(err)
	}

	entries := make([]*Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entry := &Entry{DN: e.DN, Attributes: make(map[string][]string, len(e.Attributes))}
		for _, a := range e.Attributes {
			entry.Attributes[a.Name] = a.Values
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *ldapSession) PasswordModify(ctx context.Context, userDN, oldPassword, newPassword string) error {
	_, span := s.tracer.Start(ctx, "directory.ldapSession.PasswordModify")
	defer span.End()

	stats.Backend.Add("password_modifies", 1)
	if _, err := s.conn.PasswordModify(ldap.NewPasswordModifyRequest(userDN, oldPassword, newPassword)); err != nil {
		stats.Backend.Add("password_modify_errors", 1)
		return mapError(err)
	}
	return nil
}

func (s *ldapSession) Replace(ctx context.Context, dn, attr string, values ...string) error {
	_, span := s.tracer.Start(ctx, "directory.ldapSession.Replace")
	defer span.End()

	req := ldap.NewModifyRequest(dn, nil)
	req.Replace(attr, values)
	stats.Backend.Add("modifies", 1)
	if err := s.conn.Modify(req); err != nil {
		stats.Backend.Add("modify_errors", 1)
		return mapError(err)
	}
	return nil
}

func (s *ldapSession) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.conn.Close()
	return nil
}

// mapError turns connection level failures, timeouts included, into
// "unavailable" so callers see one code for an unreachable directory
func mapError(err error) error {
	if ldap.IsErrorWithCode(err, ldap.ErrorNetwork) {
		return Unavailable(err)
	}
	return err
}
