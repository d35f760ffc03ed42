package handler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/expr"
	"github.com/glauth/nslcd/pkg/protocol"
)

const authzDeniedMsg = "LDAP authorisation check failed"

// Authz decides whether an already authenticated user may use a service.
// Without an authzsearch template every valid user is allowed.
func (h *nslcdHandler) Authz(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.Authz")
	defer span.End()

	username, err := r.ReadString(protocol.MaxNameLen)
	if err != nil {
		return err
	}
	userdn, err := r.ReadString(protocol.MaxDNLen)
	if err != nil {
		return err
	}
	service, err := r.ReadString(protocol.MaxServiceLen)
	if err != nil {
		return err
	}
	ruser, err := r.ReadString(protocol.MaxNameLen)
	if err != nil {
		return err
	}
	rhost, err := r.ReadString(protocol.MaxHostLen)
	if err != nil {
		return err
	}
	tty, err := r.ReadString(protocol.MaxTTYLen)
	if err != nil {
		return err
	}

	log := h.requestLogger(protocol.ActionPAMAuthz, username)
	log.Debug().
		Str("username", username).
		Str("userdn", userdn).
		Str("service", service).
		Str("ruser", ruser).
		Str("rhost", rhost).
		Str("tty", tty).
		Msg("nslcd_pam_authz")

	w.WriteHeader(protocol.ActionPAMAuthz)

	id, err := h.validateUser(ctx, log, username, dnFromWire(userdn))
	if err != nil {
		w.End()
		return fmt.Errorf("pam_authz %q: %w", username, err)
	}

	rc, msg := protocol.PAMSuccess, ""
	if h.cfg.PAM.AuthzSearch != "" {
		vars := NewPolicyContext(log)
		defer vars.Close()

		vars.Set("username", id.Name)
		vars.Set("service", service)
		vars.Set("ruser", ruser)
		vars.Set("rhost", rhost)
		vars.Set("tty", tty)
		if hostname, err := h.hostname(); err == nil {
			vars.Set("hostname", hostname)
		}
		if fqdn, ok := h.fqdn(); ok {
			vars.Set("fqdn", fqdn)
		}
		vars.Set("dn", id.DN)
		vars.Set("uid", id.Name)

		rc = h.tryAuthzSearch(ctx, log, vars)
		if rc != protocol.PAMSuccess {
			msg = authzDeniedMsg
		}
	}

	w.Begin()
	w.WriteString(id.Name)
	w.WriteString(id.DN)
	w.WriteInt32(rc)
	w.WriteString(msg)
	w.End()
	return nil
}

// tryAuthzSearch expands the authzsearch template and reports success when
// the resulting filter matches at least one entry below the first base. A
// template that cannot be expanded is an engine failure, not a denial.
func (h *nslcdHandler) tryAuthzSearch(ctx context.Context, log *zerolog.Logger, vars expr.Resolver) int32 {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.tryAuthzSearch")
	defer span.End()

	template := h.cfg.PAM.AuthzSearch
	filter, err := expr.Expand(template, vars)
	if err == nil && len(filter) > MaxFilterLen {
		err = fmt.Errorf("expanded filter is %d bytes long", len(filter))
	}
	if err != nil {
		log.Error().Str("template", template).Err(err).Msg("pam_authz_search is invalid")
		return protocol.PAMAuthInfoUnavail
	}
	log.Debug().Str("filter", filter).Msg("trying pam_authz_search")

	// only the first configured base is consulted
	if len(h.cfg.LDAP.Bases) == 0 {
		log.Error().Msg("pam_authz_search without a search base")
		return protocol.PAMPermDenied
	}
	sess, err := h.dir.Open(ctx)
	if err != nil {
		log.Error().Str("filter", filter).Err(err).Msg("pam_authz_search failed")
		return protocol.PAMPermDenied
	}
	defer sess.Close()

	entries, err := sess.Search(ctx, directory.SearchRequest{
		BaseDN:     h.cfg.LDAP.Bases[0],
		Scope:      directory.ScopeSubtree,
		Filter:     filter,
		Attributes: []string{"dn"},
		SizeLimit:  1,
	})
	if directory.IsSizeLimitExceeded(err) {
		log.Debug().Str("filter", filter).Msg("pam_authz_search found more than one entry")
		return protocol.PAMSuccess
	}
	if err != nil {
		log.Error().Str("filter", filter).Str("error", directory.ResultText(directory.ResultCode(err))).Msg("pam_authz_search failed")
		return protocol.PAMPermDenied
	}
	if len(entries) == 0 {
		log.Error().Str("filter", filter).Msg("pam_authz_search found no matches")
		return protocol.PAMPermDenied
	}
	log.Debug().Str("dn", entries[0].DN).Msg("pam_authz_search found")
	return protocol.PAMSuccess
}
