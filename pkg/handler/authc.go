package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/logging"
	"github.com/glauth/nslcd/pkg/protocol"
)

// Authc checks a user's password by binding as the user. A blank user name
// with rootpwmoddn configured authenticates the administrator instead.
func (h *nslcdHandler) Authc(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.Authc")
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
	password, err := r.ReadString(protocol.MaxPasswordLen)
	if err != nil {
		return err
	}

	log := h.requestLogger(protocol.ActionPAMAuthc, username)
	log.Debug().
		Str("username", username).
		Str("userdn", userdn).
		Str("service", service).
		Str("password", logging.Redact(password)).
		Msg("nslcd_pam_authc")

	w.WriteHeader(protocol.ActionPAMAuthc)

	var id Identity
	rootdn := h.cfg.LDAP.RootPwModDN
	if username == "" && rootdn != "" {
		if err := fit(rootdn, protocol.MaxDNLen); err != nil {
			log.Error().Err(err).Msg("rootpwmoddn will not fit in userdn")
			return err
		}
		id = Identity{DN: rootdn}
		if password == "" && caller.IsRoot() && h.cfg.LDAP.RootPwModPW != "" {
			if err := fit(h.cfg.LDAP.RootPwModPW, protocol.MaxPasswordLen); err != nil {
				log.Error().Err(err).Msg("rootpwmodpw will not fit in password")
				return err
			}
			password = h.cfg.LDAP.RootPwModPW
		}
	} else {
		id, err = h.validateUser(ctx, log, username, dnFromWire(userdn))
		if err != nil {
			if !errors.Is(err, ErrNoSuchUser) {
				w.Begin()
				w.WriteString(username)
				w.WriteString("")
				w.WriteInt32(protocol.PAMAuthInfoUnavail) // authc
				w.WriteInt32(protocol.PAMSuccess)         // authz
				w.WriteString("LDAP server unavailable")
			}
			w.End()
			return fmt.Errorf("pam_authc %q: %w", username, err)
		}
	}

	rc := protocol.PAMAuthErr
	if err := h.tryBind(ctx, log, id.DN, password); err == nil {
		log.Debug().Str("userdn", id.DN).Msg("bind successful")
		rc = protocol.PAMSuccess
	}

	w.Begin()
	w.WriteString(id.Name)
	w.WriteString(id.DN)
	w.WriteInt32(rc)                  // authc
	w.WriteInt32(protocol.PAMSuccess) // authz
	w.WriteString("")                 // authzmsg
	w.End()
	return nil
}

// tryBind opens a session as dn and reads the entry back. Some servers accept
// a bind lazily, so only the search proves the credentials.
func (h *nslcdHandler) tryBind(ctx context.Context, log *zerolog.Logger, dn, password string) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.tryBind")
	defer span.End()

	sess, err := h.dir.OpenAs(ctx, dn, password)
	if err != nil {
		log.Warn().Str("userdn", dn).Str("error", directory.ResultText(directory.ResultCode(err))).Msg("bind failed")
		return err
	}
	defer sess.Close()

	if _, err := h.lookupEntry(ctx, sess, dn, "dn"); err != nil {
		log.Warn().Str("userdn", dn).Str("error", directory.ResultText(directory.ResultCode(err))).Msg("lookup failed")
		return err
	}
	return nil
}
