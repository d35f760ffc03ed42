package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/logging"
	"github.com/glauth/nslcd/pkg/protocol"
)

// seconds between 1601-01-01 and the unix epoch
const filetimeEpochOffset = 11644473600

// PwMod changes a user's password. When the request carries rootpwmoddn as
// the user DN the change is made as the administrator on behalf of username.
// Whenever the bind DN ends up being rootpwmoddn the old password is not
// passed on to the directory.
func (h *nslcdHandler) PwMod(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.PwMod")
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
	oldpassword, err := r.ReadString(protocol.MaxPasswordLen)
	if err != nil {
		return err
	}
	newpassword, err := r.ReadString(protocol.MaxPasswordLen)
	if err != nil {
		return err
	}

	log := h.requestLogger(protocol.ActionPAMPwMod, username)
	log.Debug().
		Str("username", username).
		Str("userdn", userdn).
		Str("service", service).
		Str("oldpassword", logging.Redact(oldpassword)).
		Str("newpassword", logging.Redact(newpassword)).
		Msg("nslcd_pam_pwmod")

	w.WriteHeader(protocol.ActionPAMPwMod)

	dn := dnFromWire(userdn)
	onBehalf := false
	rootdn := h.cfg.LDAP.RootPwModDN
	if rootdn != "" && userdn == rootdn {
		onBehalf = true
		dn = UnresolvedDN
		if oldpassword == "" && caller.IsRoot() && h.cfg.LDAP.RootPwModPW != "" {
			if err := fit(h.cfg.LDAP.RootPwModPW, protocol.MaxPasswordLen); err != nil {
				log.Error().Err(err).Msg("rootpwmodpw will not fit in oldpassword")
				return err
			}
			oldpassword = h.cfg.LDAP.RootPwModPW
		}
	}

	id, err := h.validateUser(ctx, log, username, dn)
	if err != nil {
		w.End()
		return fmt.Errorf("pam_pwmod %q: %w", username, err)
	}

	binddn := id.DN
	if onBehalf {
		binddn = rootdn
	}
	asAdmin := rootdn != "" && binddn == rootdn

	w.Begin()
	w.WriteString(id.Name)
	w.WriteString(id.DN)
	if err := h.tryPasswordModify(ctx, log, binddn, id.DN, oldpassword, newpassword, asAdmin); err != nil {
		w.WriteInt32(protocol.PAMPermDenied)
		w.WriteString(directory.ResultText(directory.ResultCode(err)))
	} else {
		w.WriteInt32(protocol.PAMSuccess)
		w.WriteString("")
	}
	w.End()
	return nil
}

// tryPasswordModify binds as binddn with the old password, checks that the
// target entry is readable and changes its password
func (h *nslcdHandler) tryPasswordModify(ctx context.Context, log *zerolog.Logger, binddn, userdn, oldpassword, newpassword string, asAdmin bool) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.tryPasswordModify")
	defer span.End()

	sess, err := h.dir.OpenAs(ctx, binddn, oldpassword)
	if err != nil {
		log.Warn().Str("binddn", binddn).Str("error", directory.ResultText(directory.ResultCode(err))).Msg("bind failed")
		return err
	}
	defer sess.Close()

	if _, err := h.dn2uid(ctx, sess, userdn); err != nil {
		log.Warn().Str("userdn", userdn).Str("error", directory.ResultText(directory.ResultCode(err))).Msg("lookup failed")
		return err
	}

	// the administrator does not know the old password
	if asAdmin {
		oldpassword = ""
	}
	if err := sess.PasswordModify(ctx, userdn, oldpassword, newpassword); err != nil {
		log.Warn().Str("userdn", userdn).Str("error", directory.ResultText(directory.ResultCode(err))).Msg("password modify failed")
		return err
	}
	log.Info().Str("userdn", userdn).Str("binddn", binddn).Msg("password changed")

	h.updateLastChange(ctx, log, sess, userdn)
	return nil
}

// updateLastChange touches the password change marker of userdn if the
// entry carries one. Failures are only logged.
func (h *nslcdHandler) updateLastChange(ctx context.Context, log *zerolog.Logger, sess directory.Session, userdn string) {
	attr := h.cfg.Map.LastChange
	if attr == "" {
		return
	}
	entry, err := h.lookupEntry(ctx, sess, userdn, attr)
	if err != nil {
		log.Warn().Str("userdn", userdn).Str("attribute", attr).Err(err).Msg("unable to read password change marker")
		return
	}
	if !entry.Has(attr) {
		return
	}

	now := h.now()
	var value string
	if strings.EqualFold(attr, "pwdLastSet") {
		value = strconv.FormatInt((now.Unix()+filetimeEpochOffset)*10000000, 10)
	} else {
		value = strconv.FormatInt(now.Unix()/86400, 10)
	}
	if err := sess.Replace(ctx, userdn, attr, value); err != nil {
		log.Warn().Str("userdn", userdn).Str("attribute", attr).Err(err).Msg("unable to update password change marker")
		return
	}
	log.Debug().Str("userdn", userdn).Str("attribute", attr).Str("value", value).Msg("password change marker updated")
}
