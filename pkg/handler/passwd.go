package handler

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/protocol"
)

func (h *nslcdHandler) passwdAttributes() []string {
	m := h.cfg.Map
	return []string{m.UID, m.UIDNumber, m.GIDNumber, m.Gecos, m.HomeDirectory, m.LoginShell}
}

// writePasswd writes one passwd record. The password field is always "x",
// hashes are never handed out through this map.
func (h *nslcdHandler) writePasswd(log *zerolog.Logger, w *protocol.Writer, entry *directory.Entry) {
	m := h.cfg.Map
	name := entryName(entry, m.UID)
	if !IsValidName(name) {
		log.Warn().Str("dn", entry.DN).Str("name", name).Msg("passwd entry has an invalid name")
		return
	}
	uid, ok := numericID(log, entry, m.UIDNumber)
	if !ok {
		return
	}
	gid, ok := numericID(log, entry, m.GIDNumber)
	if !ok {
		return
	}
	w.Begin()
	w.WriteString(name)
	w.WriteString("x")
	w.WriteInt32(uid)
	w.WriteInt32(gid)
	w.WriteString(entry.Value(m.Gecos))
	w.WriteString(entry.Value(m.HomeDirectory))
	w.WriteString(entry.Value(m.LoginShell))
}

func (h *nslcdHandler) PasswdByName(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.PasswdByName")
	defer span.End()

	name, err := r.ReadString(protocol.MaxNameLen)
	if err != nil {
		return err
	}
	log := h.requestLogger(protocol.ActionPasswdByName, name)
	log.Debug().Str("name", name).Msg("nslcd_passwd_byname")

	w.WriteHeader(protocol.ActionPasswdByName)
	if !IsValidName(name) {
		log.Warn().Str("name", name).Msg("invalid user name")
		w.End()
		return nil
	}

	filter := fmt.Sprintf("(&%s(%s=%s))", h.cfg.Map.PasswdFilter, h.cfg.Map.UID, ldap.EscapeFilter(name))
	err = h.searchBases(ctx, filter, h.passwdAttributes(), func(e *directory.Entry) {
		if entryName(e, h.cfg.Map.UID) == name {
			h.writePasswd(log, w, e)
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("passwd lookup failed")
		return fmt.Errorf("passwd_byname %q: %w", name, err)
	}
	w.End()
	return nil
}

func (h *nslcdHandler) PasswdByUID(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.PasswdByUID")
	defer span.End()

	uid, err := r.ReadInt32()
	if err != nil {
		return err
	}
	log := h.requestLogger(protocol.ActionPasswdByUID, fmt.Sprint(uid))
	log.Debug().Int32("uid", uid).Msg("nslcd_passwd_byuid")

	w.WriteHeader(protocol.ActionPasswdByUID)
	filter := fmt.Sprintf("(&%s(%s=%d))", h.cfg.Map.PasswdFilter, h.cfg.Map.UIDNumber, uid)
	err = h.searchBases(ctx, filter, h.passwdAttributes(), func(e *directory.Entry) {
		h.writePasswd(log, w, e)
	})
	if err != nil {
		log.Error().Err(err).Msg("passwd lookup failed")
		return fmt.Errorf("passwd_byuid %d: %w", uid, err)
	}
	w.End()
	return nil
}

func (h *nslcdHandler) PasswdAll(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.PasswdAll")
	defer span.End()

	log := h.requestLogger(protocol.ActionPasswdAll, "")
	log.Debug().Msg("nslcd_passwd_all")

	w.WriteHeader(protocol.ActionPasswdAll)
	err := h.searchBases(ctx, h.cfg.Map.PasswdFilter, h.passwdAttributes(), func(e *directory.Entry) {
		h.writePasswd(log, w, e)
	})
	if err != nil {
		log.Error().Err(err).Msg("passwd enumeration failed")
		return fmt.Errorf("passwd_all: %w", err)
	}
	w.End()
	return nil
}
