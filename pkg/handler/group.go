package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/protocol"
)

func (h *nslcdHandler) groupAttributes() []string {
	m := h.cfg.Map
	attrs := []string{m.CN, m.GIDNumber, m.MemberUID}
	if m.UserPassword != "" {
		attrs = append(attrs, m.UserPassword)
	}
	return attrs
}

// groupPassword exposes a crypt hash when userpassword is mapped, anything
// else is hidden behind "*"
func (h *nslcdHandler) groupPassword(entry *directory.Entry) string {
	if h.cfg.Map.UserPassword == "" {
		return "*"
	}
	for _, v := range entry.Values(h.cfg.Map.UserPassword) {
		lower := strings.ToLower(v)
		switch {
		case strings.HasPrefix(lower, "{crypt}"):
			return v[len("{crypt}"):]
		case strings.HasPrefix(lower, "crypt$"):
			return v[len("crypt$"):]
		}
	}
	return "*"
}

// writeGroup writes one group record. Entries without a usable name or gid
// are skipped.
func (h *nslcdHandler) writeGroup(log *zerolog.Logger, w *protocol.Writer, entry *directory.Entry) {
	name := entryName(entry, h.cfg.Map.CN)
	if !IsValidName(name) {
		log.Warn().Str("dn", entry.DN).Str("name", name).Msg("group entry has an invalid name")
		return
	}
	gid, ok := numericID(log, entry, h.cfg.Map.GIDNumber)
	if !ok {
		return
	}
	var members []string
	for _, m := range entry.Values(h.cfg.Map.MemberUID) {
		if IsValidName(m) {
			members = append(members, m)
		}
	}
	w.Begin()
	w.WriteString(name)
	w.WriteString(h.groupPassword(entry))
	w.WriteInt32(gid)
	w.WriteStringList(members)
}

func (h *nslcdHandler) GroupByName(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.GroupByName")
	defer span.End()

	name, err := r.ReadString(protocol.MaxNameLen)
	if err != nil {
		return err
	}
	log := h.requestLogger(protocol.ActionGroupByName, name)
	log.Debug().Str("name", name).Msg("nslcd_group_byname")

	w.WriteHeader(protocol.ActionGroupByName)
	if !IsValidName(name) {
		log.Warn().Str("name", name).Msg("invalid group name")
		w.End()
		return nil
	}

	filter := fmt.Sprintf("(&%s(%s=%s))", h.cfg.Map.GroupFilter, h.cfg.Map.CN, ldap.EscapeFilter(name))
	err = h.searchBases(ctx, filter, h.groupAttributes(), func(e *directory.Entry) {
		// the filter matches case-insensitively, names do not
		if entryName(e, h.cfg.Map.CN) == name {
			h.writeGroup(log, w, e)
		}
	})
	if err != nil {
		log.Error().Err(err).Msg("group lookup failed")
		return fmt.Errorf("group_byname %q: %w", name, err)
	}
	w.End()
	return nil
}

func (h *nslcdHandler) GroupByGID(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.GroupByGID")
	defer span.End()

	gid, err := r.ReadInt32()
	if err != nil {
		return err
	}
	log := h.requestLogger(protocol.ActionGroupByGID, fmt.Sprint(gid))
	log.Debug().Int32("gid", gid).Msg("nslcd_group_bygid")

	w.WriteHeader(protocol.ActionGroupByGID)
	filter := fmt.Sprintf("(&%s(%s=%d))", h.cfg.Map.GroupFilter, h.cfg.Map.GIDNumber, gid)
	err = h.searchBases(ctx, filter, h.groupAttributes(), func(e *directory.Entry) {
		h.writeGroup(log, w, e)
	})
	if err != nil {
		log.Error().Err(err).Msg("group lookup failed")
		return fmt.Errorf("group_bygid %d: %w", gid, err)
	}
	w.End()
	return nil
}

func (h *nslcdHandler) GroupAll(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	ctx, span := h.tracer.Start(ctx, "handler.nslcdHandler.GroupAll")
	defer span.End()

	log := h.requestLogger(protocol.ActionGroupAll, "")
	log.Debug().Msg("nslcd_group_all")

	w.WriteHeader(protocol.ActionGroupAll)
	err := h.searchBases(ctx, h.cfg.Map.GroupFilter, h.groupAttributes(), func(e *directory.Entry) {
		h.writeGroup(log, w, e)
	})
	if err != nil {
		log.Error().Err(err).Msg("group enumeration failed")
		return fmt.Errorf("group_all: %w", err)
	}
	w.End()
	return nil
}
