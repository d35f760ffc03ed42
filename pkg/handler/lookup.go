package handler

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/directory"
)

// searchBases runs filter below every configured base and calls emit for each
// entry found. A base that does not exist is skipped.
func (h *nslcdHandler) searchBases(ctx context.Context, filter string, attrs []string, emit func(*directory.Entry)) error {
	sess, err := h.dir.Open(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	for _, base := range h.cfg.LDAP.Bases {
		entries, err := sess.Search(ctx, directory.SearchRequest{
			BaseDN:     base,
			Scope:      directory.ScopeSubtree,
			Filter:     filter,
			Attributes: attrs,
		})
		if err != nil {
			if directory.IsNoSuchObject(err) {
				continue
			}
			return err
		}
		for _, e := range entries {
			emit(e)
		}
	}
	return nil
}

// entryName returns the value of attr that names entry, preferring the one
// in its RDN
func entryName(entry *directory.Entry, attr string) string {
	if name, ok := entry.RDNValue(attr); ok {
		return name
	}
	return entry.Value(attr)
}

// numericID parses a uid or gid number, which must fit an int32 and not be
// negative
func numericID(log *zerolog.Logger, entry *directory.Entry, attr string) (int32, bool) {
	raw := entry.Value(attr)
	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id < 0 {
		log.Warn().Str("dn", entry.DN).Str("attribute", attr).Str("value", raw).Msg("entry has an invalid numeric id")
		return 0, false
	}
	return int32(id), true
}
