package handler

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/pkg/protocol"
)

// fixed identifiers handed back to the PAM module, there is no session store
const (
	openedSessionID int32 = 12345
	closedSessionID int32 = 0
)

type sessionRequest struct {
	username, userdn, service, tty, rhost, ruser string
	sessionID                                    int32
}

func readSessionRequest(r *protocol.Reader) (sessionRequest, error) {
	var (
		req sessionRequest
		err error
	)
	fields := []struct {
		dst *string
		max int
	}{
		{&req.username, protocol.MaxNameLen},
		{&req.userdn, protocol.MaxDNLen},
		{&req.service, protocol.MaxServiceLen},
		{&req.tty, protocol.MaxTTYLen},
		{&req.rhost, protocol.MaxHostLen},
		{&req.ruser, protocol.MaxNameLen},
	}
	for _, f := range fields {
		if *f.dst, err = r.ReadString(f.max); err != nil {
			return req, err
		}
	}
	req.sessionID, err = r.ReadInt32()
	return req, err
}

func (req sessionRequest) log(l *zerolog.Logger, msg string) {
	l.Debug().
		Str("username", req.username).
		Str("userdn", req.userdn).
		Str("service", req.service).
		Str("tty", req.tty).
		Str("rhost", req.rhost).
		Str("ruser", req.ruser).
		Int32("sessionid", req.sessionID).
		Msg(msg)
}

func (h *nslcdHandler) SessOpen(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	_, span := h.tracer.Start(ctx, "handler.nslcdHandler.SessOpen")
	defer span.End()

	req, err := readSessionRequest(r)
	if err != nil {
		return err
	}
	req.log(h.requestLogger(protocol.ActionPAMSessOpen, req.username), "nslcd_pam_sess_o")

	w.WriteHeader(protocol.ActionPAMSessOpen)
	w.Begin()
	w.WriteInt32(openedSessionID)
	w.End()
	return nil
}

func (h *nslcdHandler) SessClose(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error {
	_, span := h.tracer.Start(ctx, "handler.nslcdHandler.SessClose")
	defer span.End()

	req, err := readSessionRequest(r)
	if err != nil {
		return err
	}
	req.log(h.requestLogger(protocol.ActionPAMSessClose, req.username), "nslcd_pam_sess_c")

	w.WriteHeader(protocol.ActionPAMSessClose)
	w.Begin()
	w.WriteInt32(closedSessionID)
	w.End()
	return nil
}
