package client

import (
	"context"

	"github.com/glauth/nslcd/pkg/protocol"
)

type AuthcResult struct {
	Username string
	UserDN   string
	Authc    int32
	Authz    int32
	AuthzMsg string
}

// AuthzResult is also what a password change answers with
type AuthzResult struct {
	Username string
	UserDN   string
	Result   int32
	Message  string
}

type PwModResult = AuthzResult

// Session describes the login a session call is about
type Session struct {
	Username string
	UserDN   string
	Service  string
	TTY      string
	RHost    string
	RUser    string
}

func (s Session) write(id int32) func(w *protocol.Writer) {
	return func(w *protocol.Writer) {
		fields(s.Username, s.UserDN, s.Service, s.TTY, s.RHost, s.RUser)(w)
		w.WriteInt32(id)
	}
}

func readAuthz(r *protocol.Reader) (AuthzResult, error) {
	var (
		res AuthzResult
		err error
	)
	if res.Username, err = r.ReadString(protocol.MaxNameLen); err != nil {
		return res, err
	}
	if res.UserDN, err = r.ReadString(protocol.MaxDNLen); err != nil {
		return res, err
	}
	if res.Result, err = r.ReadInt32(); err != nil {
		return res, err
	}
	res.Message, err = r.ReadString(protocol.MaxHostLen)
	return res, err
}

// Authc checks password for username. Leave userdn empty to have the
// daemon look it up.
func (c *Client) Authc(ctx context.Context, username, userdn, service, password string) (AuthcResult, error) {
	return single(ctx, c, protocol.ActionPAMAuthc, fields(username, userdn, service, password), func(r *protocol.Reader) (AuthcResult, error) {
		var (
			res AuthcResult
			err error
		)
		if res.Username, err = r.ReadString(protocol.MaxNameLen); err != nil {
			return res, err
		}
		if res.UserDN, err = r.ReadString(protocol.MaxDNLen); err != nil {
			return res, err
		}
		if res.Authc, err = r.ReadInt32(); err != nil {
			return res, err
		}
		if res.Authz, err = r.ReadInt32(); err != nil {
			return res, err
		}
		res.AuthzMsg, err = r.ReadString(protocol.MaxHostLen)
		return res, err
	})
}

func (c *Client) Authz(ctx context.Context, username, userdn, service, ruser, rhost, tty string) (AuthzResult, error) {
	return single(ctx, c, protocol.ActionPAMAuthz, fields(username, userdn, service, ruser, rhost, tty), readAuthz)
}

// SessOpen returns the session id handed out by the daemon
func (c *Client) SessOpen(ctx context.Context, s Session) (int32, error) {
	return single(ctx, c, protocol.ActionPAMSessOpen, s.write(0), (*protocol.Reader).ReadInt32)
}

func (c *Client) SessClose(ctx context.Context, s Session, id int32) (int32, error) {
	return single(ctx, c, protocol.ActionPAMSessClose, s.write(id), (*protocol.Reader).ReadInt32)
}

func (c *Client) PwMod(ctx context.Context, username, userdn, service, oldpassword, newpassword string) (PwModResult, error) {
	return single(ctx, c, protocol.ActionPAMPwMod, fields(username, userdn, service, oldpassword, newpassword), readAuthz)
}
