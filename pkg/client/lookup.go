package client

import (
	"context"
	"errors"
	"io"

	"github.com/glauth/nslcd/pkg/protocol"
)

// longest home directory, shell or gecos accepted from the daemon
const maxFieldLen = 4096

type Group struct {
	Name     string
	Password string
	GID      int32
	Members  []string
}

type Passwd struct {
	Name     string
	Password string
	UID      int32
	GID      int32
	Gecos    string
	Home     string
	Shell    string
}

func readGroup(r *protocol.Reader) (Group, error) {
	var (
		g   Group
		err error
	)
	if g.Name, err = r.ReadString(protocol.MaxNameLen); err != nil {
		return g, err
	}
	if g.Password, err = r.ReadString(maxFieldLen); err != nil {
		return g, err
	}
	if g.GID, err = r.ReadInt32(); err != nil {
		return g, err
	}
	g.Members, err = r.ReadStringList(protocol.MaxListLen, protocol.MaxNameLen)
	return g, err
}

func readPasswd(r *protocol.Reader) (Passwd, error) {
	var (
		p   Passwd
		err error
	)
	if p.Name, err = r.ReadString(protocol.MaxNameLen); err != nil {
		return p, err
	}
	if p.Password, err = r.ReadString(maxFieldLen); err != nil {
		return p, err
	}
	if p.UID, err = r.ReadInt32(); err != nil {
		return p, err
	}
	if p.GID, err = r.ReadInt32(); err != nil {
		return p, err
	}
	if p.Gecos, err = r.ReadString(maxFieldLen); err != nil {
		return p, err
	}
	if p.Home, err = r.ReadString(maxFieldLen); err != nil {
		return p, err
	}
	p.Shell, err = r.ReadString(maxFieldLen)
	return p, err
}

// first returns the first record of a lookup, ErrNotFound when there is none
func first[T any](ctx context.Context, c *Client, action int32, req func(w *protocol.Writer), read func(r *protocol.Reader) (T, error)) (T, error) {
	var zero T
	cur := &Cursor[T]{client: c, action: action, req: req, read: read}
	if err := cur.Open(ctx); err != nil {
		return zero, err
	}
	defer cur.Close()

	v, err := cur.Next()
	if errors.Is(err, io.EOF) {
		return zero, ErrNotFound
	}
	return v, err
}

func (c *Client) GroupByName(ctx context.Context, name string) (Group, error) {
	return first(ctx, c, protocol.ActionGroupByName, fields(name), readGroup)
}

func (c *Client) GroupByGID(ctx context.Context, gid int32) (Group, error) {
	return first(ctx, c, protocol.ActionGroupByGID, func(w *protocol.Writer) { w.WriteInt32(gid) }, readGroup)
}

func (c *Client) PasswdByName(ctx context.Context, name string) (Passwd, error) {
	return first(ctx, c, protocol.ActionPasswdByName, fields(name), readPasswd)
}

func (c *Client) PasswdByUID(ctx context.Context, uid int32) (Passwd, error) {
	return first(ctx, c, protocol.ActionPasswdByUID, func(w *protocol.Writer) { w.WriteInt32(uid) }, readPasswd)
}

// Groups returns a closed cursor over every group
func (c *Client) Groups() *Cursor[Group] {
	return &Cursor[Group]{client: c, action: protocol.ActionGroupAll, read: readGroup}
}

// Passwds returns a closed cursor over every user
func (c *Client) Passwds() *Cursor[Passwd] {
	return &Cursor[Passwd]{client: c, action: protocol.ActionPasswdAll, read: readPasswd}
}
