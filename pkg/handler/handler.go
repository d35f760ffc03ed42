package handler

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/glauth/nslcd/pkg/config"
	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/protocol"
)

// Caller identifies the process on the other end of the socket
type Caller struct {
	UID int // -1 when the peer could not be identified
}

// IsRoot reports whether the caller runs with superuser privileges
func (c Caller) IsRoot() bool {
	return c.UID == 0
}

// RequestFunc reads the fields of one request from r and writes the complete
// response to w. A non-nil error means the connection is no longer usable.
type RequestFunc func(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error

type Handler interface {
	Authc(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	Authz(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	SessOpen(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	SessClose(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	PwMod(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error

	GroupByName(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	GroupByGID(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	GroupAll(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	PasswdByName(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	PasswdByUID(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error
	PasswdAll(ctx context.Context, r *protocol.Reader, w *protocol.Writer, caller Caller) error

	// Dispatch returns the function serving action
	Dispatch(action int32) (RequestFunc, bool)
}

type nslcdHandler struct {
	cfg *config.Config
	dir directory.Directory

	log    *zerolog.Logger
	tracer trace.Tracer

	hostname func() (string, error)
	fqdn     func() (string, bool)
	now      func() time.Time

	actions map[int32]RequestFunc
}

// NewHandler builds the request engine. The configuration it is given is
// treated as read-only for the lifetime of the handler.
func NewHandler(opts ...Option) Handler {
	options := newOptions(opts...)

	h := &nslcdHandler{
		cfg:      options.Config,
		dir:      options.Directory,
		log:      options.Logger,
		tracer:   options.Tracer,
		hostname: os.Hostname,
		fqdn:     cachedFQDN,
		now:      time.Now,
	}
	if h.cfg == nil {
		h.cfg = &config.Config{}
		h.cfg.SetDefaults()
	}
	if h.log == nil {
		nop := zerolog.Nop()
		h.log = &nop
	}
	if h.tracer == nil {
		h.tracer = noop.NewTracerProvider().Tracer("github.com/glauth/nslcd")
	}

	h.actions = map[int32]RequestFunc{
		protocol.ActionPAMAuthc:     h.Authc,
		protocol.ActionPAMAuthz:     h.Authz,
		protocol.ActionPAMSessOpen:  h.SessOpen,
		protocol.ActionPAMSessClose: h.SessClose,
		protocol.ActionPAMPwMod:     h.PwMod,
		protocol.ActionGroupByName:  h.GroupByName,
		protocol.ActionGroupByGID:   h.GroupByGID,
		protocol.ActionGroupAll:     h.GroupAll,
		protocol.ActionPasswdByName: h.PasswdByName,
		protocol.ActionPasswdByUID:  h.PasswdByUID,
		protocol.ActionPasswdAll:    h.PasswdAll,
	}

	return h
}

func (h *nslcdHandler) Dispatch(action int32) (RequestFunc, bool) {
	fn, ok := h.actions[action]
	return fn, ok
}

// requestLogger tags every line logged for one request with the action and
// the name it is about
func (h *nslcdHandler) requestLogger(action int32, name string) *zerolog.Logger {
	l := h.log.With().Str(protocol.ActionName(action), name).Logger()
	return &l
}
