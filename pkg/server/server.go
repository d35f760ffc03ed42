package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/glauth/nslcd/internal/monitoring"
	"github.com/glauth/nslcd/pkg/config"
	"github.com/glauth/nslcd/pkg/handler"
	"github.com/glauth/nslcd/pkg/protocol"
	"github.com/glauth/nslcd/pkg/stats"
)

var ErrServerClosed = errors.New("server: closed")

// backoff between failed accepts
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// engine is what a request is served with. It is swapped as a whole on
// reload, a request in flight keeps the one it started with.
type engine struct {
	handler handler.Handler
	timeout time.Duration
}

type NslcdSvc struct {
	c      *config.Config
	engine atomic.Pointer[engine]

	monitor monitoring.MonitorInterface
	tracer  trace.Tracer
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	ln       net.Listener
	conns    map[net.Conn]struct{}
	closing  bool
	inflight sync.WaitGroup

	statsOn   atomic.Bool
	nConns    atomic.Int64
	nRequests atomic.Int64
	nErrors   atomic.Int64
	nActive   atomic.Int64
}

func NewServer(opts ...Option) (*NslcdSvc, error) {
	options := newOptions(opts...)

	if options.Config == nil {
		return nil, errors.New("server: no configuration")
	}
	if options.Handler == nil {
		return nil, errors.New("server: no handler")
	}

	s := NslcdSvc{
		c:       options.Config,
		monitor: options.Monitor,
		tracer:  options.Tracer,
		log:     options.Logger,
		conns:   make(map[net.Conn]struct{}),
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer("github.com/glauth/nslcd")
	}
	parent := options.Context
	if parent == nil {
		parent = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(parent)

	s.SetHandler(options.Handler, options.Config.LDAP.Timeout)

	return &s, nil
}

// SetHandler replaces the engine used for requests read from now on
func (s *NslcdSvc) SetHandler(h handler.Handler, timeout time.Duration) {
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	s.engine.Store(&engine{handler: h, timeout: timeout})
}

// ListenAndServe listens on the unix socket s.c.Socket.Path. A socket left
// behind by an earlier run is removed first.
func (s *NslcdSvc) ListenAndServe() error {
	path := s.c.Socket.Path
	mode, err := strconv.ParseUint(s.c.Socket.Mode, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid socket mode %q: %w", s.c.Socket.Mode, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	if err := os.Chmod(path, os.FileMode(mode)); err != nil {
		ln.Close()
		return err
	}
	s.log.Info().Str("socket", path).Str("mode", s.c.Socket.Mode).Msg("nslcd server listening")
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called, which makes it
// return ErrServerClosed
func (s *NslcdSvc) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			// anything else, descriptor exhaustion included, is retried
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.countError()
			s.log.Error().Err(err).Dur("retry_in", delay).Msg("accept failed")
			time.Sleep(delay)
			continue
		}
		delay = 0
		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go s.handleConnection(conn)
	}
}

// Healthy returns an error unless the server is accepting connections
func (s *NslcdSvc) Healthy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return ErrServerClosed
	}
	if s.ln == nil {
		return errors.New("server: not listening")
	}
	return nil
}

func (s *NslcdSvc) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *NslcdSvc) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.inflight.Add(1)
	return true
}

func (s *NslcdSvc) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.inflight.Done()
}

// Shutdown stops accepting connections, lets requests in flight finish and
// waits for every connection to be closed
func (s *NslcdSvc) Shutdown() {
	s.mu.Lock()
	s.closing = true
	if s.ln != nil {
		s.ln.Close()
	}
	// wake up connections idling between requests
	for conn := range s.conns {
		_ = conn.SetReadDeadline(time.Now())
	}
	s.mu.Unlock()

	s.inflight.Wait()
	s.cancel()
	s.log.Info().Msg("nslcd server stopped")
}

func (s *NslcdSvc) handleConnection(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	s.countConn()
	defer s.nActive.Add(-1)

	caller := handler.Caller{UID: peerUID(conn)}
	log := s.log.With().Int("uid", caller.UID).Logger()

	r := protocol.NewReader(conn)
	w := protocol.NewWriter(conn)

	if !s.setDeadline(conn) {
		return
	}
	version, err := r.ReadInt32()
	if err != nil {
		log.Debug().Err(err).Msg("connection closed before handshake")
		return
	}
	if version != protocol.Version {
		log.Warn().Int32("version", version).Msg("wrong protocol version")
		s.countError()
		return
	}

	for {
		if !s.setDeadline(conn) {
			return
		}
		action, err := r.ReadInt32()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isClosing() {
				log.Debug().Err(err).Msg("reading action failed")
			}
			return
		}
		e := s.engine.Load()
		if err := s.serveRequest(e, conn, r, w, caller, action, &log); err != nil {
			s.countError()
			log.Warn().Str("action", protocol.ActionName(action)).Err(err).Msg("request failed, closing connection")
			return
		}
		if s.isClosing() {
			return
		}
	}
}

func (s *NslcdSvc) serveRequest(e *engine, conn net.Conn, r *protocol.Reader, w *protocol.Writer, caller handler.Caller, action int32, log *zerolog.Logger) error {
	name := protocol.ActionName(action)
	ctx, span := s.tracer.Start(s.ctx, "server.NslcdSvc.serveRequest", trace.WithAttributes(attribute.String("action", name)))
	defer span.End()

	s.nRequests.Add(1)
	stats.Frontend.Add("requests", 1)
	stats.Frontend.Add(name, 1)

	fn, ok := e.handler.Dispatch(action)
	if !ok {
		return fmt.Errorf("unknown action %s", name)
	}

	start := time.Now()
	_ = conn.SetWriteDeadline(start.Add(e.timeout))
	err := fn(ctx, r, w, caller)
	if ferr := w.Flush(); err == nil {
		err = ferr
	}

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	s.observe(name, status, time.Since(start), log)
	return err
}

// setDeadline arms the read deadline for the next read. It holds s.mu so a
// concurrent Shutdown cannot have its own deadline pushed back.
func (s *NslcdSvc) setDeadline(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	return conn.SetReadDeadline(time.Now().Add(s.engine.Load().timeout)) == nil
}

func (s *NslcdSvc) observe(action, status string, d time.Duration, log *zerolog.Logger) {
	if s.monitor == nil {
		return
	}
	if err := s.monitor.SetResponseTimeMetric(map[string]string{"action": action, "status": status}, d.Seconds()); err != nil {
		log.Error().Err(err).Msg("failed to set metric")
	}
}

func (s *NslcdSvc) countConn() {
	s.nActive.Add(1)
	if s.statsOn.Load() {
		s.nConns.Add(1)
	}
	stats.Frontend.Add("conns", 1)
}

func (s *NslcdSvc) countError() {
	s.nErrors.Add(1)
	stats.Frontend.Add("errors", 1)
}

// SetStats turns counting of accepted connections on or off
func (s *NslcdSvc) SetStats(enable bool) {
	s.statsOn.Store(enable)
}

func (s *NslcdSvc) GetStats() monitoring.ServerStats {
	return monitoring.ServerStats{
		Conns:    int(s.nConns.Load()),
		Requests: int(s.nRequests.Load()),
		Errors:   int(s.nErrors.Load()),
		Active:   int(s.nActive.Load()),
	}
}
