package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/mock/gomock"

	"github.com/glauth/nslcd/internal/ldaptest"
	"github.com/glauth/nslcd/internal/monitoring"
	"github.com/glauth/nslcd/pkg/client"
	"github.com/glauth/nslcd/pkg/config"
	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/handler"
	"github.com/glauth/nslcd/pkg/protocol"
)

const (
	aliceDN = "uid=alice,ou=people,dc=example,dc=org"
	bobDN   = "uid=bob,ou=people,dc=example,dc=org"
	adminDN = "cn=admin,dc=example,dc=org"
)

func people(t *testing.T) *ldaptest.Server {
	account := func(dn, uid, uidNumber, password string) ldaptest.Entry {
		return ldaptest.Entry{
			DN:       dn,
			Password: password,
			Attrs: map[string][]string{
				"objectClass":   {"posixAccount"},
				"uid":           {uid},
				"uidNumber":     {uidNumber},
				"gidNumber":     {"5000"},
				"homeDirectory": {"/home/" + uid},
				"loginShell":    {"/bin/bash"},
			},
		}
	}
	return ldaptest.NewServer(t,
		account(aliceDN, "alice", "1000", "secret"),
		account(bobDN, "bob", "1001", "bobpw"),
		ldaptest.Entry{DN: adminDN, Password: "adminpw", Attrs: map[string][]string{"objectClass": {"person"}, "cn": {"admin"}}},
		ldaptest.Entry{DN: "cn=staff,ou=groups,dc=example,dc=org", Attrs: map[string][]string{
			"objectClass": {"posixGroup"}, "cn": {"staff"}, "gidNumber": {"5000"}, "memberUid": {"alice", "bob"},
		}},
		ldaptest.Entry{DN: "cn=devs,ou=groups,dc=example,dc=org", Attrs: map[string][]string{
			"objectClass": {"posixGroup"}, "cn": {"devs"}, "gidNumber": {"5001"}, "memberUid": {"alice"},
		}},
	)
}

type running struct {
	svc    *NslcdSvc
	client *client.Client
	path   string
	served chan error
}

func start(t *testing.T, cfg *config.Config, monitor monitoring.MonitorInterface) *running {
	log := zerolog.Nop()
	dir := directory.NewLDAPDirectory(directory.URIs(cfg.LDAP.URIs), directory.Timeout(cfg.LDAP.Timeout))
	h := handler.NewHandler(handler.Config(cfg), handler.Directory(dir), handler.Logger(&log))

	svc, err := NewServer(Config(cfg), Handler(h), Logger(log), Monitor(monitor))
	if err != nil {
		t.Fatal(err)
	}
	r := &running{svc: svc, path: cfg.Socket.Path, served: make(chan error, 1)}
	go func() { r.served <- svc.ListenAndServe() }()

	// wait for the socket
	for i := 0; i < 100; i++ {
		if conn, err := net.Dial("unix", r.path); err == nil {
			conn.Close()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.client = client.New(r.path, 5*time.Second)
	return r
}

func testConfig(t *testing.T, uri string) *config.Config {
	cfg := &config.Config{}
	cfg.Socket.Path = filepath.Join(t.TempDir(), "socket")
	cfg.LDAP.URIs = []string{uri}
	cfg.LDAP.Bases = []string{"dc=example,dc=org"}
	cfg.LDAP.RootPwModDN = adminDN
	cfg.LDAP.Timeout = 5 * time.Second
	cfg.SetDefaults()
	return cfg
}

func TestServer(t *testing.T) {
	ctx := context.Background()

	Convey("Given a daemon in front of a directory", t, func() {
		dir := people(t)
		ctrl := gomock.NewController(t)
		monitor := monitoring.NewMockMonitorInterface(ctrl)
		monitor.EXPECT().SetResponseTimeMetric(gomock.Any(), gomock.Any()).AnyTimes()

		cfg := testConfig(t, dir.URI)
		r := start(t, cfg, monitor)
		r.svc.SetStats(true)
		Reset(func() { r.svc.Shutdown() })

		Convey("the server reports itself healthy", func() {
			var err error
			for i := 0; i < 100; i++ {
				if err = r.svc.Healthy(); err == nil {
					break
				}
				time.Sleep(10 * time.Millisecond)
			}
			So(err, ShouldBeNil)
		})

		Convey("alice authenticates with her password", func() {
			res, err := r.client.Authc(ctx, "alice", "", "sshd", "secret")
			So(err, ShouldBeNil)
			So(res, ShouldResemble, client.AuthcResult{Username: "alice", UserDN: aliceDN, Authc: protocol.PAMSuccess, Authz: protocol.PAMSuccess})
		})

		Convey("a wrong password is an authentication error", func() {
			res, err := r.client.Authc(ctx, "alice", "", "sshd", "wrong")
			So(err, ShouldBeNil)
			So(res.Authc, ShouldEqual, protocol.PAMAuthErr)
			So(res.Authz, ShouldEqual, protocol.PAMSuccess)
		})

		Convey("a blank user name authenticates the administrator", func() {
			res, err := r.client.Authc(ctx, "", "", "sshd", "adminpw")
			So(err, ShouldBeNil)
			So(res.UserDN, ShouldEqual, adminDN)
			So(res.Authc, ShouldEqual, protocol.PAMSuccess)
			So(dir.Binds(), ShouldResemble, []string{adminDN})
		})

		Convey("bob is authorised when there is no policy", func() {
			res, err := r.client.Authz(ctx, "bob", bobDN, "login", "", "", "tty1")
			So(err, ShouldBeNil)
			So(res, ShouldResemble, client.AuthzResult{Username: "bob", UserDN: bobDN, Result: protocol.PAMSuccess})
		})

		Convey("an unknown user gets no record and the connection is closed", func() {
			_, err := r.client.Authc(ctx, "nobody", "", "sshd", "secret")
			So(errors.Is(err, client.ErrNoResult), ShouldBeTrue)
		})

		Convey("sessions are acknowledged", func() {
			id, err := r.client.SessOpen(ctx, client.Session{Username: "alice", Service: "login"})
			So(err, ShouldBeNil)
			So(id, ShouldEqual, int32(12345))
		})

		Convey("users and groups can be looked up", func() {
			p, err := r.client.PasswdByName(ctx, "alice")
			So(err, ShouldBeNil)
			So(p, ShouldResemble, client.Passwd{Name: "alice", Password: "x", UID: 1000, GID: 5000, Home: "/home/alice", Shell: "/bin/bash"})

			g, err := r.client.GroupByGID(ctx, 5001)
			So(err, ShouldBeNil)
			So(g.Name, ShouldEqual, "devs")

			_, err = r.client.PasswdByName(ctx, "nobody")
			So(errors.Is(err, client.ErrNotFound), ShouldBeTrue)
		})

		Convey("groups can be enumerated with a cursor", func() {
			cur := r.client.Groups()
			So(cur.Open(ctx), ShouldBeNil)
			var names []string
			for {
				g, err := cur.Next()
				if errors.Is(err, io.EOF) {
					break
				}
				So(err, ShouldBeNil)
				names = append(names, g.Name)
			}
			So(names, ShouldResemble, []string{"staff", "devs"})
			So(cur.IsOpen(), ShouldBeFalse)
		})

		Convey("requests on one connection are served in turn", func() {
			conn, err := net.Dial("unix", r.path)
			So(err, ShouldBeNil)
			defer conn.Close()
			w := protocol.NewWriter(conn)
			rd := protocol.NewReader(conn)
			w.WriteInt32(protocol.Version)
			for _, name := range []string{"alice", "bob"} {
				w.WriteInt32(protocol.ActionPasswdByName)
				w.WriteString(name)
			}
			So(w.Flush(), ShouldBeNil)

			for _, name := range []string{"alice", "bob"} {
				v, _ := rd.ReadInt32()
				So(v, ShouldEqual, protocol.Version)
				a, _ := rd.ReadInt32()
				So(a, ShouldEqual, protocol.ActionPasswdByName)
				m, _ := rd.ReadInt32()
				So(m, ShouldEqual, protocol.ResultBegin)
				got, _ := rd.ReadString(255)
				So(got, ShouldEqual, name)
				_ = rd.SkipString()
				_, _ = rd.ReadInt32()
				_, _ = rd.ReadInt32()
				for i := 0; i < 3; i++ {
					_ = rd.SkipString()
				}
				m, _ = rd.ReadInt32()
				So(m, ShouldEqual, protocol.ResultEnd)
			}
			So(r.svc.GetStats().Requests, ShouldBeGreaterThanOrEqualTo, 2)
		})

		Convey("an unknown action closes the connection", func() {
			conn, err := net.Dial("unix", r.path)
			So(err, ShouldBeNil)
			defer conn.Close()
			w := protocol.NewWriter(conn)
			w.WriteInt32(protocol.Version)
			w.WriteInt32(0x7fff0001)
			So(w.Flush(), ShouldBeNil)

			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err = protocol.NewReader(conn).ReadInt32()
			So(errors.Is(err, io.EOF), ShouldBeTrue)
		})

		Convey("a wrong protocol version closes the connection", func() {
			conn, err := net.Dial("unix", r.path)
			So(err, ShouldBeNil)
			defer conn.Close()
			w := protocol.NewWriter(conn)
			w.WriteInt32(2)
			So(w.Flush(), ShouldBeNil)

			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, err = protocol.NewReader(conn).ReadInt32()
			So(errors.Is(err, io.EOF), ShouldBeTrue)
		})

		Convey("a new handler takes over for later requests", func() {
			cfg2, err := config.Snapshot(cfg)
			So(err, ShouldBeNil)
			cfg2.PAM.AuthzSearch = "(&(objectClass=posixAccount)(uid=$username)(uidNumber=1000))"
			log := zerolog.Nop()
			h := handler.NewHandler(handler.Config(cfg2), handler.Directory(directory.NewLDAPDirectory(directory.URIs(cfg2.LDAP.URIs))), handler.Logger(&log))
			r.svc.SetHandler(h, cfg2.LDAP.Timeout)

			res, err := r.client.Authz(ctx, "alice", aliceDN, "login", "", "", "")
			So(err, ShouldBeNil)
			So(res.Result, ShouldEqual, protocol.PAMSuccess)

			res, err = r.client.Authz(ctx, "bob", bobDN, "login", "", "", "")
			So(err, ShouldBeNil)
			So(res.Result, ShouldEqual, protocol.PAMPermDenied)
			So(res.Message, ShouldEqual, "LDAP authorisation check failed")
		})

		Convey("shutdown stops serving", func() {
			r.svc.Shutdown()
			So(<-r.served, ShouldEqual, ErrServerClosed)
			So(r.svc.Healthy(), ShouldEqual, ErrServerClosed)
			_, err := r.client.Authc(ctx, "alice", "", "sshd", "secret")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestListenRejectsBadMode(t *testing.T) {
	Convey("A socket mode that is not octal is refused", t, func() {
		cfg := testConfig(t, "ldap://127.0.0.1:1")
		cfg.Socket.Mode = "rw-rw-rw-"
		log := zerolog.Nop()
		svc, err := NewServer(Config(cfg), Handler(handler.NewHandler(handler.Logger(&log))))
		So(err, ShouldBeNil)
		So(svc.ListenAndServe(), ShouldNotBeNil)
	})
}

// flakyListener fails its first accepts the way a process out of file
// descriptors does
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "unix", Err: os.NewSyscallError("accept4", syscall.EMFILE)}
	}
	return l.Listener.Accept()
}

func TestAcceptErrorsAreRetried(t *testing.T) {
	Convey("Given a listener that runs out of descriptors twice", t, func() {
		dir := people(t)
		cfg := testConfig(t, dir.URI)
		log := zerolog.Nop()
		h := handler.NewHandler(handler.Config(cfg), handler.Directory(directory.NewLDAPDirectory(directory.URIs(cfg.LDAP.URIs))), handler.Logger(&log))
		svc, err := NewServer(Config(cfg), Handler(h), Logger(log))
		So(err, ShouldBeNil)

		inner, err := net.Listen("unix", cfg.Socket.Path)
		So(err, ShouldBeNil)
		ln := &flakyListener{Listener: inner}
		ln.failures.Store(2)

		served := make(chan error, 1)
		go func() { served <- svc.Serve(ln) }()

		Convey("the server keeps serving and still stops on shutdown", func() {
			c := client.New(cfg.Socket.Path, 5*time.Second)
			p, err := c.PasswdByName(context.Background(), "bob")
			So(err, ShouldBeNil)
			So(p.UID, ShouldEqual, int32(1001))
			So(svc.GetStats().Errors, ShouldEqual, 2)

			svc.Shutdown()
			So(<-served, ShouldEqual, ErrServerClosed)
		})
	})
}

func TestShutdownWakesIdleConnections(t *testing.T) {
	Convey("Given a client idling between requests", t, func() {
		dir := people(t)
		cfg := testConfig(t, dir.URI)
		cfg.LDAP.Timeout = time.Minute
		r := start(t, cfg, nil)

		conn, err := net.Dial("unix", r.path)
		So(err, ShouldBeNil)
		defer conn.Close()
		w := protocol.NewWriter(conn)
		w.WriteInt32(protocol.Version)
		So(w.Flush(), ShouldBeNil)

		// let the server pick up the handshake and wait for an action
		for i := 0; i < 100 && r.svc.GetStats().Active == 0; i++ {
			time.Sleep(10 * time.Millisecond)
		}

		Convey("shutdown does not wait for the read timeout", func() {
			began := time.Now()
			r.svc.Shutdown()
			So(time.Since(began), ShouldBeLessThan, 10*time.Second)
			So(<-r.served, ShouldEqual, ErrServerClosed)
		})
	})
}
