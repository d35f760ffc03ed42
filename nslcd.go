package main

import (
	"context"
	"crypto/tls"
	"errors"
	"expvar"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	docopt "github.com/docopt/docopt-go"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/glauth/nslcd/internal/monitoring"
	_tls "github.com/glauth/nslcd/internal/tls"
	"github.com/glauth/nslcd/internal/toml"
	"github.com/glauth/nslcd/internal/tracing"
	"github.com/glauth/nslcd/internal/version"
	"github.com/glauth/nslcd/pkg/client"
	"github.com/glauth/nslcd/pkg/config"
	"github.com/glauth/nslcd/pkg/directory"
	"github.com/glauth/nslcd/pkg/frontend"
	"github.com/glauth/nslcd/pkg/handler"
	"github.com/glauth/nslcd/pkg/logging"
	"github.com/glauth/nslcd/pkg/server"
	"github.com/glauth/nslcd/pkg/stats"
)

const programName = "nslcd"

var usage = `nslcd: answer PAM and NSS requests from a directory server

Usage:
  nslcd [options] -c <file|s3 url>
  nslcd getent (passwd|group) [options] [<key>]
  nslcd -h --help
  nslcd --version

Options:
  -c, --config <file>       Config file.
  -K <aws_key_id>           AWS Key ID.
  -S <aws_secret_key>       AWS Secret Key.
  -r <aws_region>           AWS Region [default: us-east-1].
  --aws_endpoint_url <url>  Custom S3 endpoint.
  --socket <path>           Path of the daemon socket.
  -d, --debug               Log at debug level.
  --check-config            Check configuration file and exit.
  -h, --help                Show this screen.
  --version                 Show version.
`

var (
	log  zerolog.Logger
	args map[string]interface{}

	activeConfig *config.Config
)

func main() {
	if err := parseArgs(); err != nil {
		fmt.Println("Could not parse command-line arguments")
		fmt.Println(err)
		os.Exit(1)
	}

	if getent, _ := args["getent"].(bool); getent {
		if err := runGetent(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		return
	}

	checkConfig, _ := args["--check-config"].(bool)

	cfg, err := toml.NewConfig(getConfigLocation(), args)
	if err != nil {
		fmt.Println("Configuration file error")
		fmt.Println(err)
		os.Exit(1)
	}

	if checkConfig {
		fmt.Println("Config file seems ok")
		return
	}

	if activeConfig, err = config.Snapshot(cfg); err != nil {
		fmt.Println("Could not copy configuration")
		fmt.Println(err)
		os.Exit(1)
	}

	log = logging.InitLogging(activeConfig.Debug, activeConfig.Syslog, activeConfig.StructuredLog)
	logging.RewireLogging(log, activeConfig.StructuredLog)

	if activeConfig.Debug {
		log.Info().Msg("Debugging enabled")
	}
	if activeConfig.Syslog {
		log.Info().Msg("Syslog enabled")
	}

	log.Info().Str("version", version.Version).Msg(programName + " start")

	startService()
}

func startService() {
	v := new(expvar.String)
	v.Set(version.Version)
	stats.General.Set("version", v)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := monitoring.NewMonitor(&log)
	tracer := tracing.NewTracer(tracing.NewConfig(activeConfig.Tracing, &log))

	h, err := newHandler(activeConfig, tracer)
	if err != nil {
		log.Error().Err(err).Msg("could not set up the directory connection")
		os.Exit(1)
	}

	s, err := server.NewServer(
		server.Logger(log),
		server.Config(activeConfig),
		server.Handler(h),
		server.Monitor(monitor),
		server.Tracer(tracer),
		server.Context(ctx),
	)
	if err != nil {
		log.Error().Err(err).Msg("could not create server")
		os.Exit(1)
	}

	s.SetStats(true)
	watcher := monitoring.NewServerMonitorWatcher(s, monitor, &log)

	if activeConfig.API.Enabled {
		log.Info().Msg("Web API enabled")

		go frontend.RunAPI(
			frontend.Logger(log),
			frontend.Config(&activeConfig.API),
			frontend.Context(ctx),
			frontend.Health(s.Healthy),
		)
	}

	startConfigWatcher(ctx, s, tracer)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			log.Error().Err(err).Msg("could not start nslcd server")
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block until we receive our signal.
	<-c

	s.Shutdown()
	watcher.Stop()

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("could not flush traces")
	}

	log.Info().Msg(programName + " exit")
}

// newHandler builds a request engine bound to the configuration snapshot cfg
func newHandler(cfg *config.Config, tracer *tracing.Tracer) (handler.Handler, error) {
	var tlsConfig *tls.Config
	if cfg.LDAP.StartTLS || usesLDAPS(cfg.LDAP.URIs) {
		var err error
		tlsConfig, err = _tls.MakeClientTLS(cfg.LDAP.TLSReqCert, cfg.LDAP.TLSCACertFile, cfg.LDAP.TLSCert, cfg.LDAP.TLSKey, &log)
		if err != nil {
			return nil, err
		}
	}

	dir := directory.NewLDAPDirectory(
		directory.URIs(cfg.LDAP.URIs),
		directory.Credentials(cfg.LDAP.BindDN, cfg.LDAP.BindPW),
		directory.Timeout(cfg.LDAP.Timeout),
		directory.PageSize(cfg.LDAP.PageSize),
		directory.StartTLS(cfg.LDAP.StartTLS),
		directory.TLSConfig(tlsConfig),
		directory.Logger(&log),
		directory.Tracer(tracer),
	)

	return handler.NewHandler(
		handler.Config(cfg),
		handler.Directory(dir),
		handler.Logger(&log),
		handler.Tracer(tracer),
	), nil
}

func usesLDAPS(uris []string) bool {
	for _, uri := range uris {
		if strings.HasPrefix(uri, "ldaps://") {
			return true
		}
	}
	return false
}

// startConfigWatcher reloads the config file when it changes. Every good
// reload becomes a new snapshot and a new engine for the requests that follow.
func startConfigWatcher(ctx context.Context, s *server.NslcdSvc, tracer *tracing.Tracer) {
	configFileLocation := getConfigLocation()
	if !activeConfig.WatchConfig || strings.HasPrefix(configFileLocation, "s3://") {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error().Err(err).Msg("could not start config-watcher")
		return
	}

	ticker := time.NewTicker(1 * time.Second)
	go func() {
		defer watcher.Close()
		defer ticker.Stop()

		isChanged, isRemoved := false, false
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-watcher.Events:
				log.Info().Str("e", event.Op.String()).Msg("watcher got event")
				if event.Op&fsnotify.Write == fsnotify.Write {
					isChanged = true
				} else if event.Op&fsnotify.Remove == fsnotify.Remove { // vim edit file with rename/remove
					isChanged, isRemoved = true, true
				} else if event.Op&fsnotify.Create == fsnotify.Create { // only when watching a directory
					isChanged = true
				}
			case err := <-watcher.Errors:
				log.Error().Err(err).Msg("watcher error")
			case <-ticker.C:
				// wakeup, try finding removed config
			}
			if _, err := os.Stat(configFileLocation); os.IsNotExist(err) || !(isRemoved || isChanged) {
				continue
			}
			if isRemoved {
				log.Info().Str("file", configFileLocation).Msg("rewatching config")
				watcher.Add(configFileLocation)
				isChanged, isRemoved = true, false
			}
			if isChanged {
				reloadConfig(s, tracer, configFileLocation)
				isChanged = false
			}
		}
	}()

	if err := watcher.Add(configFileLocation); err != nil {
		log.Error().Err(err).Str("file", configFileLocation).Msg("could not watch config")
	}
}

func reloadConfig(s *server.NslcdSvc, tracer *tracing.Tracer, location string) {
	cfg, err := toml.NewConfig(location, args)
	if err != nil {
		log.Info().Err(err).Msg("Could not reload config. Holding on to old config")
		return
	}

	snap, err := config.Snapshot(cfg)
	if err != nil {
		log.Info().Err(err).Msg("Could not save reloaded config. Holding on to old config")
		return
	}

	if snap.Socket != activeConfig.Socket {
		log.Warn().Msg("socket settings only change on restart")
	}

	h, err := newHandler(snap, tracer)
	if err != nil {
		log.Info().Err(err).Msg("Could not apply reloaded config. Holding on to old config")
		return
	}

	s.SetHandler(h, snap.LDAP.Timeout)
	log.Info().Msg("Config was reloaded")
}

// runGetent prints passwd or group records the way getent(1) does
func runGetent(out io.Writer) error {
	path, _ := args["--socket"].(string)
	if path == "" {
		path = config.DefaultSocketPath
	}
	c := client.New(path, client.DefaultTimeout)
	ctx := context.Background()
	key, _ := args["<key>"].(string)

	if passwd, _ := args["passwd"].(bool); passwd {
		show := func(p client.Passwd) {
			fmt.Fprintf(out, "%s:%s:%d:%d:%s:%s:%s\n", p.Name, p.Password, p.UID, p.GID, p.Gecos, p.Home, p.Shell)
		}
		if key != "" {
			var p client.Passwd
			var err error
			if uid, convErr := strconv.ParseInt(key, 10, 32); convErr == nil {
				p, err = c.PasswdByUID(ctx, int32(uid))
			} else {
				p, err = c.PasswdByName(ctx, key)
			}
			if err != nil {
				return err
			}
			show(p)
			return nil
		}
		return drain(ctx, c.Passwds(), show)
	}

	show := func(g client.Group) {
		fmt.Fprintf(out, "%s:%s:%d:%s\n", g.Name, g.Password, g.GID, strings.Join(g.Members, ","))
	}
	if key != "" {
		var g client.Group
		var err error
		if gid, convErr := strconv.ParseInt(key, 10, 32); convErr == nil {
			g, err = c.GroupByGID(ctx, int32(gid))
		} else {
			g, err = c.GroupByName(ctx, key)
		}
		if err != nil {
			return err
		}
		show(g)
		return nil
	}
	return drain(ctx, c.Groups(), show)
}

func drain[T any](ctx context.Context, cur *client.Cursor[T], each func(T)) error {
	if err := cur.Open(ctx); err != nil {
		return err
	}
	defer cur.Close()
	for {
		v, err := cur.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		each(v)
	}
}

func parseArgs() error {
	var err error

	if args, err = docopt.Parse(usage, nil, true, version.GetVersion(), false); err != nil {
		return err
	}

	return nil
}

func getConfigLocation() string {
	location, _ := args["--config"].(string)
	return location
}
