package frontend

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"time"

	"github.com/arl/statsviz"

	"github.com/glauth/nslcd/internal/monitoring"
)

// NewRouter wires the API endpoints into a fresh mux
func NewRouter(opts ...Option) *http.ServeMux {
	options := newOptions(opts...)
	log := options.Logger

	router := http.NewServeMux()

	monitoring.NewAPI(log).RegisterEndpoints(router)
	router.Handle("/debug/vars", expvar.Handler())
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if options.Health != nil {
			if err := options.Health(); err != nil {
				log.Debug().Err(err).Msg("health check failed")
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok\n"))
	})

	if options.Config != nil && options.Config.Internals {
		if err := statsviz.Register(
			router,
			statsviz.Root("/internals"),
			statsviz.SendFrequency(1000*time.Millisecond),
		); err != nil {
			log.Error().Err(err).Msg("unable to register the internals dashboard")
		}
	}

	return router
}

// RunAPI serves the metrics and debug endpoints until the context is done
func RunAPI(opts ...Option) {
	options := newOptions(opts...)
	log := options.Logger
	cfg := options.Config

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewRouter(opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-options.Context.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	monitoring.NewCollector(&log)

	var err error
	if cfg.TLS {
		log.Info().Str("address", cfg.Listen).Msg("Starting HTTPS server")
		err = srv.ListenAndServeTLS(cfg.Cert, cfg.Key)
	} else {
		log.Info().Str("address", cfg.Listen).Msg("Starting HTTP server")
		err = srv.ListenAndServe()
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("error starting API server")
	}
}
