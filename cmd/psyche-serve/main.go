// Command psyche-serve boots a TCP retrieval server over a configured
// back-end, serving the wire protocol in pkg/tcp and exposing Prometheus
// metrics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lucasonchain/psyche/pkg/coordinator"
	"github.com/lucasonchain/psyche/pkg/logging"
	"github.com/lucasonchain/psyche/pkg/metrics"
	"github.com/lucasonchain/psyche/pkg/providerconfig"
	"github.com/lucasonchain/psyche/pkg/routing"
	"github.com/lucasonchain/psyche/pkg/tcp"
	"github.com/lucasonchain/psyche/pkg/tcp/identity"
	"github.com/lucasonchain/psyche/pkg/token"
)

var log = logrus.New()

// processMetrics registers the HTTP and TCP collectors against the default
// registry once per process, so run can be called more than once without a
// duplicate-registration panic.
var processMetrics = sync.OnceValues(func() (*metrics.HTTP, *metrics.TCP) {
	return metrics.NewHTTP(prometheus.DefaultRegisterer), metrics.NewTCP(prometheus.DefaultRegisterer)
})

// serveConfig is the JSON file psyche-serve reads at startup: the back-end
// to serve, the run it believes it is hosting, and the initial round's
// admission roster. Round transitions after startup are out of this
// binary's scope; the coordinator.Holder it constructs is ready to accept
// them from an external process via its own integration.
type serveConfig struct {
	RunID       string                                 `json:"run_id"`
	Listen      string                                 `json:"listen"`
	MetricsAddr string                                 `json:"metrics_addr"`
	Backend     providerconfig.Config                  `json:"backend"`
	Clients     []identity.Identity                    `json:"clients"`
	Assignments map[identity.Identity][]token.BatchId  `json:"assignments"`
}

func main() {
	var configPath string
	root := &cobra.Command{
		Use:   "psyche-serve",
		Short: "Serve the retrieval contract over TCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to the server config JSON file")
	root.MarkFlagRequired("config")

	if err := root.Execute(); err != nil {
		log.Fatalf("psyche-serve: %v", err)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	var cfg serveConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
		log.WithField("run_id", cfg.RunID).Info("no run_id configured, generated one")
	}

	httpMetrics, tcpMetrics := processMetrics()

	backend, err := providerconfig.Build(ctx, cfg.Backend, http.DefaultClient, log, httpMetrics)
	if err != nil {
		return err
	}

	view := coordinator.NewView(cfg.RunID, cfg.Clients, cfg.Assignments)
	holder := coordinator.NewHolder(view)
	server := tcp.NewServer(cfg.RunID, backend, holder, log, tcpMetrics)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	log.WithField("addr", ln.Addr()).Info("psyche-serve listening")

	acceptErrors := make(chan error, 1)
	go func() {
		acceptErrors <- acceptLoop(ctx, ln, server)
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		router := routing.NewNormalizedServeMux()
		router.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: router}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server error: %v", err)
			}
		}()
		log.WithField("addr", cfg.MetricsAddr).Info("metrics endpoint enabled")
	}

	select {
	case err := <-acceptErrors:
		if err != nil {
			log.Errorf("accept loop error: %v", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	ln.Close()
	if metricsServer != nil {
		metricsServer.Close()
	}
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, server *tcp.Server) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			id := identity.Identity(conn.RemoteAddr().String())
			if err := server.Serve(ctx, plainConn{Conn: conn, id: id}); err != nil {
				log.WithField("identity", logging.Sanitize(string(id))).Debugf("connection closed: %v", err)
			}
		}()
	}
}

// plainConn adapts a raw net.Conn to tcp.AuthenticatedConn by trusting its
// remote address as its identity. Production deployments are expected to
// supply a connection already wrapped by an authenticated transport (see
// pkg/tcp's package doc); this fallback exists so psyche-serve is runnable
// standalone.
type plainConn struct {
	net.Conn
	id identity.Identity
}

func (p plainConn) Identity() identity.Identity { return p.id }
