// Package daemon wires configuration, logging, monitoring, and the
// protocol server into a long-running process.
package daemon

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lineCode/yugabyte-db/config"
	"github.com/lineCode/yugabyte-db/logging"
	"github.com/lineCode/yugabyte-db/ql"
	"github.com/lineCode/yugabyte-db/server"
	"github.com/lineCode/yugabyte-db/version"
)

// ExecutorFactory produces the statement execution engine the daemon
// serves. The concrete engine is linked in by the binary's main
// package.
type ExecutorFactory func(ctx context.Context) (ql.Executor, error)

var executorFactory ExecutorFactory

func SetExecutorFactory(f ExecutorFactory) {
	executorFactory = f
}

func Run(ctx context.Context, conf *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	log, err := loggerFromConfig(conf.Logging)
	if err != nil {
		return errors.Wrap(err, "cannot build logging from config")
	}
	log.Info(version.Get().String())
	ctx = logging.WithLogger(ctx, log)

	if executorFactory == nil {
		return errors.New("no execution engine linked into this binary")
	}
	exec, err := executorFactory(ctx)
	if err != nil {
		return errors.Wrap(err, "cannot build execution engine")
	}

	srv, err := server.New(serverOptions(conf), exec)
	if err != nil {
		return errors.Wrap(err, "cannot build server from config")
	}

	if err := server.PrometheusRegister(prometheus.DefaultRegisterer); err != nil {
		return errors.Wrap(err, "cannot register metrics")
	}
	version.PrometheusRegister(prometheus.DefaultRegisterer)
	if conf.Monitoring != nil {
		go servePrometheus(ctx, conf.Monitoring.Listen)
	}

	l, err := net.Listen("tcp", conf.Listen)
	if err != nil {
		return errors.Wrapf(err, "cannot listen on %q", conf.Listen)
	}
	log.WithField("addr", conf.Listen).Info("serving CQL")

	err = srv.Serve(ctx, l)
	if ctx.Err() != nil {
		log.Info("daemon exiting")
		return nil
	}
	return err
}

func serverOptions(conf *config.Config) server.Options {
	opts := server.Options{
		Compression:       conf.Compression,
		PreparedCacheSize: conf.PreparedCacheSize,
	}
	if l := conf.Limits; l != nil {
		opts.MaxFrameBytes = l.MaxFrameBytes
		opts.MaxInflightPerConn = l.MaxInflightPerConn
		opts.MaxSuspendedPerConn = l.MaxSuspendedPerConn
		opts.MaxWorkers = l.MaxWorkers
		opts.DefaultDeadline = l.DefaultDeadline
	}
	return opts
}

func loggerFromConfig(conf *config.Logging) (*logging.Logger, error) {
	level, err := logging.ParseLevel(conf.Level)
	if err != nil {
		return nil, err
	}
	var outlet logging.Outlet
	switch conf.Format {
	case "auto":
		outlet = logging.NewStderrOutlet()
	case "human":
		outlet = logging.NewHumanOutlet(os.Stderr, false)
	case "logfmt":
		outlet = logging.NewLogfmtOutlet(os.Stderr)
	default:
		return nil, errors.Errorf("unknown log format %q", conf.Format)
	}
	return logging.NewLogger(outlet, level), nil
}
