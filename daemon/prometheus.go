package daemon

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lineCode/yugabyte-db/logging"
)

// servePrometheus exposes /metrics until ctx is canceled.
func servePrometheus(ctx context.Context, listen string) {
	log := logging.FromCtx(ctx).WithField("addr", listen)

	l, err := net.Listen("tcp", listen)
	if err != nil {
		log.WithError(err).Error("cannot listen for metrics")
		return
	}
	go func() {
		<-ctx.Done()
		l.Close()
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info("serving metrics")
	if err := http.Serve(l, mux); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("error while serving metrics")
	}
}
