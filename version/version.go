// Package version exposes the build version stamped into the binary
// at link time.
package version

import (
	"fmt"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// version is overridden via -ldflags by the release build.
var version = "unknown"

// Info describes this binary and the toolchain that built it.
type Info struct {
	Version   string
	GoVersion string
	OS        string
	Arch      string
}

func Get() Info {
	return Info{
		Version:   version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("cqld %s (%s %s/%s)", i.Version, i.GoVersion, i.OS, i.Arch)
}

func PrometheusRegister(r prometheus.Registerer) {
	r.MustRegister(prometheus.NewUntypedFunc(prometheus.UntypedOpts{
		Namespace: "yb",
		Subsystem: "version",
		Name:      "daemon",
		Help:      "cqld daemon version",
		ConstLabels: prometheus.Labels{
			"version": version,
			"go":      runtime.Version(),
		},
	}, func() float64 { return 1 }))
}
