package furnace

import (
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/forge/furnace-sub000/internal/codeunit"
	"github.com/forge/furnace-sub000/internal/metrics"
	"github.com/forge/furnace-sub000/internal/versions"
)

const (
	// DefaultStartTimeout bounds dependency waits plus the startup hook.
	DefaultStartTimeout = 2 * time.Minute
	// DefaultStopTimeout bounds the shutdown hook and waiting for a
	// cancelled start.
	DefaultStopTimeout = 30 * time.Second
)

// Options configures a Furnace.
type Options struct {
	// RuntimeVersion is the API version of this container. Addons whose API
	// version is incompatible according to Compatibility are skipped.
	RuntimeVersion versions.Version
	Compatibility  versions.CompatibilityStrategy

	// Provider loads code units. Defaults to a FactoryProvider over the
	// default factory registry.
	Provider codeunit.Provider

	// Workers is the number of concurrent start tasks. Defaults to GOMAXPROCS.
	Workers int

	StartTimeout time.Duration
	StopTimeout  time.Duration

	// ScanInterval enables the background loop polling repositories for
	// changes. Zero disables it.
	ScanInterval time.Duration

	SnapshotCacheSize int
	LookupCacheSize   int

	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

func (o Options) withDefaults() Options {
	if o.Compatibility == nil {
		o.Compatibility = versions.AllCompatible{}
	}
	if o.Provider == nil {
		o.Provider = codeunit.NewFactoryProvider(nil)
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = DefaultStartTimeout
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer("github.com/forge/furnace-sub000/internal/furnace")
	}
	return o
}
