package inspect

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/04d4/spinta/internal/endpoint"
	"github.com/04d4/spinta/internal/typemap"
)

// Defaults for Options fields left zero.
const (
	DefaultWorkers          = 4
	DefaultResourceWorkers  = 2
	DefaultCallTimeout      = 30 * time.Second
	DefaultConnectTimeout   = 15 * time.Second
	DefaultGracePeriod      = 5 * time.Second
	DefaultConnectBackoff   = 500 * time.Millisecond
	DefaultFailureThreshold = 1.0
)

// Options configures an Inspector.
type Options struct {
	// Workers bounds concurrent entity inspections per resource.
	Workers int
	// ResourceWorkers bounds concurrently inspected resources.
	ResourceWorkers int

	// CallTimeout limits each ListEntities/ListFields call.
	CallTimeout time.Duration
	// ConnectTimeout limits each connect attempt.
	ConnectTimeout time.Duration
	// ConnectBackoff is the wait before the single connect retry.
	ConnectBackoff time.Duration
	// GracePeriod is how long in-flight connector calls may run after the
	// run context is cancelled.
	GracePeriod time.Duration

	// FailureThreshold fails a resource once failed/enumerated entities
	// reaches it. 1.0 fails only when every entity failed.
	FailureThreshold float64

	// Prune removes stale models and properties after merging.
	Prune bool

	Registry *endpoint.Registry
	Types    *typemap.Registry
	Logger   logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.ResourceWorkers <= 0 {
		o.ResourceWorkers = DefaultResourceWorkers
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ConnectBackoff <= 0 {
		o.ConnectBackoff = DefaultConnectBackoff
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.FailureThreshold <= 0 || o.FailureThreshold > 1 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.Registry == nil {
		o.Registry = endpoint.DefaultRegistry()
	}
	if o.Types == nil {
		o.Types = typemap.Default()
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return o
}
