package allocator

import (
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/St0rmingBr4in/mesos/configstore"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

// Options configures an Engine at construction time (spec §6). Fields the
// source itself models as plain struct fields (ids, durations) stay plain
// fields; the rest are set via functional options, the idiomatic Go
// replacement for the teacher's SchedulerConfig struct literal.
type Options struct {
	AllocationInterval           time.Duration
	FairnessExcludeResourceNames []string
	MinAllocatableResources      []resources.ResourceQuantities
	MaxCompletedFrameworks       int
	FilterGpuResources           bool
	Domain                       *ids.FaultDomain
	PublishPerFrameworkMetrics   bool

	clock clock.Clock
	store *configstore.Store
}

// Option mutates an Options being built by New.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		AllocationInterval:     time.Second,
		MaxCompletedFrameworks: 50,
		clock:                  clock.NewClock(),
	}
}

// WithAllocationInterval overrides the periodic-cycle trigger (default 1s).
func WithAllocationInterval(d time.Duration) Option {
	return func(o *Options) { o.AllocationInterval = d }
}

// WithFairnessExcludeResourceNames excludes resource names from dominant
// share computation everywhere in the engine.
func WithFairnessExcludeResourceNames(names []string) Option {
	return func(o *Options) { o.FairnessExcludeResourceNames = names }
}

// WithMinAllocatableResources installs the global allocatable-predicate
// override vector used when a framework has not set a per-role one.
func WithMinAllocatableResources(v []resources.ResourceQuantities) Option {
	return func(o *Options) { o.MinAllocatableResources = v }
}

// WithMaxCompletedFrameworks bounds the completed-framework metrics cache
// (default 50).
func WithMaxCompletedFrameworks(n int) Option {
	return func(o *Options) { o.MaxCompletedFrameworks = n }
}

// WithFilterGpuResources enables the GPU capability gate of §4.6.
func WithFilterGpuResources(enabled bool) Option {
	return func(o *Options) { o.FilterGpuResources = enabled }
}

// WithDomain sets the master's own fault domain, used by the region-aware
// capability gate.
func WithDomain(d *ids.FaultDomain) Option {
	return func(o *Options) { o.Domain = d }
}

// WithPublishPerFrameworkMetrics toggles per-framework metrics publication.
func WithPublishPerFrameworkMetrics(enabled bool) Option {
	return func(o *Options) { o.PublishPerFrameworkMetrics = enabled }
}

// WithClock overrides the clock used for filter timeouts and the recovery
// timer; tests substitute code.cloudfoundry.org/clock/fakeclock.
func WithClock(c clock.Clock) Option {
	return func(o *Options) { o.clock = c }
}

// WithConfigStore attaches a persistence layer: setQuota/removeQuota/
// updateWeights/updateWhitelist best-effort mirror their mutation to it, and
// LoadFromConfigStore reads it back at startup to feed Engine.Recover.
func WithConfigStore(s *configstore.Store) Option {
	return func(o *Options) { o.store = s }
}
