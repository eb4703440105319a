// Package allocator implements the two-stage hierarchical-DRF allocation
// engine: the lifecycle coordinator (framework/agent/quota bookkeeping),
// the periodic allocation cycle, the filter and maintenance paths, and the
// single-actor serialization that makes all of it lock-free.
package allocator

import (
	"context"
	"math"
	"math/rand"
	"time"

	"code.cloudfoundry.org/clock"
	log "github.com/golang/glog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/St0rmingBr4in/mesos/agent"
	"github.com/St0rmingBr4in/mesos/framework"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
	"github.com/St0rmingBr4in/mesos/role"
	"github.com/St0rmingBr4in/mesos/util"
)

// Engine is the allocator core. All of its state is owned exclusively by
// a single actor goroutine (spec §5); every exported method dispatches a
// closure onto that actor rather than touching fields directly.
type Engine struct {
	opts      Options
	clock     clock.Clock
	offerCb   OfferCallback
	inverseCb InverseOfferCallback

	agents     map[ids.AgentID]*agent.Agent
	frameworks map[ids.FrameworkID]*framework.Framework
	roles      *role.State

	whitelist    map[ids.AgentID]bool
	hasWhitelist bool

	paused            bool
	recoveryExpected  int
	recoveryThreshold int

	allocationCandidates map[ids.AgentID]bool

	completedMetrics *lru.Cache[ids.FrameworkID, framework.Metrics]

	delayed *util.ActorQueue

	inbox   chan func()
	started bool

	rng *rand.Rand
}

// New constructs an Engine, applying opts over the defaults (spec §6).
// offerCb/inverseCb are invoked synchronously on the actor; they must not
// call back into the Engine.
func New(offerCb OfferCallback, inverseCb InverseOfferCallback, opts ...Option) *Engine {
	merged := defaultOptions()
	for _, opt := range opts {
		opt(&merged)
	}

	cache, err := lru.New[ids.FrameworkID, framework.Metrics](merged.MaxCompletedFrameworks)
	if err != nil {
		log.Fatalf("allocator: invalid maxCompletedFrameworks: %v", err)
	}

	return &Engine{
		opts:                 merged,
		clock:                merged.clock,
		offerCb:              offerCb,
		inverseCb:            inverseCb,
		agents:               make(map[ids.AgentID]*agent.Agent),
		frameworks:           make(map[ids.FrameworkID]*framework.Framework),
		roles:                role.New(merged.FairnessExcludeResourceNames),
		allocationCandidates: make(map[ids.AgentID]bool),
		completedMetrics:     cache,
		delayed:              util.NewActorQueue(),
		inbox:                make(chan func()),
		rng:                  rand.New(rand.NewSource(1)),
	}
}

// Run starts the actor goroutine and blocks until ctx is done. Tests that
// want synchronous, single-threaded access never call Run: every public
// method runs its closure inline until Run has been called once.
func (e *Engine) Run(ctx context.Context) {
	e.started = true
	ticker := e.clock.NewTicker(e.opts.AllocationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.inbox:
			fn()
		case <-ticker.C():
			e.drainDelayed()
			e.runCycle()
		}
	}
}

// dispatch runs fn on the actor, blocking until it completes.
func (e *Engine) dispatch(fn func()) {
	if !e.started {
		fn()
		return
	}
	done := make(chan struct{})
	e.inbox <- func() {
		fn()
		close(done)
	}
	<-done
}

// drainDelayed executes every delayed message whose fire time has passed.
// Only ever called from within the actor (Run's loop), so delayed
// callbacks run with exclusive state access just like any other actor
// message.
func (e *Engine) drainDelayed() {
	now := e.clock.Now().UnixNano()
	for _, fn := range e.delayed.PopReady(now) {
		fn()
	}
}

func (e *Engine) fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

// Pause short-circuits all allocation cycles while still applying mutations.
func (e *Engine) Pause() {
	e.dispatch(func() { e.paused = true })
}

// Resume re-enables allocation cycles.
func (e *Engine) Resume() {
	e.dispatch(e.resumeLocked)
}

func (e *Engine) resumeLocked() {
	e.paused = false
	e.recoveryExpected = 0
	e.recoveryThreshold = 0
}

// Recover is a no-op if quotas is empty or expectedAgents == 0. Otherwise
// it installs the quotas, pauses, computes threshold = floor(expectedAgents
// * 0.8) and schedules an automatic resume after 10 minutes (spec §4.8).
// A threshold of zero is treated as "no recovery needed": recover then
// installs the quotas without pausing.
func (e *Engine) Recover(expectedAgents int, quotas map[ids.Role]resources.ResourceQuantities) {
	e.dispatch(func() {
		if len(quotas) == 0 || expectedAgents == 0 {
			return
		}
		for role, guarantee := range quotas {
			e.roles.SetQuota(role, guarantee)
		}
		threshold := int(math.Floor(float64(expectedAgents) * 0.8))
		if threshold == 0 {
			return
		}
		e.paused = true
		e.recoveryExpected = expectedAgents
		e.recoveryThreshold = threshold
		fireAt := e.clock.Now().Add(10 * time.Minute).UnixNano()
		e.delayed.Schedule(fireAt, e.resumeLocked)
	})
}

// AllocateNow adds agent to the candidate set and runs a cycle immediately
// (the synchronous counterpart to waiting for the allocation timer,
// exposed for tests and the explicit allocate(agent) request of §4.3).
func (e *Engine) AllocateNow(agents ...ids.AgentID) {
	e.dispatch(func() {
		for _, a := range agents {
			e.allocationCandidates[a] = true
		}
		e.runCycle()
	})
}
