// Package filters implements the offer and inverse-offer suppression
// tokens of spec §3/§4.4: time-bound (framework, role, agent,
// resource-superset) suppressions, plus the clamping rules applied to
// caller-supplied timeouts.
package filters

import (
	"time"

	"code.cloudfoundry.org/clock"
	log "github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/St0rmingBr4in/mesos/resources"
)

// DefaultRefuseTimeout is used whenever a caller-supplied timeout is
// negative or otherwise unparseable (§4.4).
const DefaultRefuseTimeout = 5 * time.Second

// MaxRefuseTimeout caps an oversized caller-supplied timeout (§4.4: "> 365
// days -> 365 days").
const MaxRefuseTimeout = 365 * 24 * time.Hour

// ClampTimeout applies the bounded-input clamp rules of §4.4/§7: negative
// durations fall back to DefaultRefuseTimeout, durations over one year are
// capped, and the result is never shorter than allocationInterval so a
// filter installed mid-cycle cannot expire before the next cycle observes
// it.
func ClampTimeout(requested, allocationInterval time.Duration) time.Duration {
	timeout := requested
	if timeout < 0 {
		log.Warningf("filters: negative timeout %v, using default %v", requested, DefaultRefuseTimeout)
		timeout = DefaultRefuseTimeout
	}
	if timeout > MaxRefuseTimeout {
		log.Warningf("filters: timeout %v exceeds maximum, capping at %v", requested, MaxRefuseTimeout)
		timeout = MaxRefuseTimeout
	}
	if timeout < allocationInterval {
		timeout = allocationInterval
	}
	return timeout
}

// Token identifies a filter for the purposes of the discard-on-drop expiry
// scheme described in spec §5/§9: the expiry callback removes the filter
// from its owner's filter map by Token, looking it up by identity before
// acting, so a filter removed ahead of its own expiry is a no-op when its
// timer eventually fires.
type Token uuid.UUID

func newToken() Token {
	return Token(uuid.New())
}

// OfferFilter is implemented by RefusedOfferFilter.
type OfferFilter interface {
	Token() Token
	// Matches reports whether candidate resources are suppressed by this
	// filter. The expiry does not affect Matches; only removal does.
	Matches(candidate resources.Resources) bool
	// Stop cancels the pending expiry callback, if any.
	Stop()
}

// RefusedOfferFilter suppresses any resources it is a superset of, until
// it is expired or explicitly removed (§3).
type RefusedOfferFilter struct {
	token    Token
	superset resources.Resources
	timer    clock.Timer
	stopCh   chan struct{}
}

// NewRefusedOfferFilter installs a filter over superset that calls onExpire
// once, after timeout, unless Stop is called first. onExpire is invoked on
// its own goroutine and is expected to enqueue a message back onto the
// allocator's actor loop rather than touch engine state directly (§5).
func NewRefusedOfferFilter(c clock.Clock, superset resources.Resources, timeout time.Duration, onExpire func()) *RefusedOfferFilter {
	f := &RefusedOfferFilter{
		token:    newToken(),
		superset: superset.Clone(),
		stopCh:   make(chan struct{}),
	}
	f.timer = c.NewTimer(timeout)
	go watchExpiry(f.timer, f.stopCh, onExpire)
	return f
}

func (f *RefusedOfferFilter) Token() Token { return f.token }

func (f *RefusedOfferFilter) Matches(candidate resources.Resources) bool {
	return f.superset.Contains(candidate)
}

func (f *RefusedOfferFilter) Stop() {
	stopTimer(f.timer, f.stopCh)
}

// RefusedInverseOfferFilter suppresses all inverse offers for its
// (framework, agent) pair while pending, irrespective of resources (§3).
type RefusedInverseOfferFilter struct {
	token  Token
	timer  clock.Timer
	stopCh chan struct{}
}

// NewRefusedInverseOfferFilter mirrors NewRefusedOfferFilter without a
// resource superset.
func NewRefusedInverseOfferFilter(c clock.Clock, timeout time.Duration, onExpire func()) *RefusedInverseOfferFilter {
	f := &RefusedInverseOfferFilter{
		token:  newToken(),
		stopCh: make(chan struct{}),
	}
	f.timer = c.NewTimer(timeout)
	go watchExpiry(f.timer, f.stopCh, onExpire)
	return f
}

func (f *RefusedInverseOfferFilter) Token() Token { return f.token }

func (f *RefusedInverseOfferFilter) Stop() {
	stopTimer(f.timer, f.stopCh)
}

func watchExpiry(timer clock.Timer, stopCh chan struct{}, onExpire func()) {
	select {
	case <-timer.C():
		onExpire()
	case <-stopCh:
		timer.Stop()
	}
}

func stopTimer(timer clock.Timer, stopCh chan struct{}) {
	select {
	case <-stopCh:
		// already stopped
	default:
		close(stopCh)
		timer.Stop()
	}
}
