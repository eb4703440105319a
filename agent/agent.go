// Package agent holds per-agent allocator state: total and allocated
// resources, activation, and an optional maintenance schedule (spec §3).
package agent

import (
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

// Capability names the agent-side capabilities the allocator gates offers
// on (spec §4.6).
type Capability string

const (
	CapabilityMultiRole       Capability = "MULTI_ROLE"
	CapabilityHierarchicalRole Capability = "HIERARCHICAL_ROLE"
)

// Info is the static description of an agent: hostname, attributes and an
// optional fault domain.
type Info struct {
	Hostname    string
	Attributes  map[string]string
	FaultDomain *ids.FaultDomain
}

// UnavailableInterval is a single maintenance window.
type UnavailableInterval struct {
	Start    int64 // unix nanoseconds
	Duration int64 // nanoseconds; 0 means unbounded
}

// Unavailability is the schedule installed by updateUnavailability.
type Unavailability struct {
	Intervals []UnavailableInterval
}

// Maintenance tracks the agent's unavailability schedule plus, per
// framework, whether an inverse offer is currently outstanding and the
// most recently reported response status.
type Maintenance struct {
	Schedule *Unavailability

	outstanding map[ids.FrameworkID]bool
	lastStatus  map[ids.FrameworkID]string
}

func newMaintenance() *Maintenance {
	return &Maintenance{
		outstanding: make(map[ids.FrameworkID]bool),
		lastStatus:  make(map[ids.FrameworkID]string),
	}
}

// HasOutstandingInverseOffer reports whether fw still owes a response for
// this agent.
func (m *Maintenance) HasOutstandingInverseOffer(fw ids.FrameworkID) bool {
	return m.outstanding[fw]
}

// MarkInverseOfferSent records that an inverse offer was just issued to fw.
func (m *Maintenance) MarkInverseOfferSent(fw ids.FrameworkID) {
	m.outstanding[fw] = true
}

// RecordResponse clears the outstanding flag for fw and, if status is
// non-empty, remembers it (spec §4.4: "clears the outstanding-offer flag
// for that framework regardless").
func (m *Maintenance) RecordResponse(fw ids.FrameworkID, status string) {
	delete(m.outstanding, fw)
	if status != "" {
		m.lastStatus[fw] = status
	}
}

// Status returns the last reported status for fw, and whether one exists.
func (m *Maintenance) Status(fw ids.FrameworkID) (string, bool) {
	s, ok := m.lastStatus[fw]
	return s, ok
}

// Agent is the allocator's view of a single cluster agent.
type Agent struct {
	ID    ids.AgentID
	Info  Info

	capabilities map[Capability]bool

	total     resources.Resources
	allocated resources.Resources

	activated bool

	maintenance *Maintenance
}

// New constructs an activated agent with no allocation.
func New(id ids.AgentID, info Info, total resources.Resources, capabilities []Capability) *Agent {
	caps := make(map[Capability]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	return &Agent{
		ID:           id,
		Info:         info,
		capabilities: caps,
		total:        total.Clone(),
		allocated:    resources.Resources{},
		activated:    true,
	}
}

// Total returns the agent's total resources.
func (a *Agent) Total() resources.Resources { return a.total }

// Allocated returns the agent's currently allocated resources.
func (a *Agent) Allocated() resources.Resources { return a.allocated }

// Available returns total - allocated. The allocation-role tag committed
// items carry is stripped before subtracting, since total's items never
// carry one and Sub keys on every tag including it (spec §3). Invariant:
// allocated <= total at all times, so this subtraction never fails.
func (a *Agent) Available() resources.Resources {
	avail, ok := a.total.Sub(a.allocated.WithoutAllocationRole())
	if !ok {
		// Should be unreachable given the allocated<=total invariant;
		// fail safe rather than panic on a collaborator-visible path.
		return resources.Resources{}
	}
	return avail
}

// HasCapability reports whether the agent advertises cap.
func (a *Agent) HasCapability(cap Capability) bool {
	return a.capabilities[cap]
}

// Activated reports whether the agent currently accepts offers.
func (a *Agent) Activated() bool { return a.activated }

// Activate/Deactivate toggle whether this agent is offered at all.
func (a *Agent) Activate()   { a.activated = true }
func (a *Agent) Deactivate() { a.activated = false }

// Allocate records that resources r were committed to some framework on
// this agent. Callers are expected to have already checked Available()
// contains r.
func (a *Agent) Allocate(r resources.Resources) {
	a.allocated = a.allocated.Add(r)
}

// Unallocate reverses Allocate.
func (a *Agent) Unallocate(r resources.Resources) {
	if updated, ok := a.allocated.Sub(r); ok {
		a.allocated = updated
	}
}

// SetTotal replaces the agent's total resources wholesale (used by
// updateSlave/addResourceProvider).
func (a *Agent) SetTotal(total resources.Resources) {
	a.total = total.Clone()
}

// GrowTotal adds to the agent's total (addResourceProvider).
func (a *Agent) GrowTotal(additional resources.Resources) {
	a.total = a.total.Add(additional)
}

// UnderMaintenance reports whether the agent has a maintenance schedule.
func (a *Agent) UnderMaintenance() bool {
	return a.maintenance != nil && a.maintenance.Schedule != nil
}

// MaintenanceState returns the agent's maintenance tracker, lazily created.
func (a *Agent) MaintenanceState() *Maintenance {
	if a.maintenance == nil {
		a.maintenance = newMaintenance()
	}
	return a.maintenance
}

// SetUnavailability installs or clears (nil) the maintenance schedule.
func (a *Agent) SetUnavailability(schedule *Unavailability) {
	m := a.MaintenanceState()
	m.Schedule = schedule
}
