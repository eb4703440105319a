// Package framework holds per-framework allocator state: subscribed and
// suppressed roles, capabilities, per-role allocatable-resource overrides,
// and the offer/inverse-offer filter tokens installed against it (spec §3).
package framework

import (
	"github.com/St0rmingBr4in/mesos/filters"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

// Capability names the framework-side capabilities the allocator gates
// offers on (spec §4.6).
type Capability string

const (
	CapabilityMultiRole            Capability = "MULTI_ROLE"
	CapabilityHierarchicalRole     Capability = "HIERARCHICAL_ROLE"
	CapabilityGPUResources         Capability = "GPU_RESOURCES"
	CapabilityRevocableResources   Capability = "REVOCABLE_RESOURCES"
	CapabilitySharedResources      Capability = "SHARED_RESOURCES"
	CapabilityRegionAware          Capability = "REGION_AWARE"
	CapabilityReservationRefinement Capability = "RESERVATION_REFINEMENT"
)

// Metrics is an opaque handle migrated to a bounded completed-framework
// map on removal (spec §3); the allocator never looks inside it.
type Metrics interface{}

// Framework is the allocator's view of a single framework.
type Framework struct {
	ID ids.FrameworkID

	roles            map[ids.Role]bool
	suppressedRoles  map[ids.Role]bool
	capabilities     map[Capability]bool
	active           bool
	minAllocatable   map[ids.Role][]resources.ResourceQuantities

	// offerFilters[role][agent] is the set of filters currently
	// suppressing offers of that (role, agent) pair to this framework.
	offerFilters map[ids.Role]map[ids.AgentID]map[filters.Token]filters.OfferFilter
	// inverseOfferFilters[agent] suppresses inverse offers for agent.
	inverseOfferFilters map[ids.AgentID]map[filters.Token]*filters.RefusedInverseOfferFilter

	// pendingRoleRemoval marks roles updateFramework was told to drop but
	// that still hold allocation; the role stays in roles until
	// recoverResources drains it (spec §4.9/§8 S5).
	pendingRoleRemoval map[ids.Role]bool

	Metrics Metrics
}

// New constructs an active framework subscribed to roles, none suppressed.
func New(id ids.FrameworkID, roles []ids.Role, capabilities []Capability) *Framework {
	roleSet := make(map[ids.Role]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	caps := make(map[Capability]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	return &Framework{
		ID:                  id,
		roles:               roleSet,
		suppressedRoles:     make(map[ids.Role]bool),
		capabilities:        caps,
		active:              true,
		minAllocatable:      make(map[ids.Role][]resources.ResourceQuantities),
		offerFilters:        make(map[ids.Role]map[ids.AgentID]map[filters.Token]filters.OfferFilter),
		inverseOfferFilters: make(map[ids.AgentID]map[filters.Token]*filters.RefusedInverseOfferFilter),
		pendingRoleRemoval:  make(map[ids.Role]bool),
	}
}

// Roles returns the set of roles this framework is tracked under.
func (f *Framework) Roles() []ids.Role {
	out := make([]ids.Role, 0, len(f.roles))
	for r := range f.roles {
		out = append(out, r)
	}
	return out
}

// HasRole reports whether role is tracked for this framework.
func (f *Framework) HasRole(role ids.Role) bool { return f.roles[role] }

// AddRole / RemoveRole mutate the tracked role set directly; the
// lifecycle coordinator is responsible for driving sorter
// tracking/untracking alongside these (spec §4.9).
func (f *Framework) AddRole(role ids.Role) {
	f.roles[role] = true
	delete(f.pendingRoleRemoval, role)
}
func (f *Framework) RemoveRole(role ids.Role) {
	delete(f.roles, role)
	delete(f.suppressedRoles, role)
	delete(f.pendingRoleRemoval, role)
}

// MarkRolePendingRemoval records that role was dropped from the
// framework's desired set while allocation on it was still outstanding.
func (f *Framework) MarkRolePendingRemoval(role ids.Role) { f.pendingRoleRemoval[role] = true }

// IsRolePendingRemoval reports whether role is waiting on
// recoverResources to drain before it can actually be removed.
func (f *Framework) IsRolePendingRemoval(role ids.Role) bool { return f.pendingRoleRemoval[role] }

// IsSuppressed reports whether role is currently suppressed for this
// framework.
func (f *Framework) IsSuppressed(role ids.Role) bool { return f.suppressedRoles[role] }

// Suppress / Unsuppress toggle suppression for role.
func (f *Framework) Suppress(role ids.Role)   { f.suppressedRoles[role] = true }
func (f *Framework) Unsuppress(role ids.Role) { delete(f.suppressedRoles, role) }

// Active reports whether the framework is currently active.
func (f *Framework) Active() bool { return f.active }
func (f *Framework) Activate()    { f.active = true }
func (f *Framework) Deactivate()  { f.active = false }

// HasCapability reports whether the framework advertises cap.
func (f *Framework) HasCapability(cap Capability) bool { return f.capabilities[cap] }

// SetMinAllocatableResources installs the per-role override vector used by
// the allocatable predicate (spec §4.5). A nil/empty vector restores the
// "any non-empty resource passes" default for that role.
func (f *Framework) SetMinAllocatableResources(role ids.Role, vector []resources.ResourceQuantities) {
	if len(vector) == 0 {
		delete(f.minAllocatable, role)
		return
	}
	f.minAllocatable[role] = vector
}

// MinAllocatableResources returns the override vector for role, and
// whether one is installed.
func (f *Framework) MinAllocatableResources(role ids.Role) ([]resources.ResourceQuantities, bool) {
	v, ok := f.minAllocatable[role]
	return v, ok
}

// AddOfferFilter installs filter against (role, agent).
func (f *Framework) AddOfferFilter(role ids.Role, agent ids.AgentID, filter filters.OfferFilter) {
	byAgent, ok := f.offerFilters[role]
	if !ok {
		byAgent = make(map[ids.AgentID]map[filters.Token]filters.OfferFilter)
		f.offerFilters[role] = byAgent
	}
	set, ok := byAgent[agent]
	if !ok {
		set = make(map[filters.Token]filters.OfferFilter)
		byAgent[agent] = set
	}
	set[filter.Token()] = filter
}

// RemoveOfferFilter drops a single filter by token, stopping its timer.
func (f *Framework) RemoveOfferFilter(role ids.Role, agent ids.AgentID, token filters.Token) {
	set := f.offerFilters[role][agent]
	if filter, ok := set[token]; ok {
		filter.Stop()
		delete(set, token)
	}
}

// IsOfferFiltered reports whether any installed filter for (role, agent)
// matches candidate.
func (f *Framework) IsOfferFiltered(role ids.Role, agent ids.AgentID, candidate resources.Resources) bool {
	for _, filter := range f.offerFilters[role][agent] {
		if filter.Matches(candidate) {
			return true
		}
	}
	return false
}

// ClearOfferFiltersForRole stops and removes every offer filter installed
// for role, across all agents (part of reviveOffers, spec §4.4).
func (f *Framework) ClearOfferFiltersForRole(role ids.Role) {
	byAgent, ok := f.offerFilters[role]
	if !ok {
		return
	}
	for agent, set := range byAgent {
		for _, filter := range set {
			filter.Stop()
		}
		delete(byAgent, agent)
	}
	delete(f.offerFilters, role)
}

// ClearOfferFiltersForAgent stops and removes every offer filter installed
// for agent, across all roles (updateSlave, when an agent's attributes
// change).
func (f *Framework) ClearOfferFiltersForAgent(agent ids.AgentID) {
	for _, byAgent := range f.offerFilters {
		set, ok := byAgent[agent]
		if !ok {
			continue
		}
		for _, filter := range set {
			filter.Stop()
		}
		delete(byAgent, agent)
	}
}

// AddInverseOfferFilter installs filter against agent.
func (f *Framework) AddInverseOfferFilter(agent ids.AgentID, filter *filters.RefusedInverseOfferFilter) {
	set, ok := f.inverseOfferFilters[agent]
	if !ok {
		set = make(map[filters.Token]*filters.RefusedInverseOfferFilter)
		f.inverseOfferFilters[agent] = set
	}
	set[filter.Token()] = filter
}

// IsInverseOfferFiltered reports whether agent currently has any pending
// inverse-offer filter against this framework.
func (f *Framework) IsInverseOfferFiltered(agent ids.AgentID) bool {
	return len(f.inverseOfferFilters[agent]) > 0
}

// RemoveInverseOfferFilter drops a single inverse-offer filter by token,
// stopping its timer (the expiry counterpart to RemoveOfferFilter).
func (f *Framework) RemoveInverseOfferFilter(agent ids.AgentID, token filters.Token) {
	set := f.inverseOfferFilters[agent]
	if filter, ok := set[token]; ok {
		filter.Stop()
		delete(set, token)
	}
}

// ClearInverseOfferFilters stops and removes every inverse-offer filter
// for this framework, across every agent (reviveOffers, and
// updateUnavailability's "clears all framework inverse-offer filters
// against that agent" when scoped to one agent via
// ClearInverseOfferFiltersForAgent).
func (f *Framework) ClearInverseOfferFilters() {
	for agent := range f.inverseOfferFilters {
		for _, filter := range f.inverseOfferFilters[agent] {
			filter.Stop()
		}
		delete(f.inverseOfferFilters, agent)
	}
}

// ClearInverseOfferFiltersForAgent drops only the filters scoped to agent.
func (f *Framework) ClearInverseOfferFiltersForAgent(agent ids.AgentID) {
	set, ok := f.inverseOfferFilters[agent]
	if !ok {
		return
	}
	for _, filter := range set {
		filter.Stop()
	}
	delete(f.inverseOfferFilters, agent)
}
