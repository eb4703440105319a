// Package role tracks the role tree's shared bookkeeping: which
// frameworks are tracked under each role, quota guarantees, the
// hierarchical reservation aggregate, and the three sorters that rank
// roles and frameworks for the allocation cycle (spec §3, §4.9).
package role

import (
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
	"github.com/St0rmingBr4in/mesos/sorter"
)

// State is the allocator's role-tree bookkeeping, shared across every
// agent and framework mutation so the three sorters it owns never drift
// out of sync with one another (spec §8 invariants).
type State struct {
	fairnessExclude []string

	quotaGuarantees             map[ids.Role]resources.ResourceQuantities
	reservationScalarQuantities map[ids.Role]resources.ResourceQuantities

	roleSorter      *sorter.Sorter[ids.Role]
	quotaRoleSorter *sorter.Sorter[ids.Role]
	frameworkSorter map[ids.Role]*sorter.Sorter[ids.FrameworkID]

	agentTotals map[ids.AgentID]resources.Resources
}

// New builds an empty role tree; fairnessExcludeResourceNames is threaded
// through to every sorter this state creates.
func New(fairnessExcludeResourceNames []string) *State {
	return &State{
		fairnessExclude:             fairnessExcludeResourceNames,
		quotaGuarantees:             make(map[ids.Role]resources.ResourceQuantities),
		reservationScalarQuantities: make(map[ids.Role]resources.ResourceQuantities),
		roleSorter:                  sorter.New[ids.Role](fairnessExcludeResourceNames),
		quotaRoleSorter:             sorter.New[ids.Role](fairnessExcludeResourceNames),
		frameworkSorter:             make(map[ids.Role]*sorter.Sorter[ids.FrameworkID]),
		agentTotals:                 make(map[ids.AgentID]resources.Resources),
	}
}

// RoleSorter ranks all tracked roles against the cluster total.
func (s *State) RoleSorter() *sorter.Sorter[ids.Role] { return s.roleSorter }

// QuotaRoleSorter ranks quota'd roles against the cluster non-revocable
// total.
func (s *State) QuotaRoleSorter() *sorter.Sorter[ids.Role] { return s.quotaRoleSorter }

// FrameworkSorter returns the per-role framework sorter, or nil if role
// has no tracked framework and no allocation.
func (s *State) FrameworkSorter(role ids.Role) *sorter.Sorter[ids.FrameworkID] {
	return s.frameworkSorter[role]
}

// TrackFrameworkUnderRole lazily creates the per-role framework sorter
// (seeding it with every known agent's total), tracks role in roleSorter
// (and quotaRoleSorter, if quota'd) if not already tracked, and adds fw to
// that role's framework sorter (spec §4.9).
func (s *State) TrackFrameworkUnderRole(role ids.Role, fw ids.FrameworkID) {
	fs, ok := s.frameworkSorter[role]
	if !ok {
		fs = sorter.New[ids.FrameworkID](s.fairnessExclude)
		for agent, total := range s.agentTotals {
			fs.AddAgent(agent, total)
		}
		s.frameworkSorter[role] = fs
	}
	if !s.roleSorter.Contains(role) {
		s.roleSorter.Add(role)
	}
	if _, quota := s.quotaGuarantees[role]; quota && !s.quotaRoleSorter.Contains(role) {
		s.quotaRoleSorter.Add(role)
	}
	fs.Add(fw)
}

// UntrackFrameworkUnderRole removes fw from role's framework sorter and
// destroys the per-role sorter (and, for a role without quota, its
// roleSorter entry) once the last framework has left and no allocation
// remains. A quota'd role always stays in both roleSorter and
// quotaRoleSorter regardless (spec §4.9).
func (s *State) UntrackFrameworkUnderRole(role ids.Role, fw ids.FrameworkID) {
	fs, ok := s.frameworkSorter[role]
	if !ok {
		return
	}
	if !fs.AllocationScalarQuantities(fw).IsZero() {
		// still has allocation: stays tracked but falls out of
		// suppression/consideration naturally once its role is gone from
		// the framework's own role set (updateFramework handles that).
		return
	}
	fs.Remove(fw)
	if fs.Count() > 0 {
		return
	}
	if !s.roleSorter.AllocationScalarQuantities(role).IsZero() {
		return
	}
	delete(s.frameworkSorter, role)
	if _, quota := s.quotaGuarantees[role]; !quota {
		s.roleSorter.Remove(role)
	}
}

// SetQuota installs (or replaces) role's guarantee and ensures role is
// tracked in both roleSorter and quotaRoleSorter.
func (s *State) SetQuota(role ids.Role, guarantee resources.ResourceQuantities) {
	s.quotaGuarantees[role] = guarantee.Clone()
	if !s.roleSorter.Contains(role) {
		s.roleSorter.Add(role)
	}
	if !s.quotaRoleSorter.Contains(role) {
		s.quotaRoleSorter.Add(role)
	}
}

// RemoveQuota deletes role's guarantee and drops role from
// quotaRoleSorter. role also leaves roleSorter here if no framework is
// tracked under it and it holds no allocation; otherwise it stays in
// roleSorter until UntrackFrameworkUnderRole removes it once nothing else
// keeps role alive.
func (s *State) RemoveQuota(role ids.Role) {
	delete(s.quotaGuarantees, role)
	s.quotaRoleSorter.Remove(role)
	if fs, ok := s.frameworkSorter[role]; !ok || fs.Count() == 0 {
		if s.roleSorter.AllocationScalarQuantities(role).IsZero() {
			s.roleSorter.Remove(role)
		}
	}
}

// Quota returns role's guarantee, and whether one is set.
func (s *State) Quota(role ids.Role) (resources.ResourceQuantities, bool) {
	q, ok := s.quotaGuarantees[role]
	return q, ok
}

// QuotaRoles returns every role with a quota guarantee set.
func (s *State) QuotaRoles() []ids.Role {
	out := make([]ids.Role, 0, len(s.quotaGuarantees))
	for r := range s.quotaGuarantees {
		out = append(out, r)
	}
	return out
}

// AddAgent folds an agent's total into every sorter this state owns and
// into the reservation aggregate.
func (s *State) AddAgent(id ids.AgentID, total resources.Resources) {
	s.agentTotals[id] = total.Clone()
	s.roleSorter.AddAgent(id, total)
	s.quotaRoleSorter.AddAgent(id, total.NonRevocable())
	for _, fs := range s.frameworkSorter {
		fs.AddAgent(id, total)
	}
	s.addReservationContributions(total)
}

// RemoveAgent reverses AddAgent. Callers must have already unallocated
// every outstanding allocation on this agent across all frameworks.
func (s *State) RemoveAgent(id ids.AgentID) {
	total, ok := s.agentTotals[id]
	if !ok {
		return
	}
	delete(s.agentTotals, id)
	s.roleSorter.RemoveAgent(total)
	s.quotaRoleSorter.RemoveAgent(total.NonRevocable())
	for _, fs := range s.frameworkSorter {
		fs.RemoveAgent(total)
	}
	s.removeReservationContributions(total)
}

// UpdateAgentTotal re-syncs every sorter and the reservation aggregate
// after an agent's total resources changed (updateSlave, spec §4.9).
func (s *State) UpdateAgentTotal(id ids.AgentID, newTotal resources.Resources) {
	old, ok := s.agentTotals[id]
	if !ok {
		s.AddAgent(id, newTotal)
		return
	}
	s.agentTotals[id] = newTotal.Clone()
	s.roleSorter.RemoveAgent(old)
	s.roleSorter.AddAgent(id, newTotal)
	s.quotaRoleSorter.RemoveAgent(old.NonRevocable())
	s.quotaRoleSorter.AddAgent(id, newTotal.NonRevocable())
	for _, fs := range s.frameworkSorter {
		fs.RemoveAgent(old)
		fs.AddAgent(id, newTotal)
	}
	s.removeReservationContributions(old)
	s.addReservationContributions(newTotal)
}

// ReservationScalarQuantities returns the aggregate reservation quantities
// for role, including contributions rolled up from descendants.
func (s *State) ReservationScalarQuantities(role ids.Role) resources.ResourceQuantities {
	return s.reservationScalarQuantities[role].Clone()
}

func (s *State) addReservationContributions(total resources.Resources) {
	for role, q := range reservationContributions(total) {
		s.reservationScalarQuantities[role] = s.reservationScalarQuantities[role].Add(q)
	}
}

func (s *State) removeReservationContributions(total resources.Resources) {
	for role, q := range reservationContributions(total) {
		s.reservationScalarQuantities[role] = s.reservationScalarQuantities[role].Sub(q)
	}
}

// reservationContributions computes, for every role reserved anywhere in
// total and each of its hierarchical ancestors, the scalar quantity
// reserved (spec §3: "child contributions propagate to every ancestor").
func reservationContributions(total resources.Resources) map[ids.Role]resources.ResourceQuantities {
	out := make(map[ids.Role]resources.ResourceQuantities)
	for _, it := range total {
		if it.Kind != resources.Scalar || len(it.Reservations) == 0 || it.Amount <= 0 {
			continue
		}
		effective := it.Reservations[len(it.Reservations)-1]
		targets := append(resources.Ancestors(effective), effective)
		single := resources.NewQuantities(map[string]float64{it.Name: it.Amount})
		for _, role := range targets {
			out[role] = out[role].Add(single)
		}
	}
	return out
}

// ConsumedQuota computes a top-level quota'd role's consumed quota: the
// sum of (a) reservations belonging to role or any descendant (always
// counted, allocated or not) and (b) unreserved, non-revocable allocation
// tagged to role or any descendant (spec §4.3).
func (s *State) ConsumedQuota(role ids.Role) resources.ResourceQuantities {
	consumed := s.reservationScalarQuantities[role].Clone()
	for r, fs := range s.frameworkSorter {
		if r != role && !resources.IsDescendant(r, role) {
			continue
		}
		for _, fw := range fs.Clients() {
			alloc := fs.AllocationResources(fw).Unreserved().NonRevocable()
			consumed = consumed.Add(alloc.CreateStrippedScalarQuantity())
		}
	}
	return consumed
}
