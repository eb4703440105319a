package allocator

import (
	"github.com/St0rmingBr4in/mesos/agent"
	"github.com/St0rmingBr4in/mesos/framework"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
	"github.com/St0rmingBr4in/mesos/sorter"
)

// runCycle processes the current candidate set once and clears it (spec
// §4.3). Called only from within the actor.
func (e *Engine) runCycle() {
	if e.paused {
		return
	}
	candidates := e.collectShuffledCandidates()
	if len(candidates) == 0 {
		return
	}

	offers := make(map[ids.FrameworkID]map[ids.Role]map[ids.AgentID]resources.Resources)
	offeredShared := make(map[ids.AgentID]resources.Resources)

	requiredHeadroom, availableHeadroom := e.computeHeadroom()

	e.runStage1(candidates, offers, offeredShared, &requiredHeadroom, &availableHeadroom)
	e.runStage2(candidates, offers, offeredShared, requiredHeadroom, &availableHeadroom)

	for fwID, byRole := range offers {
		e.offerCb(fwID, byRole)
	}

	e.runMaintenanceCycle(candidates)
}

// collectShuffledCandidates drops agents that are not whitelisted, not
// present, or not activated, then shuffles the remainder, and clears the
// candidate set (spec §4.3).
func (e *Engine) collectShuffledCandidates() []ids.AgentID {
	out := make([]ids.AgentID, 0, len(e.allocationCandidates))
	for id := range e.allocationCandidates {
		a, ok := e.agents[id]
		if !ok || !a.Activated() {
			continue
		}
		if e.hasWhitelist && !e.whitelist[id] {
			continue
		}
		out = append(out, id)
	}
	e.allocationCandidates = make(map[ids.AgentID]bool)
	e.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// computeHeadroom computes requiredHeadroom and availableHeadroom once per
// cycle (spec §4.3's "Consumed-quota accounting").
func (e *Engine) computeHeadroom() (resources.ResourceQuantities, resources.ResourceQuantities) {
	required := resources.ResourceQuantities{}
	for _, role := range e.roles.QuotaRoles() {
		guarantee, _ := e.roles.Quota(role)
		consumed := e.roles.ConsumedQuota(role)
		required = required.Add(guarantee.Sub(consumed))
	}

	totalCluster := resources.ResourceQuantities{}
	allocatedCluster := resources.ResourceQuantities{}
	totalReservations := resources.ResourceQuantities{}
	allocatedReservations := resources.ResourceQuantities{}
	unallocatedRevocable := resources.ResourceQuantities{}
	for _, a := range e.agents {
		totalCluster = totalCluster.Add(a.Total().CreateStrippedScalarQuantity())
		allocatedCluster = allocatedCluster.Add(a.Allocated().CreateStrippedScalarQuantity())
		totalReservations = totalReservations.Add(a.Total().Filter(reserved).CreateStrippedScalarQuantity())
		allocatedReservations = allocatedReservations.Add(a.Allocated().Filter(reserved).CreateStrippedScalarQuantity())
		unallocatedRevocable = unallocatedRevocable.Add(a.Available().RevocableOnly().CreateStrippedScalarQuantity())
	}
	available := totalCluster.Sub(allocatedCluster).Sub(totalReservations.Sub(allocatedReservations)).Sub(unallocatedRevocable)
	return required, available
}

func reserved(it resources.Item) bool { return len(it.Reservations) > 0 }

// subtractOffered removes shared resources already committed to another
// role earlier this cycle from available. already carries the
// AllocationRole tag stamped by tagAllocationRole, which available (fresh
// off Agent.Available) never does, so the tag is stripped before Sub's
// key comparison (same mismatch as Agent.Available vs Agent.Allocated).
func subtractOffered(available, already resources.Resources) resources.Resources {
	if already.Empty() {
		return available
	}
	if remaining, ok := available.Sub(already.WithoutAllocationRole()); ok {
		return remaining
	}
	return available
}

// runStage1 implements spec §4.3's quota-satisfaction pass.
func (e *Engine) runStage1(candidates []ids.AgentID, offers map[ids.FrameworkID]map[ids.Role]map[ids.AgentID]resources.Resources, offeredShared map[ids.AgentID]resources.Resources, requiredHeadroom, availableHeadroom *resources.ResourceQuantities) {
	for _, agentID := range candidates {
		a, ok := e.agents[agentID]
		if !ok {
			continue
		}
		for _, role := range e.roles.QuotaRoleSorter().Sort() {
			fs := e.roles.FrameworkSorter(role)
			if fs == nil || len(fs.Sort()) == 0 {
				continue
			}
			e.allocateQuotaRoleOnAgent(role, fs, a, offers, offeredShared, requiredHeadroom, availableHeadroom)
		}
	}
}

func (e *Engine) allocateQuotaRoleOnAgent(role ids.Role, fs *sorter.Sorter[ids.FrameworkID], a *agent.Agent, offers map[ids.FrameworkID]map[ids.Role]map[ids.AgentID]resources.Resources, offeredShared map[ids.AgentID]resources.Resources, requiredHeadroom, availableHeadroom *resources.ResourceQuantities) {
	guarantee, _ := e.roles.Quota(role)

	for _, fwID := range fs.Sort() {
		f := e.frameworks[fwID]
		if f == nil || !f.Active() {
			continue
		}
		available := subtractOffered(a.Available(), offeredShared[a.ID])
		allocatableSubset := available.AllocatableTo(role)
		if allocatableSubset.IsEmpty() {
			break
		}
		if !e.isCapableOfReceivingAgent(f, a) || e.isFiltered(f, role, a, allocatableSubset) {
			continue
		}

		toAllocate := available.ReservedExactly(role).NonRevocable()

		consumed := e.roles.ConsumedQuota(role)
		unsatisfied := guarantee.Sub(consumed)
		newQuotaAllocation := available.NonRevocable().Unreserved().ShrinkToQuantities(unsatisfied)
		toAllocate = toAllocate.Add(newQuotaAllocation)

		if toAllocate.Empty() || toAllocate.IsEmpty() {
			continue
		}

		surplus := availableHeadroom.Sub(*requiredHeadroom)
		extraBudget := make(resources.ResourceQuantities)
		for name, v := range surplus {
			if guarantee.Get(name) == 0 {
				extraBudget[name] = v
			}
		}
		extras := available.Unreserved().NonRevocable().Scalars().ShrinkToQuantities(extraBudget)
		toAllocate = toAllocate.Add(extras)
		nonScalarUnreserved := available.Unreserved().Filter(func(it resources.Item) bool { return it.Kind != resources.Scalar })
		toAllocate = toAllocate.Add(nonScalarUnreserved)

		toAllocate = stripIncapableResources(toAllocate, f)
		if !e.allocatable(toAllocate, role, f) {
			continue
		}

		toAllocate = tagAllocationRole(toAllocate, role)
		e.commitAllocation(f, role, a, toAllocate, offers, offeredShared)

		newQuotaScalars := newQuotaAllocation.CreateStrippedScalarQuantity()
		*requiredHeadroom = requiredHeadroom.Sub(newQuotaScalars)
		allocatedUnreserved := toAllocate.Unreserved().NonRevocable().CreateStrippedScalarQuantity()
		*availableHeadroom = availableHeadroom.Sub(allocatedUnreserved)
	}
}

// tagAllocationRole stamps unreserved items with role as their allocation
// role (spec §4.3 step k); reserved items keep their reservation chain.
func tagAllocationRole(r resources.Resources, role ids.Role) resources.Resources {
	out := make(resources.Resources, len(r))
	for i, it := range r {
		if len(it.Reservations) == 0 {
			it = it.WithAllocationRole(role)
		}
		out[i] = it
	}
	return out
}

// commitAllocation applies an allocation decision to the agent, the role
// and framework sorters, and the per-cycle offer accumulator.
func (e *Engine) commitAllocation(f *framework.Framework, role ids.Role, a *agent.Agent, toAllocate resources.Resources, offers map[ids.FrameworkID]map[ids.Role]map[ids.AgentID]resources.Resources, offeredShared map[ids.AgentID]resources.Resources) {
	a.Allocate(toAllocate)
	if fs := e.roles.FrameworkSorter(role); fs != nil {
		fs.Allocated(f.ID, a.ID, toAllocate)
	}
	e.roles.RoleSorter().Allocated(role, a.ID, toAllocate)

	byRole, ok := offers[f.ID]
	if !ok {
		byRole = make(map[ids.Role]map[ids.AgentID]resources.Resources)
		offers[f.ID] = byRole
	}
	byAgent, ok := byRole[role]
	if !ok {
		byAgent = make(map[ids.AgentID]resources.Resources)
		byRole[role] = byAgent
	}
	byAgent[a.ID] = byAgent[a.ID].Add(toAllocate)

	if shared := toAllocate.SharedOnly(); !shared.Empty() {
		offeredShared[a.ID] = offeredShared[a.ID].Add(shared)
	}
}

// runStage2 implements spec §4.3's fair-share pass over non-quota'd roles.
func (e *Engine) runStage2(candidates []ids.AgentID, offers map[ids.FrameworkID]map[ids.Role]map[ids.AgentID]resources.Resources, offeredShared map[ids.AgentID]resources.Resources, requiredHeadroom resources.ResourceQuantities, availableHeadroom *resources.ResourceQuantities) {
	quotaRoles := make(map[ids.Role]bool)
	for _, r := range e.roles.QuotaRoles() {
		quotaRoles[r] = true
	}

	for _, agentID := range candidates {
		a, ok := e.agents[agentID]
		if !ok {
			continue
		}
		for _, role := range e.roles.RoleSorter().Sort() {
			if quotaRoles[role] {
				continue
			}
			fs := e.roles.FrameworkSorter(role)
			if fs == nil {
				continue
			}
			for _, fwID := range fs.Sort() {
				f := e.frameworks[fwID]
				if f == nil || !f.Active() {
					continue
				}
				available := subtractOffered(a.Available(), offeredShared[a.ID])
				toAllocate := available.AllocatableTo(role)
				if toAllocate.IsEmpty() {
					continue
				}
				if !e.isCapableOfReceivingAgent(f, a) || e.isFiltered(f, role, a, toAllocate) {
					continue
				}

				headroomPortion := toAllocate.Scalars().Unreserved().NonRevocable().CreateStrippedScalarQuantity()
				if !availableHeadroom.Sub(headroomPortion).Contains(requiredHeadroom) {
					toAllocate = withholdHeadroom(toAllocate, headroomPortion)
					if toAllocate.IsEmpty() {
						continue
					}
				}

				toAllocate = stripIncapableResources(toAllocate, f)
				if !e.allocatable(toAllocate, role, f) {
					continue
				}

				toAllocate = tagAllocationRole(toAllocate, role)
				e.commitAllocation(f, role, a, toAllocate, offers, offeredShared)

				allocatedHeadroom := toAllocate.Unreserved().NonRevocable().CreateStrippedScalarQuantity()
				*availableHeadroom = availableHeadroom.Sub(allocatedHeadroom)
			}
		}
	}
}

// withholdHeadroom drops the unreserved, non-revocable scalar portion of
// toAllocate that would dip into required headroom, keeping everything
// else (reserved items, revocable items, non-scalar items).
func withholdHeadroom(toAllocate resources.Resources, headroomPortion resources.ResourceQuantities) resources.Resources {
	return toAllocate.Filter(func(it resources.Item) bool {
		if it.Kind != resources.Scalar || len(it.Reservations) > 0 || it.Revocable {
			return true
		}
		return headroomPortion.Get(it.Name) <= 0
	})
}

// runMaintenanceCycle emits inverse offers for agents under maintenance
// (spec §4.7), run once per cycle after offers are computed.
func (e *Engine) runMaintenanceCycle(candidates []ids.AgentID) {
	inverse := make(map[ids.FrameworkID]map[ids.AgentID]UnavailableResources)
	for _, agentID := range candidates {
		a, ok := e.agents[agentID]
		if !ok || !a.UnderMaintenance() {
			continue
		}
		for _, f := range e.frameworks {
			if !f.Active() {
				continue
			}
			hasAllocation := false
			for _, role := range f.Roles() {
				fs := e.roles.FrameworkSorter(role)
				if fs != nil && !fs.AllocationOn(f.ID, agentID).Empty() {
					hasAllocation = true
					break
				}
			}
			if !hasAllocation {
				continue
			}
			m := a.MaintenanceState()
			if m.HasOutstandingInverseOffer(f.ID) || f.IsInverseOfferFiltered(agentID) {
				continue
			}
			m.MarkInverseOfferSent(f.ID)
			byAgent, ok := inverse[f.ID]
			if !ok {
				byAgent = make(map[ids.AgentID]UnavailableResources)
				inverse[f.ID] = byAgent
			}
			byAgent[agentID] = UnavailableResources{
				Resources: resources.Resources{},
				Schedule:  a.MaintenanceState().Schedule,
			}
		}
	}
	for fwID, byAgent := range inverse {
		e.inverseCb(fwID, byAgent)
	}
}
