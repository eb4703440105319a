package allocator

import (
	"github.com/St0rmingBr4in/mesos/agent"
	"github.com/St0rmingBr4in/mesos/framework"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

const gpuResourceName = "gpus"

// isCapableOfReceivingAgent implements spec §4.6's agent-level gates: the
// GPU filter option and region-awareness.
func (e *Engine) isCapableOfReceivingAgent(f *framework.Framework, a *agent.Agent) bool {
	if e.opts.FilterGpuResources && hasGPU(a.Total()) && !f.HasCapability(framework.CapabilityGPUResources) {
		return false
	}
	if !f.HasCapability(framework.CapabilityRegionAware) && a.Info.FaultDomain != nil && e.opts.Domain != nil {
		if a.Info.FaultDomain.Region != e.opts.Domain.Region {
			return false
		}
	}
	return true
}

func hasGPU(r resources.Resources) bool {
	for _, it := range r {
		if it.Name == gpuResourceName && it.Kind == resources.Scalar && it.Amount > 0 {
			return true
		}
	}
	return false
}

// stripIncapableResources filters out individual items f cannot consume:
// shared items without SharedResources, revocable items without
// RevocableResources, and refined-reservation-chain items without
// ReservationRefinement (spec §4.6).
func stripIncapableResources(r resources.Resources, f *framework.Framework) resources.Resources {
	return r.Filter(func(it resources.Item) bool {
		if it.Shared && !f.HasCapability(framework.CapabilitySharedResources) {
			return false
		}
		if it.Revocable && !f.HasCapability(framework.CapabilityRevocableResources) {
			return false
		}
		if len(it.Reservations) > 1 && !f.HasCapability(framework.CapabilityReservationRefinement) {
			return false
		}
		return true
	})
}

// isFiltered implements the implicit gates of §4.6 plus the offer-filter
// lookup of §4.4: a multi-role framework cannot be offered from a
// non-multi-role agent; a hierarchical role cannot be offered from a
// non-hierarchical-role agent; and any installed RefusedOfferFilter
// covering candidate suppresses the offer.
func (e *Engine) isFiltered(f *framework.Framework, role ids.Role, a *agent.Agent, candidate resources.Resources) bool {
	if f.HasCapability(framework.CapabilityMultiRole) && !a.HasCapability(agent.CapabilityMultiRole) {
		return true
	}
	if isHierarchical(role) && !a.HasCapability(agent.CapabilityHierarchicalRole) {
		return true
	}
	return f.IsOfferFiltered(role, a.ID, candidate)
}

func isHierarchical(role ids.Role) bool {
	for i := 0; i < len(role); i++ {
		if role[i] == '/' {
			return true
		}
	}
	return false
}

// allocatable implements spec §4.5: false on empty input, otherwise checks
// r against the framework's per-role override vector (falling back to the
// engine's global option), where an empty vector means "any non-empty
// resource passes" and a non-empty vector passes iff r contains at least
// one listed minimum (disjunction).
func (e *Engine) allocatable(r resources.Resources, role ids.Role, f *framework.Framework) bool {
	if r.IsEmpty() {
		return false
	}
	vector, ok := f.MinAllocatableResources(role)
	if !ok {
		vector = e.opts.MinAllocatableResources
	}
	if len(vector) == 0 {
		return true
	}
	quantities := r.CreateStrippedScalarQuantity()
	for _, min := range vector {
		if quantities.Contains(min) {
			return true
		}
	}
	return false
}
