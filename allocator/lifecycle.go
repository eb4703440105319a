package allocator

import (
	log "github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/St0rmingBr4in/mesos/agent"
	"github.com/St0rmingBr4in/mesos/framework"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

// AddFramework registers a new, active framework subscribed to roles.
// Duplicate ids are a precondition violation (spec §7).
func (e *Engine) AddFramework(id ids.FrameworkID, roles []ids.Role, capabilities []framework.Capability) {
	e.dispatch(func() {
		if _, ok := e.frameworks[id]; ok {
			e.fatalf("allocator: addFramework: duplicate framework %s", id)
			return
		}
		f := framework.New(id, roles, capabilities)
		e.frameworks[id] = f
		for _, r := range roles {
			e.roles.TrackFrameworkUnderRole(r, id)
		}
	})
}

// RemoveFramework untracks the framework from every role it still
// belongs to and recycles its allocation back to the agents, then moves
// its metrics into the bounded completed-framework cache.
func (e *Engine) RemoveFramework(id ids.FrameworkID) {
	e.dispatch(func() {
		f, ok := e.frameworks[id]
		if !ok {
			log.V(1).Infof("allocator: removeFramework: unknown framework %s", id)
			return
		}
		for _, r := range f.Roles() {
			e.recycleFrameworkRoleAllocation(r, id)
			e.roles.UntrackFrameworkUnderRole(r, id)
		}
		e.completedMetrics.Add(id, f.Metrics)
		delete(e.frameworks, id)
	})
}

// recycleFrameworkRoleAllocation releases every agent allocation f holds
// under role back to the owning agents, without reoffering it (the
// framework is going away).
func (e *Engine) recycleFrameworkRoleAllocation(r ids.Role, f ids.FrameworkID) {
	fs := e.roles.FrameworkSorter(r)
	if fs == nil {
		return
	}
	alloc := fs.AllocationScalarQuantities(f)
	if alloc.IsZero() {
		return
	}
	for agentID, a := range e.agents {
		on := fs.AllocationOn(f, agentID)
		if on.Empty() {
			continue
		}
		a.Unallocate(on)
		fs.Unallocated(f, agentID, on)
		e.roles.RoleSorter().Unallocated(r, agentID, on)
	}
}

// ActivateFramework / DeactivateFramework toggle whether a framework's
// roles are considered during allocation cycles.
func (e *Engine) ActivateFramework(id ids.FrameworkID) {
	e.dispatch(func() {
		f := e.mustFramework(id, "activateFramework")
		if f == nil {
			return
		}
		f.Activate()
		for _, r := range f.Roles() {
			if fs := e.roles.FrameworkSorter(r); fs != nil && !f.IsSuppressed(r) {
				fs.Activate(id)
			}
		}
	})
}

func (e *Engine) DeactivateFramework(id ids.FrameworkID) {
	e.dispatch(func() {
		f := e.mustFramework(id, "deactivateFramework")
		if f == nil {
			return
		}
		f.Deactivate()
		for _, r := range f.Roles() {
			if fs := e.roles.FrameworkSorter(r); fs != nil {
				fs.Deactivate(id)
			}
		}
	})
}

// UpdateFramework reconciles the framework's role set and suppressed set
// to newRoles/suppressedRoles (spec §4.9): tracks added roles, untracks
// removed roles (unless they still hold allocation), then reaches exactly
// the requested suppression via suppressRole/unsuppressRole.
func (e *Engine) UpdateFramework(id ids.FrameworkID, newRoles []ids.Role, capabilities []framework.Capability, suppressedRoles []ids.Role) {
	e.dispatch(func() {
		f := e.mustFramework(id, "updateFramework")
		if f == nil {
			return
		}
		newSet := make(map[ids.Role]bool, len(newRoles))
		for _, r := range newRoles {
			newSet[r] = true
		}
		oldSet := make(map[ids.Role]bool)
		for _, r := range f.Roles() {
			oldSet[r] = true
		}

		for r := range newSet {
			if !oldSet[r] {
				f.AddRole(r)
				e.roles.TrackFrameworkUnderRole(r, id)
				if fs := e.roles.FrameworkSorter(r); fs != nil && f.Active() {
					fs.Activate(id)
				}
			}
		}
		for r := range oldSet {
			if !newSet[r] {
				fs := e.roles.FrameworkSorter(r)
				hasAlloc := fs != nil && !fs.AllocationScalarQuantities(id).IsZero()
				if hasAlloc {
					fs.Deactivate(id)
					f.MarkRolePendingRemoval(r)
					continue
				}
				f.RemoveRole(r)
				e.roles.UntrackFrameworkUnderRole(r, id)
			}
		}

		suppressSet := make(map[ids.Role]bool, len(suppressedRoles))
		for _, r := range suppressedRoles {
			suppressSet[r] = true
		}
		for _, r := range f.Roles() {
			switch {
			case suppressSet[r] && !f.IsSuppressed(r):
				e.suppressRole(f, r)
			case !suppressSet[r] && f.IsSuppressed(r):
				e.unsuppressRole(f, r)
			}
		}
	})
}

func (e *Engine) mustFramework(id ids.FrameworkID, op string) *framework.Framework {
	f, ok := e.frameworks[id]
	if !ok {
		e.fatalf("allocator: %s: unknown framework %s", op, id)
		return nil
	}
	return f
}

// AddSlave registers a new agent, seeds every sorter with its total, and
// checks whether recovery can resume early (spec §4.8).
func (e *Engine) AddSlave(id ids.AgentID, info agent.Info, total resources.Resources, capabilities []agent.Capability) {
	e.dispatch(func() {
		if _, ok := e.agents[id]; ok {
			e.fatalf("allocator: addSlave: duplicate agent %s", id)
			return
		}
		a := agent.New(id, info, total, capabilities)
		e.agents[id] = a
		e.roles.AddAgent(id, total)
		e.allocationCandidates[id] = true

		if e.recoveryThreshold > 0 && len(e.agents) >= e.recoveryThreshold {
			e.recoveryExpected = 0
			e.recoveryThreshold = 0
			e.resumeLocked()
		}
	})
}

// RemoveSlave drops the agent and releases whatever was allocated on it
// from every affected framework's sorters, without reoffering it.
func (e *Engine) RemoveSlave(id ids.AgentID) {
	e.dispatch(func() {
		_, ok := e.agents[id]
		if !ok {
			log.V(1).Infof("allocator: removeSlave: unknown agent %s", id)
			return
		}
		for _, f := range e.frameworks {
			for _, r := range f.Roles() {
				fs := e.roles.FrameworkSorter(r)
				if fs == nil {
					continue
				}
				on := fs.AllocationOn(f.ID, id)
				if on.Empty() {
					continue
				}
				fs.Unallocated(f.ID, id, on)
				e.roles.RoleSorter().Unallocated(r, id, on)
			}
		}
		e.roles.RemoveAgent(id)
		delete(e.agents, id)
		delete(e.allocationCandidates, id)
	})
}

// UpdateSlave overwrites the agent's info, removing all offer filters for
// it if attributes changed, and re-syncs sorters to its total (spec §4.9).
// The capabilities argument is not applied: the agent keeps the
// capabilities it was added with.
func (e *Engine) UpdateSlave(id ids.AgentID, info agent.Info, capabilities []agent.Capability, total resources.Resources) {
	e.dispatch(func() {
		a, ok := e.agents[id]
		if !ok {
			log.V(1).Infof("allocator: updateSlave: unknown agent %s", id)
			return
		}
		if !attributesEqual(a.Info.Attributes, info.Attributes) {
			for _, f := range e.frameworks {
				f.ClearOfferFiltersForAgent(id)
			}
		}
		a.Info = info
		a.SetTotal(total)
		e.roles.UpdateAgentTotal(id, total)
	})
}

func attributesEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// ActivateSlave / DeactivateSlave toggle whether an agent is offered at all.
func (e *Engine) ActivateSlave(id ids.AgentID) {
	e.dispatch(func() {
		if a, ok := e.agents[id]; ok {
			a.Activate()
		}
	})
}

func (e *Engine) DeactivateSlave(id ids.AgentID) {
	e.dispatch(func() {
		if a, ok := e.agents[id]; ok {
			a.Deactivate()
		}
	})
}

// AddResourceProvider grows an agent's total by additional and its
// allocation by the sum of used, crediting known frameworks (spec §4.9).
func (e *Engine) AddResourceProvider(id ids.AgentID, additional resources.Resources, used map[ids.FrameworkID]resources.Resources) {
	e.dispatch(func() {
		a, ok := e.agents[id]
		if !ok {
			e.fatalf("allocator: addResourceProvider: unknown agent %s", id)
			return
		}
		a.GrowTotal(additional)
		e.roles.UpdateAgentTotal(id, a.Total())
		for fwID, r := range used {
			if _, ok := e.frameworks[fwID]; !ok {
				continue
			}
			a.Allocate(r)
			for role, byRole := range groupByAllocationRole(r) {
				if fs := e.roles.FrameworkSorter(role); fs != nil {
					fs.Allocated(fwID, id, byRole)
					e.roles.RoleSorter().Allocated(role, id, byRole)
				}
			}
		}
	})
}

// UpdateWhitelist installs the set of agents eligible for allocation; a nil
// slice clears the whitelist (every agent becomes eligible again).
func (e *Engine) UpdateWhitelist(agents []ids.AgentID) {
	e.dispatch(func() {
		if agents == nil {
			e.whitelist = nil
			e.hasWhitelist = false
		} else {
			set := make(map[ids.AgentID]bool, len(agents))
			for _, a := range agents {
				set[a] = true
			}
			e.whitelist = set
			e.hasWhitelist = true
		}
		if e.opts.store != nil {
			if err := e.opts.store.SaveWhitelist(agents); err != nil {
				log.Warningf("allocator: updateWhitelist: configstore save failed: %v", err)
			}
		}
	})
}

// SetQuota installs role's guarantee.
func (e *Engine) SetQuota(role ids.Role, guarantee resources.ResourceQuantities) {
	e.dispatch(func() {
		e.roles.SetQuota(role, guarantee)
		if e.opts.store != nil {
			if err := e.opts.store.SaveQuota(role, guarantee); err != nil {
				log.Warningf("allocator: setQuota: configstore save failed for %s: %v", role, err)
			}
		}
	})
}

// RemoveQuota deletes role's guarantee.
func (e *Engine) RemoveQuota(role ids.Role) {
	e.dispatch(func() {
		e.roles.RemoveQuota(role)
		if e.opts.store != nil {
			if err := e.opts.store.RemoveQuota(role); err != nil {
				log.Warningf("allocator: removeQuota: configstore delete failed for %s: %v", role, err)
			}
		}
	})
}

// UpdateWeights installs DRF weights for the given roles in the role
// sorter and the quota-role sorter (weights here are role weights, §6's
// updateWeights). Client weights inside the per-role framework sorters are
// not changed.
func (e *Engine) UpdateWeights(weights map[ids.Role]float64) {
	e.dispatch(func() {
		for r, w := range weights {
			e.roles.RoleSorter().UpdateWeight(r, w)
			e.roles.QuotaRoleSorter().UpdateWeight(r, w)
			if e.opts.store != nil {
				if err := e.opts.store.SaveWeight(r, w); err != nil {
					log.Warningf("allocator: updateWeights: configstore save failed for %s: %v", r, err)
				}
			}
		}
	})
}

// LoadFromConfigStore repopulates quotas, weights and the whitelist from the
// Engine's configured store, then calls Recover(expectedAgents, ...) so a
// restarted master pauses allocation until enough agents have re-registered
// (spec §4.8). It is a no-op if no store was attached via WithConfigStore.
func (e *Engine) LoadFromConfigStore(expectedAgents int) error {
	if e.opts.store == nil {
		return nil
	}
	quotas, err := e.opts.store.LoadQuotas()
	if err != nil {
		return errors.Wrap(err, "allocator: loadFromConfigStore: quotas")
	}
	weights, err := e.opts.store.LoadWeights()
	if err != nil {
		return errors.Wrap(err, "allocator: loadFromConfigStore: weights")
	}
	whitelist, err := e.opts.store.LoadWhitelist()
	if err != nil {
		return errors.Wrap(err, "allocator: loadFromConfigStore: whitelist")
	}

	e.Recover(expectedAgents, quotas)
	if len(weights) > 0 {
		e.UpdateWeights(weights)
	}
	if whitelist != nil {
		e.UpdateWhitelist(whitelist)
	}
	return nil
}
