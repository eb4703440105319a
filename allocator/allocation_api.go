package allocator

import (
	"time"

	log "github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/St0rmingBr4in/mesos/agent"
	"github.com/St0rmingBr4in/mesos/filters"
	"github.com/St0rmingBr4in/mesos/framework"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

// RequestResources is advisory: the source allows implementations to treat
// it as a no-op, and this one does beyond logging the hint and nudging the
// allocation candidate set for agent so the next cycle considers it sooner.
func (e *Engine) RequestResources(fw ids.FrameworkID, agentID ids.AgentID) {
	e.dispatch(func() {
		log.V(2).Infof("allocator: requestResources hint from %s for %s", fw, agentID)
		if _, ok := e.agents[agentID]; ok {
			e.allocationCandidates[agentID] = true
		}
	})
}

// UpdateAllocation applies a vector of resource conversions to the
// framework's and agent's allocation and the role/framework sorters, and
// (for conversions with a non-empty Consumed and empty Converted) shrinks
// the agent's total (spec §4.9).
func (e *Engine) UpdateAllocation(fw ids.FrameworkID, agentID ids.AgentID, offered resources.Resources, conversions []ResourceConversion) {
	e.dispatch(func() {
		f := e.lookupFramework(fw, "updateAllocation")
		a := e.lookupAgent(agentID, "updateAllocation")
		if f == nil || a == nil {
			return
		}

		before := frameworkAllocationQuantities(e, f)

		updated := offered.Clone()
		fullyConsumed := resources.ResourceQuantities{}
		for _, c := range conversions {
			if c.Consumed.Empty() {
				continue
			}
			next, ok := updated.Sub(c.Consumed)
			if !ok {
				log.Warningf("allocator: updateAllocation: %s's offered resources on %s do not contain conversion input", fw, agentID)
				continue
			}
			updated = next.Add(c.Converted)
			if c.Converted.Empty() {
				fullyConsumed = fullyConsumed.Add(c.Consumed.CreateStrippedScalarQuantity())
			}
		}

		a.Unallocate(offered)
		a.Allocate(updated)
		oldByRole := groupByAllocationRole(offered)
		newByRole := groupByAllocationRole(updated)
		for role := range mergeRoleSets(oldByRole, newByRole) {
			fs := e.roles.FrameworkSorter(role)
			if fs == nil {
				continue
			}
			fs.Update(fw, agentID, oldByRole[role], newByRole[role])
			e.roles.RoleSorter().Update(role, agentID, oldByRole[role], newByRole[role])
		}
		if !fullyConsumed.IsZero() {
			if newTotal, ok := a.Total().Sub(quantitiesAsScalars(fullyConsumed, a.Total())); ok {
				a.SetTotal(newTotal)
				e.roles.UpdateAgentTotal(agentID, newTotal)
			}
		}

		after := frameworkAllocationQuantities(e, f)
		delta := before.Sub(after)
		if !quantitiesEqual(delta, fullyConsumed) {
			log.Warningf("allocator: updateAllocation: allocation delta %v does not match fully-consumed conversions %v for %s", delta, fullyConsumed, fw)
		}
	})
}

// itemRole returns the role an allocated item belongs to: the innermost
// reservation for reserved items (which cycle.go never stamps with an
// explicit AllocationRole), or the AllocationRole tag otherwise.
func itemRole(it resources.Item) ids.Role {
	if n := len(it.Reservations); n > 0 {
		return it.Reservations[n-1]
	}
	return it.AllocationRole
}

// groupByAllocationRole partitions r by itemRole, so a multi-role
// framework's combined allocation can be reconciled against each role's
// sorter independently.
func groupByAllocationRole(r resources.Resources) map[ids.Role]resources.Resources {
	out := make(map[ids.Role]resources.Resources)
	for _, it := range r {
		role := itemRole(it)
		out[role] = append(out[role], it)
	}
	return out
}

func mergeRoleSets(a, b map[ids.Role]resources.Resources) map[ids.Role]bool {
	out := make(map[ids.Role]bool, len(a)+len(b))
	for role := range a {
		out[role] = true
	}
	for role := range b {
		out[role] = true
	}
	return out
}

func frameworkAllocationQuantities(e *Engine, f *framework.Framework) resources.ResourceQuantities {
	total := resources.ResourceQuantities{}
	for _, role := range f.Roles() {
		if fs := e.roles.FrameworkSorter(role); fs != nil {
			total = total.Add(fs.AllocationResources(f.ID).CreateStrippedScalarQuantity())
		}
	}
	return total
}

func quantitiesEqual(a, b resources.ResourceQuantities) bool {
	for name, v := range a {
		if b.Get(name) != v {
			return false
		}
	}
	for name, v := range b {
		if a.Get(name) != v {
			return false
		}
	}
	return true
}

// quantitiesAsScalars renders a quantities vector back into Resources
// items shaped like reference, used only to subtract a fully-consumed
// quantity vector from an agent's total.
func quantitiesAsScalars(q resources.ResourceQuantities, reference resources.Resources) resources.Resources {
	out := make(resources.Resources, 0, len(q))
	for _, it := range reference {
		if it.Kind != resources.Scalar {
			continue
		}
		amt := q.Get(it.Name)
		if amt <= 0 {
			continue
		}
		shrunk := it
		if amt < shrunk.Amount {
			shrunk.Amount = amt
		}
		out = append(out, shrunk)
	}
	return out
}

// errUnavailable is the sentinel wrapped by UpdateAvailable's failure path.
var errUnavailable = errors.New("available resources do not contain the requested operation")

// UpdateAvailable applies ops against agent's currently-available
// resources: every op's Consumes must be contained in the available set,
// checked against a scratch copy first so a failure never mutates state.
func (e *Engine) UpdateAvailable(agentID ids.AgentID, ops []AvailabilityOperation) error {
	var result error
	e.dispatch(func() {
		a, ok := e.agents[agentID]
		if !ok {
			result = errors.Wrapf(errUnavailable, "updateAvailable: unknown agent %s", agentID)
			return
		}
		scratch := a.Available()
		produced := resources.Resources{}
		consumed := resources.Resources{}
		for i, op := range ops {
			next, ok := scratch.Sub(op.Consumes)
			if !ok {
				result = errors.Wrapf(errUnavailable, "updateAvailable: op %d on agent %s", i, agentID)
				return
			}
			scratch = next.Add(op.Produces)
			produced = produced.Add(op.Produces)
			consumed = consumed.Add(op.Consumes)
		}
		newTotal := a.Total()
		if shrunk, ok := newTotal.Sub(consumed); ok {
			newTotal = shrunk
		}
		newTotal = newTotal.Add(produced)
		a.SetTotal(newTotal)
		e.roles.UpdateAgentTotal(agentID, newTotal)
	})
	return result
}

// RecoverResources untracks an allocation from the sorters and the agent,
// and installs a RefusedOfferFilter across every one of fw's roles if
// requested (spec §4.4).
func (e *Engine) RecoverResources(fw ids.FrameworkID, agentID ids.AgentID, r resources.Resources, filterOpts *OfferFilters) {
	e.dispatch(func() {
		f := e.lookupFramework(fw, "recoverResources")
		a := e.lookupAgent(agentID, "recoverResources")
		if f == nil || a == nil {
			return
		}
		a.Unallocate(r)
		for role, byRole := range groupByAllocationRole(r) {
			fs := e.roles.FrameworkSorter(role)
			if fs == nil {
				continue
			}
			fs.Unallocated(fw, agentID, byRole)
			e.roles.RoleSorter().Unallocated(role, agentID, byRole)
			if f.IsRolePendingRemoval(role) && fs.AllocationScalarQuantities(fw).IsZero() {
				f.RemoveRole(role)
			}
			// Only drop fw from the role sorter once it is no longer
			// subscribed to role; a still-subscribed framework with zero
			// allocation must stay tracked so it keeps getting offers
			// (original_source/.../hierarchical.cpp's recoverResources
			// guards this the same way: roles.count(role) == 0 && empty()).
			if !f.HasRole(role) {
				e.roles.UntrackFrameworkUnderRole(role, fw)
			}
		}
		e.allocationCandidates[agentID] = true

		if filterOpts == nil || filterOpts.RefuseSeconds == nil || *filterOpts.RefuseSeconds <= 0 {
			return
		}
		timeout := filters.ClampTimeout(secondsToDuration(*filterOpts.RefuseSeconds), e.opts.AllocationInterval)
		var filter *filters.RefusedOfferFilter
		// r carries the AllocationRole tag stamped when it was allocated;
		// the candidate resources Matches is later compared against come
		// from Agent.Available(), which never does, so the filter's
		// superset is stored without it too.
		filter = filters.NewRefusedOfferFilter(e.clock, r.WithoutAllocationRole(), timeout, func() {
			e.dispatch(func() {
				for _, role := range f.Roles() {
					f.RemoveOfferFilter(role, agentID, filter.Token())
				}
			})
		})
		for _, role := range f.Roles() {
			f.AddOfferFilter(role, agentID, filter)
		}
	})
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// SuppressOffers deactivates fw in the per-role framework sorter for every
// role in roles (or all of fw's roles if roles is empty).
func (e *Engine) SuppressOffers(fw ids.FrameworkID, roles []ids.Role) {
	e.dispatch(func() {
		f := e.mustFramework(fw, "suppressOffers")
		if f == nil {
			return
		}
		for _, r := range resolveRoles(f, roles) {
			e.suppressRole(f, r)
		}
	})
}

// ReviveOffers unsuppresses roles, clears all inverse-offer filters for fw,
// clears all offer filters for roles, then schedules an allocation cycle.
func (e *Engine) ReviveOffers(fw ids.FrameworkID, roles []ids.Role) {
	e.dispatch(func() {
		f := e.mustFramework(fw, "reviveOffers")
		if f == nil {
			return
		}
		targets := resolveRoles(f, roles)
		for _, r := range targets {
			e.unsuppressRole(f, r)
			f.ClearOfferFiltersForRole(r)
		}
		f.ClearInverseOfferFilters()
		for id := range e.agents {
			e.allocationCandidates[id] = true
		}
		e.runCycle()
	})
}

func resolveRoles(f *framework.Framework, roles []ids.Role) []ids.Role {
	if len(roles) == 0 {
		return f.Roles()
	}
	return roles
}

func (e *Engine) suppressRole(f *framework.Framework, role ids.Role) {
	f.Suppress(role)
	if fs := e.roles.FrameworkSorter(role); fs != nil {
		fs.Deactivate(f.ID)
	}
}

func (e *Engine) unsuppressRole(f *framework.Framework, role ids.Role) {
	f.Unsuppress(role)
	if fs := e.roles.FrameworkSorter(role); fs != nil && f.Active() {
		fs.Activate(f.ID)
	}
}

// UpdateUnavailability installs or clears (nil) agent's maintenance
// schedule and clears all framework inverse-offer filters against it,
// forcing re-evaluation (spec §4.7).
func (e *Engine) UpdateUnavailability(agentID ids.AgentID, schedule *agent.Unavailability) {
	e.dispatch(func() {
		a := e.lookupAgent(agentID, "updateUnavailability")
		if a == nil {
			return
		}
		a.SetUnavailability(schedule)
		for _, f := range e.frameworks {
			f.ClearInverseOfferFiltersForAgent(agentID)
		}
		if schedule != nil {
			e.allocationCandidates[agentID] = true
		}
	})
}

// UpdateInverseOffer records fw's response status for agent, clearing its
// outstanding flag regardless, and installs a RefusedInverseOfferFilter if
// requested (spec §4.4).
func (e *Engine) UpdateInverseOffer(agentID ids.AgentID, fw ids.FrameworkID, status string, filterOpts *InverseOfferFilters) {
	e.dispatch(func() {
		a := e.lookupAgent(agentID, "updateInverseOffer")
		f := e.lookupFramework(fw, "updateInverseOffer")
		if a == nil || f == nil {
			return
		}
		a.MaintenanceState().RecordResponse(fw, status)

		if filterOpts == nil || filterOpts.RefuseSeconds == nil || *filterOpts.RefuseSeconds <= 0 {
			return
		}
		timeout := filters.ClampTimeout(secondsToDuration(*filterOpts.RefuseSeconds), e.opts.AllocationInterval)
		var filter *filters.RefusedInverseOfferFilter
		filter = filters.NewRefusedInverseOfferFilter(e.clock, timeout, func() {
			e.dispatch(func() {
				f.RemoveInverseOfferFilter(agentID, filter.Token())
			})
		})
		f.AddInverseOfferFilter(agentID, filter)
	})
}

// GetInverseOfferStatuses returns, for every agent under maintenance, the
// last reported status per framework.
func (e *Engine) GetInverseOfferStatuses() map[ids.AgentID]map[ids.FrameworkID]string {
	var out map[ids.AgentID]map[ids.FrameworkID]string
	e.dispatch(func() {
		out = make(map[ids.AgentID]map[ids.FrameworkID]string)
		for agentID, a := range e.agents {
			if !a.UnderMaintenance() {
				continue
			}
			perFw := make(map[ids.FrameworkID]string)
			for fwID := range e.frameworks {
				if status, ok := a.MaintenanceState().Status(fwID); ok {
					perFw[fwID] = status
				}
			}
			if len(perFw) > 0 {
				out[agentID] = perFw
			}
		}
	})
	return out
}

func (e *Engine) lookupAgent(id ids.AgentID, op string) *agent.Agent {
	a, ok := e.agents[id]
	if !ok {
		log.V(1).Infof("allocator: %s: unknown agent %s (ignored, likely a race with removeSlave)", op, id)
		return nil
	}
	return a
}

func (e *Engine) lookupFramework(id ids.FrameworkID, op string) *framework.Framework {
	f, ok := e.frameworks[id]
	if !ok {
		log.V(1).Infof("allocator: %s: unknown framework %s (ignored, likely a race with removeFramework)", op, id)
		return nil
	}
	return f
}
