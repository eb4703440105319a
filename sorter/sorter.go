// Package sorter implements the weighted Dominant Resource Fairness
// ordering shared by the role sorter, the quota-role sorter and every
// per-role framework sorter in the allocator.
package sorter

import (
	"sort"

	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

// AgentID identifies a resource source the sorter has been told about via
// AddAgent; it is opaque to the sorter itself.
type AgentID = ids.AgentID

// Sorter orders a set of clients of type C (a role name or a framework id,
// depending on which of the three sorters in role.State this backs) by
// ascending weighted dominant share. C must be comparable so it can key
// the sorter's internal maps.
type Sorter[C comparable] struct {
	excludeNames map[string]bool

	total resources.ResourceQuantities

	weights    map[C]float64
	active     map[C]bool
	order      map[C]int
	allocation map[C]resources.ResourceQuantities
	byAgent    map[C]map[AgentID]resources.Resources

	nextSeq int
}

// New builds an empty Sorter. fairnessExcludeResourceNames lists resource
// names ignored when computing dominant share (spec §6 options).
func New[C comparable](fairnessExcludeResourceNames []string) *Sorter[C] {
	exclude := make(map[string]bool, len(fairnessExcludeResourceNames))
	for _, n := range fairnessExcludeResourceNames {
		exclude[n] = true
	}
	return &Sorter[C]{
		excludeNames: exclude,
		total:        resources.ResourceQuantities{},
		weights:      make(map[C]float64),
		active:       make(map[C]bool),
		order:        make(map[C]int),
		allocation:   make(map[C]resources.ResourceQuantities),
		byAgent:      make(map[C]map[AgentID]resources.Resources),
	}
}

// Add registers a new, initially active client with weight 1 and no
// allocation. A no-op if the client is already present.
func (s *Sorter[C]) Add(c C) {
	if s.Contains(c) {
		return
	}
	s.weights[c] = 1
	s.active[c] = true
	s.order[c] = s.nextSeq
	s.nextSeq++
	s.allocation[c] = resources.ResourceQuantities{}
	s.byAgent[c] = make(map[AgentID]resources.Resources)
}

// Remove deletes a client and all bookkeeping for it.
func (s *Sorter[C]) Remove(c C) {
	delete(s.weights, c)
	delete(s.active, c)
	delete(s.order, c)
	delete(s.allocation, c)
	delete(s.byAgent, c)
}

// Contains reports whether c is currently tracked.
func (s *Sorter[C]) Contains(c C) bool {
	_, ok := s.order[c]
	return ok
}

// Count returns the number of tracked clients, active or not.
func (s *Sorter[C]) Count() int {
	return len(s.order)
}

// Activate marks c eligible for Sort(); a no-op if c is untracked.
func (s *Sorter[C]) Activate(c C) {
	if s.Contains(c) {
		s.active[c] = true
	}
}

// Deactivate excludes c from Sort() while retaining its allocation.
func (s *Sorter[C]) Deactivate(c C) {
	if s.Contains(c) {
		s.active[c] = false
	}
}

// IsActive reports whether c is tracked and active.
func (s *Sorter[C]) IsActive(c C) bool {
	return s.active[c]
}

// UpdateWeight sets c's DRF weight. w must be positive; non-positive
// values are treated as 1.
func (s *Sorter[C]) UpdateWeight(c C, w float64) {
	if w <= 0 {
		w = 1
	}
	s.weights[c] = w
}

// AddAgent folds an agent's total resources into the sorter's cluster
// total, used as the DRF denominator.
func (s *Sorter[C]) AddAgent(agent AgentID, total resources.Resources) {
	q := total.CreateStrippedScalarQuantity()
	s.total = s.total.Add(q)
}

// RemoveAgent subtracts an agent's total from the cluster total. Callers
// must also Unallocated every outstanding allocation on that agent first;
// RemoveAgent does not do this itself because the sorter does not track
// agent totals per-agent (only the running sum), matching the source's
// choice to let the caller (role.State) own per-agent bookkeeping.
func (s *Sorter[C]) RemoveAgent(total resources.Resources) {
	q := total.CreateStrippedScalarQuantity()
	s.total = s.total.Sub(q)
}

// Allocated records that r has been allocated to c on agent.
func (s *Sorter[C]) Allocated(c C, agent AgentID, r resources.Resources) {
	if !s.Contains(c) {
		return
	}
	s.allocation[c] = s.allocation[c].Add(r.CreateStrippedScalarQuantity())
	byAgent := s.byAgent[c]
	byAgent[agent] = byAgent[agent].Add(r)
}

// Unallocated records that r has been returned by c from agent.
func (s *Sorter[C]) Unallocated(c C, agent AgentID, r resources.Resources) {
	if !s.Contains(c) {
		return
	}
	s.allocation[c] = s.allocation[c].Sub(r.CreateStrippedScalarQuantity())
	byAgent := s.byAgent[c]
	if cur, ok := byAgent[agent].Sub(r); ok {
		byAgent[agent] = cur
	}
	if byAgent[agent].IsEmpty() {
		delete(byAgent, agent)
	}
}

// Update replaces old with updated in c's allocation on agent.
func (s *Sorter[C]) Update(c C, agent AgentID, old, updated resources.Resources) {
	s.Unallocated(c, agent, old)
	s.Allocated(c, agent, updated)
}

// AllocationScalarQuantities returns c's total allocation across all
// agents, projected to scalar quantities.
func (s *Sorter[C]) AllocationScalarQuantities(c C) resources.ResourceQuantities {
	return s.allocation[c].Clone()
}

// TotalScalarQuantities returns the cluster total this sorter was given
// via AddAgent/RemoveAgent.
func (s *Sorter[C]) TotalScalarQuantities() resources.ResourceQuantities {
	return s.total.Clone()
}

// AllocationOn returns c's allocated Resources on a specific agent.
func (s *Sorter[C]) AllocationOn(c C, agent AgentID) resources.Resources {
	return s.byAgent[c][agent]
}

// Clients returns every tracked client, active or not.
func (s *Sorter[C]) Clients() []C {
	out := make([]C, 0, len(s.order))
	for c := range s.order {
		out = append(out, c)
	}
	return out
}

// AllocationResources returns c's full allocated Resources (with
// reservation/revocable/shared tags intact) across every agent.
func (s *Sorter[C]) AllocationResources(c C) resources.Resources {
	var out resources.Resources
	for _, r := range s.byAgent[c] {
		out = out.Add(r)
	}
	return out
}

// dominantShare computes client c's weighted dominant share.
func (s *Sorter[C]) dominantShare(c C) float64 {
	alloc := s.allocation[c]
	weight := s.weights[c]
	if weight <= 0 {
		weight = 1
	}
	var dominant float64
	for name, total := range s.total {
		if total <= 0 || s.excludeNames[name] {
			continue
		}
		share := alloc.Get(name) / total
		if share > dominant {
			dominant = share
		}
	}
	return dominant / weight
}

// Sort returns every active client in ascending dominant-share order.
// Ties are broken by insertion order (the client added first sorts
// first), a deterministic choice documented for the S1 scenario where two
// frameworks start with zero allocation.
func (s *Sorter[C]) Sort() []C {
	out := make([]C, 0, len(s.order))
	for c := range s.order {
		if s.active[c] {
			out = append(out, c)
		}
	}
	shares := make(map[C]float64, len(out))
	for _, c := range out {
		shares[c] = s.dominantShare(c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if shares[a] != shares[b] {
			return shares[a] < shares[b]
		}
		return s.order[a] < s.order[b]
	})
	return out
}
