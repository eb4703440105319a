package allocator

import (
	"github.com/St0rmingBr4in/mesos/agent"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

// OfferCallback is invoked at most once per cycle per framework with any
// offer, carrying the resources offered grouped by role and then by agent.
type OfferCallback func(framework ids.FrameworkID, offers map[ids.Role]map[ids.AgentID]resources.Resources)

// UnavailableResources pairs the (always empty, per §4.3) inverse-offer
// resources with the agent's unavailability schedule.
type UnavailableResources struct {
	Resources resources.Resources
	Schedule  *agent.Unavailability
}

// InverseOfferCallback is invoked at most once per cycle per framework
// with any inverse offer.
type InverseOfferCallback func(framework ids.FrameworkID, offers map[ids.AgentID]UnavailableResources)

// OfferFilters carries the caller-supplied suppression request attached to
// recoverResources; RefuseSeconds mirrors the teacher's own
// mesos.Filters{RefuseSeconds: proto.Float64(...)} shape. A nil pointer or
// a non-positive value means "install no filter".
type OfferFilters struct {
	RefuseSeconds *float64
}

// InverseOfferFilters mirrors OfferFilters for updateInverseOffer.
type InverseOfferFilters struct {
	RefuseSeconds *float64
}

// ResourceConversion is a single {consumed, converted} pair applied by
// updateAllocation (spec §4.9). An empty Consumed denotes additional
// shared allocation and is skipped for agent-total updates.
type ResourceConversion struct {
	Consumed  resources.Resources
	Converted resources.Resources
}

// AvailabilityOperation is applied by updateAvailable against an agent's
// currently-available resources: Consumes must be contained in the
// agent's available resources, after which Produces is added to the
// agent's total (modeling operator-driven reserve/unreserve/volume
// operations that change total composition without touching any
// framework's allocation).
type AvailabilityOperation struct {
	Consumes resources.Resources
	Produces resources.Resources
}
