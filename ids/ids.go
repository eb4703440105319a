// Package ids defines the small set of identifier and topology value
// types shared across the allocator's packages (agent, framework, role,
// sorter, allocator), kept separate so none of those packages needs to
// import another's to agree on an id's representation.
package ids

// AgentID identifies an agent (mesos calls this a SlaveID historically).
type AgentID string

// FrameworkID identifies a framework.
type FrameworkID string

// Role is a "/"-separated path naming a point in the allocation hierarchy.
type Role = string

// FaultDomain locates an agent or a master within a region/zone topology
// (spec §4.6 region-awareness).
type FaultDomain struct {
	Region string
	Zone   string
}

// SameRegion reports whether two domains share a region. A nil domain on
// either side is treated as "no domain", which is never remote.
func SameRegion(a, b *FaultDomain) bool {
	if a == nil || b == nil {
		return true
	}
	return a.Region == b.Region
}
