package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/St0rmingBr4in/mesos/resources"
)

func TestAvailableIsTotalMinusAllocated(t *testing.T) {
	a := New("agent1", Info{Hostname: "h1"}, resources.Resources{resources.NewScalar("cpus", 10)}, nil)
	a.Allocate(resources.Resources{resources.NewScalar("cpus", 4)})

	assert.Equal(t, 6.0, a.Available().CreateStrippedScalarQuantity()["cpus"])
	assert.Equal(t, 4.0, a.Allocated().CreateStrippedScalarQuantity()["cpus"])
}

// Allocated items are stamped with an AllocationRole tag that total's
// items never carry; Available must still see them as the same resource
// when subtracting, not silently hand the whole agent back out.
func TestAvailableStripsAllocationRoleTagBeforeSubtracting(t *testing.T) {
	a := New("agent1", Info{Hostname: "h1"}, resources.Resources{resources.NewScalar("cpus", 10)}, nil)
	a.Allocate(resources.Resources{resources.NewScalar("cpus", 4).WithAllocationRole("dev")})

	assert.Equal(t, 6.0, a.Available().CreateStrippedScalarQuantity()["cpus"])
}

func TestActivationDefaultsTrue(t *testing.T) {
	a := New("agent1", Info{}, nil, nil)
	assert.True(t, a.Activated())
	a.Deactivate()
	assert.False(t, a.Activated())
	a.Activate()
	assert.True(t, a.Activated())
}

func TestCapabilities(t *testing.T) {
	a := New("agent1", Info{}, nil, []Capability{CapabilityMultiRole})
	assert.True(t, a.HasCapability(CapabilityMultiRole))
	assert.False(t, a.HasCapability(CapabilityHierarchicalRole))
}

func TestMaintenanceOutstandingFlag(t *testing.T) {
	a := New("agent1", Info{}, nil, nil)
	m := a.MaintenanceState()
	assert.False(t, m.HasOutstandingInverseOffer("fw1"))

	m.MarkInverseOfferSent("fw1")
	assert.True(t, m.HasOutstandingInverseOffer("fw1"))

	m.RecordResponse("fw1", "accepted")
	assert.False(t, m.HasOutstandingInverseOffer("fw1"))
	status, ok := m.Status("fw1")
	assert.True(t, ok)
	assert.Equal(t, "accepted", status)
}
