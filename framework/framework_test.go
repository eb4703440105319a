package framework

import (
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"

	"github.com/St0rmingBr4in/mesos/filters"
	"github.com/St0rmingBr4in/mesos/resources"
)

func TestSuppressUnsuppressRoundTrip(t *testing.T) {
	f := New("fw1", []string{"dev"}, nil)
	assert.False(t, f.IsSuppressed("dev"))
	f.Suppress("dev")
	assert.True(t, f.IsSuppressed("dev"))
	f.Unsuppress("dev")
	assert.False(t, f.IsSuppressed("dev"))
}

func TestOfferFilterMatching(t *testing.T) {
	f := New("fw1", []string{"dev"}, nil)
	c := fakeclock.NewFakeClock(time.Now())
	filter := filters.NewRefusedOfferFilter(c, resources.Resources{resources.NewScalar("cpus", 4)}, time.Minute, func() {})

	f.AddOfferFilter("dev", "agent1", filter)
	assert.True(t, f.IsOfferFiltered("dev", "agent1", resources.Resources{resources.NewScalar("cpus", 2)}))
	assert.False(t, f.IsOfferFiltered("dev", "agent1", resources.Resources{resources.NewScalar("cpus", 5)}))
	assert.False(t, f.IsOfferFiltered("dev", "agent2", resources.Resources{resources.NewScalar("cpus", 2)}))

	f.ClearOfferFiltersForRole("dev")
	assert.False(t, f.IsOfferFiltered("dev", "agent1", resources.Resources{resources.NewScalar("cpus", 2)}))
}

func TestInverseOfferFilterLifecycle(t *testing.T) {
	f := New("fw1", []string{"dev"}, nil)
	c := fakeclock.NewFakeClock(time.Now())
	filter := filters.NewRefusedInverseOfferFilter(c, time.Minute, func() {})

	assert.False(t, f.IsInverseOfferFiltered("agent1"))
	f.AddInverseOfferFilter("agent1", filter)
	assert.True(t, f.IsInverseOfferFiltered("agent1"))

	f.ClearInverseOfferFiltersForAgent("agent1")
	assert.False(t, f.IsInverseOfferFiltered("agent1"))
}

func TestMinAllocatableResourcesDefaultsEmpty(t *testing.T) {
	f := New("fw1", []string{"dev"}, nil)
	_, ok := f.MinAllocatableResources("dev")
	assert.False(t, ok)

	f.SetMinAllocatableResources("dev", []resources.ResourceQuantities{resources.NewQuantities(map[string]float64{"cpus": 1})})
	v, ok := f.MinAllocatableResources("dev")
	assert.True(t, ok)
	assert.Len(t, v, 1)

	f.SetMinAllocatableResources("dev", nil)
	_, ok = f.MinAllocatableResources("dev")
	assert.False(t, ok)
}
