package role

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/St0rmingBr4in/mesos/resources"
)

func TestTrackFrameworkCreatesFrameworkSorterSeededWithAgents(t *testing.T) {
	s := New(nil)
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})

	s.TrackFrameworkUnderRole("dev", "fw1")
	fs := s.FrameworkSorter("dev")
	if assert.NotNil(t, fs) {
		assert.True(t, fs.Contains("fw1"))
		assert.Equal(t, 10.0, fs.TotalScalarQuantities().Get("cpus"))
	}
	assert.True(t, s.RoleSorter().Contains("dev"))
}

func TestUntrackFrameworkDestroysRoleWhenLastFrameworkLeavesWithNoAllocation(t *testing.T) {
	s := New(nil)
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})
	s.TrackFrameworkUnderRole("dev", "fw1")

	s.UntrackFrameworkUnderRole("dev", "fw1")
	assert.Nil(t, s.FrameworkSorter("dev"))
	assert.False(t, s.RoleSorter().Contains("dev"))
}

func TestUntrackFrameworkKeepsAllocatedFramework(t *testing.T) {
	s := New(nil)
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})
	s.TrackFrameworkUnderRole("dev", "fw1")
	s.FrameworkSorter("dev").Allocated("fw1", "agent1", resources.Resources{resources.NewScalar("cpus", 2)})

	s.UntrackFrameworkUnderRole("dev", "fw1")
	fs := s.FrameworkSorter("dev")
	if assert.NotNil(t, fs) {
		assert.True(t, fs.Contains("fw1"))
	}
}

func TestQuotaRoleStaysTrackedAfterLastFrameworkLeaves(t *testing.T) {
	s := New(nil)
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})
	s.SetQuota("dev", resources.NewQuantities(map[string]float64{"cpus": 4}))
	s.TrackFrameworkUnderRole("dev", "fw1")

	s.UntrackFrameworkUnderRole("dev", "fw1")
	assert.True(t, s.RoleSorter().Contains("dev"))
	assert.True(t, s.QuotaRoleSorter().Contains("dev"))
}

func TestRemoveQuotaDropsFromQuotaRoleSorterOnly(t *testing.T) {
	s := New(nil)
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})
	s.SetQuota("dev", resources.NewQuantities(map[string]float64{"cpus": 4}))
	s.TrackFrameworkUnderRole("dev", "fw1")

	s.RemoveQuota("dev")
	assert.False(t, s.QuotaRoleSorter().Contains("dev"))
	assert.True(t, s.RoleSorter().Contains("dev"))
	_, ok := s.Quota("dev")
	assert.False(t, ok)
}

func TestQuotaRoleSorterTracksNonRevocableOnly(t *testing.T) {
	s := New(nil)
	total := resources.Resources{
		resources.NewScalar("cpus", 8),
		resources.NewScalar("cpus", 2).WithRevocable(),
	}
	s.SetQuota("dev", resources.NewQuantities(map[string]float64{"cpus": 4}))
	s.AddAgent("agent1", total)

	assert.Equal(t, 8.0, s.QuotaRoleSorter().TotalScalarQuantities().Get("cpus"))
	assert.Equal(t, 10.0, s.RoleSorter().TotalScalarQuantities().Get("cpus"))
}

func TestReservationScalarQuantitiesRollsUpToAncestors(t *testing.T) {
	s := New(nil)
	total := resources.Resources{
		resources.NewScalar("cpus", 4).ReservedTo("a", "a/b"),
	}
	s.AddAgent("agent1", total)

	assert.Equal(t, 4.0, s.ReservationScalarQuantities("a/b").Get("cpus"))
	assert.Equal(t, 4.0, s.ReservationScalarQuantities("a").Get("cpus"))
}

func TestReservationScalarQuantitiesRemovedWithAgent(t *testing.T) {
	s := New(nil)
	total := resources.Resources{
		resources.NewScalar("cpus", 4).ReservedTo("a"),
	}
	s.AddAgent("agent1", total)
	s.RemoveAgent("agent1")

	assert.True(t, s.ReservationScalarQuantities("a").IsZero())
}

func TestUpdateAgentTotalResyncsSorters(t *testing.T) {
	s := New(nil)
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 4)})
	s.TrackFrameworkUnderRole("dev", "fw1")

	s.UpdateAgentTotal("agent1", resources.Resources{resources.NewScalar("cpus", 12)})

	assert.Equal(t, 12.0, s.RoleSorter().TotalScalarQuantities().Get("cpus"))
	assert.Equal(t, 12.0, s.FrameworkSorter("dev").TotalScalarQuantities().Get("cpus"))
}

func TestConsumedQuotaCountsReservationsAndAllocation(t *testing.T) {
	s := New(nil)
	total := resources.Resources{
		resources.NewScalar("cpus", 4).ReservedTo("dev"),
		resources.NewScalar("cpus", 6),
	}
	s.AddAgent("agent1", total)
	s.SetQuota("dev", resources.NewQuantities(map[string]float64{"cpus": 8}))
	s.TrackFrameworkUnderRole("dev", "fw1")

	fs := s.FrameworkSorter("dev")
	unreservedAlloc := resources.Resources{resources.NewScalar("cpus", 2).WithAllocationRole("dev")}
	fs.Allocated("fw1", "agent1", unreservedAlloc)

	consumed := s.ConsumedQuota("dev")
	assert.Equal(t, 6.0, consumed.Get("cpus"))
}
