package sorter

import (
	"testing"

	"github.com/St0rmingBr4in/mesos/resources"
	"github.com/stretchr/testify/assert"
)

func TestSortTiebreakByInsertionOrder(t *testing.T) {
	s := New[string](nil)
	s.Add("frameworkB")
	s.Add("frameworkA")

	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})

	// both start at zero allocation: frameworkB sorts first since it was
	// added first.
	assert.Equal(t, []string{"frameworkB", "frameworkA"}, s.Sort())
}

func TestSortByDominantShare(t *testing.T) {
	s := New[string](nil)
	s.Add("f1")
	s.Add("f2")
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10), resources.NewScalar("mem", 100)})

	s.Allocated("f1", "agent1", resources.Resources{resources.NewScalar("cpus", 5)})
	s.Allocated("f2", "agent1", resources.Resources{resources.NewScalar("mem", 10)})

	// f1 dominant share = 5/10 = 0.5, f2 = 10/100 = 0.1
	assert.Equal(t, []string{"f2", "f1"}, s.Sort())
}

func TestDeactivateExcludesFromSortButKeepsAllocation(t *testing.T) {
	s := New[string](nil)
	s.Add("f1")
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})
	s.Allocated("f1", "agent1", resources.Resources{resources.NewScalar("cpus", 5)})

	s.Deactivate("f1")
	assert.Empty(t, s.Sort())
	assert.Equal(t, 5.0, s.AllocationScalarQuantities("f1")["cpus"])

	s.Activate("f1")
	assert.Equal(t, []string{"f1"}, s.Sort())
}

func TestWeightedDominantShare(t *testing.T) {
	s := New[string](nil)
	s.Add("f1")
	s.Add("f2")
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})

	s.Allocated("f1", "agent1", resources.Resources{resources.NewScalar("cpus", 4)})
	s.Allocated("f2", "agent1", resources.Resources{resources.NewScalar("cpus", 4)})
	s.UpdateWeight("f2", 2) // f2's share is halved by its weight

	assert.Equal(t, []string{"f2", "f1"}, s.Sort())
}

func TestFairnessExcludeResourceNames(t *testing.T) {
	s := New[string]([]string{"mem"})
	s.Add("f1")
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10), resources.NewScalar("mem", 100)})
	s.Allocated("f1", "agent1", resources.Resources{resources.NewScalar("mem", 90)})

	// mem is excluded from fairness, so f1's dominant share should be 0,
	// not 0.9.
	assert.Equal(t, []string{"f1"}, s.Sort())

	s.Add("f2")
	s.Allocated("f2", "agent1", resources.Resources{resources.NewScalar("cpus", 1)})
	assert.Equal(t, []string{"f1", "f2"}, s.Sort())
}

func TestUpdateReplacesAllocation(t *testing.T) {
	s := New[string](nil)
	s.Add("f1")
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})
	old := resources.Resources{resources.NewScalar("cpus", 4)}
	s.Allocated("f1", "agent1", old)

	updated := resources.Resources{resources.NewScalar("cpus", 2)}
	s.Update("f1", "agent1", old, updated)

	assert.Equal(t, 2.0, s.AllocationScalarQuantities("f1")["cpus"])
}

func TestRemoveAgentShrinksTotal(t *testing.T) {
	s := New[string](nil)
	s.AddAgent("agent1", resources.Resources{resources.NewScalar("cpus", 10)})
	s.AddAgent("agent2", resources.Resources{resources.NewScalar("cpus", 5)})
	assert.Equal(t, 15.0, s.TotalScalarQuantities()["cpus"])

	s.RemoveAgent(resources.Resources{resources.NewScalar("cpus", 5)})
	assert.Equal(t, 10.0, s.TotalScalarQuantities()["cpus"])
}
