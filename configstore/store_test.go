package configstore

import (
	"log"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

func zkAvailable() bool {
	out, err := exec.Command("bash", "-c", "echo ruok | nc -w 1 localhost 2181").Output()
	return err == nil && string(out) == "imok"
}

func TestStoreRoundTripsQuotasWeightsAndWhitelist(t *testing.T) {
	if !zkAvailable() {
		log.Println("zookeeper is not running on localhost:2181, skipping")
		return
	}

	s := New(strings.Split("localhost:2181", ","), "/test-allocator/configstore")
	require.NoError(t, s.Open())
	defer s.Close()

	require.NoError(t, s.SaveQuota("dev", resources.NewQuantities(map[string]float64{"cpus": 4})))
	require.NoError(t, s.SaveQuota("prod/team-a", resources.NewQuantities(map[string]float64{"mem": 1024})))
	require.NoError(t, s.SaveWeight("dev", 2.0))
	require.NoError(t, s.SaveWhitelist([]ids.AgentID{"agent1", "agent2"}))

	quotas, err := s.LoadQuotas()
	require.NoError(t, err)
	assert.Equal(t, 4.0, quotas["dev"].Get("cpus"))
	assert.Equal(t, 1024.0, quotas["prod/team-a"].Get("mem"))

	weights, err := s.LoadWeights()
	require.NoError(t, err)
	assert.Equal(t, 2.0, weights["dev"])

	whitelist, err := s.LoadWhitelist()
	require.NoError(t, err)
	assert.ElementsMatch(t, []ids.AgentID{"agent1", "agent2"}, whitelist)

	require.NoError(t, s.RemoveQuota("dev"))
	quotas, err = s.LoadQuotas()
	require.NoError(t, err)
	_, ok := quotas["dev"]
	assert.False(t, ok)
}
