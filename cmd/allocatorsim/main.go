// Command allocatorsim drives an allocator.Engine against a handful of
// simulated agents and frameworks, logging each offer/inverse offer as it
// arrives.
//
// cd cmd/allocatorsim && go run main.go
// press CTRL-C to stop
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	log "github.com/golang/glog"
	"github.com/gogo/protobuf/proto"

	"github.com/St0rmingBr4in/mesos/agent"
	"github.com/St0rmingBr4in/mesos/allocator"
	"github.com/St0rmingBr4in/mesos/framework"
	"github.com/St0rmingBr4in/mesos/ids"
	"github.com/St0rmingBr4in/mesos/resources"
)

func main() {
	engine := allocator.New(onOffers, onInverseOffers,
		allocator.WithAllocationInterval(time.Second),
		allocator.WithFilterGpuResources(true),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx)

	go func() {
		<-time.After(time.Second)
		setupCluster(engine)

		<-time.After(3 * time.Second)
		simulateMaintenance(engine)

		<-time.After(20 * time.Second)
		cancel()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	select {
	case <-sig:
		cancel()
	case <-ctx.Done():
	}
	log.Infoln("allocatorsim: stopped")
}

func onOffers(fw ids.FrameworkID, offers map[ids.Role]map[ids.AgentID]resources.Resources) {
	for role, byAgent := range offers {
		for agentID, r := range byAgent {
			log.Infof("allocatorsim: offer fw=%s role=%s agent=%s resources=%v", fw, role, agentID, r)
		}
	}
}

func onInverseOffers(fw ids.FrameworkID, offers map[ids.AgentID]allocator.UnavailableResources) {
	for agentID := range offers {
		log.Infof("allocatorsim: inverse offer fw=%s agent=%s", fw, agentID)
	}
}

// setupCluster registers a quota-bearing "dev" role and a best-effort "*"
// role alongside three agents, mirroring the scale of the teacher's own
// example/simple_task.go demo.
func setupCluster(e *allocator.Engine) {
	e.SetQuota("dev", resources.NewQuantities(map[string]float64{"cpus": 4, "mem": 2048}))
	e.UpdateWeights(map[ids.Role]float64{"dev": 2})

	e.AddFramework("devfw", []ids.Role{"dev"}, []framework.Capability{framework.CapabilityMultiRole})
	e.AddFramework("besteffort", []ids.Role{"*"}, nil)

	for _, name := range []string{"agent1", "agent2", "agent3"} {
		total := resources.Resources{
			resources.NewScalar("cpus", 4),
			resources.NewScalar("mem", 8192),
		}
		e.AddSlave(ids.AgentID(name), agent.Info{Hostname: name}, total, []agent.Capability{agent.CapabilityMultiRole})
	}
}

// simulateMaintenance schedules agent1 as unavailable and, once devfw
// responds, installs a one-second refused-inverse-offer filter — the
// shape mirrors the teacher's own mesos.Filters{RefuseSeconds:
// proto.Float64(...)}.
func simulateMaintenance(e *allocator.Engine) {
	e.UpdateUnavailability("agent1", &agent.Unavailability{
		Intervals: []agent.UnavailableInterval{{Start: time.Now().UnixNano()}},
	})
	e.UpdateInverseOffer("agent1", "devfw", "accepted", &allocator.InverseOfferFilters{
		RefuseSeconds: proto.Float64(1),
	})
}
