package filters

import (
	"sync/atomic"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"

	"github.com/St0rmingBr4in/mesos/resources"
)

func TestClampTimeout(t *testing.T) {
	interval := time.Second
	assert.Equal(t, DefaultRefuseTimeout, ClampTimeout(-1, interval))
	assert.Equal(t, MaxRefuseTimeout, ClampTimeout(400*24*time.Hour, interval))
	assert.Equal(t, 10*time.Second, ClampTimeout(10*time.Second, interval))
	assert.Equal(t, interval, ClampTimeout(0, interval))
}

func TestRefusedOfferFilterMatchesSuperset(t *testing.T) {
	c := fakeclock.NewFakeClock(time.Now())
	superset := resources.Resources{resources.NewScalar("cpus", 4), resources.NewScalar("mem", 512)}
	f := NewRefusedOfferFilter(c, superset, time.Minute, func() {})
	defer f.Stop()

	assert.True(t, f.Matches(resources.Resources{resources.NewScalar("cpus", 2)}))
	assert.False(t, f.Matches(resources.Resources{resources.NewScalar("cpus", 5)}))
}

func TestRefusedOfferFilterExpires(t *testing.T) {
	c := fakeclock.NewFakeClock(time.Now())
	var expired int32
	f := NewRefusedOfferFilter(c, resources.Resources{resources.NewScalar("cpus", 1)}, time.Second, func() {
		atomic.StoreInt32(&expired, 1)
	})
	defer f.Stop()

	c.WaitForWatcherAndIncrement(time.Second)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&expired) == 1 }, time.Second, time.Millisecond)
}

func TestStopPreventsExpiry(t *testing.T) {
	c := fakeclock.NewFakeClock(time.Now())
	var expired int32
	f := NewRefusedInverseOfferFilter(c, time.Second, func() {
		atomic.StoreInt32(&expired, 1)
	})
	f.Stop()
	c.Increment(2 * time.Second)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&expired))
}
