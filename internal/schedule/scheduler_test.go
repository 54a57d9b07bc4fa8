package schedule_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vigilhq/vigil/internal/schedule"
	"github.com/vigilhq/vigil/pkg/api"
	"github.com/vigilhq/vigil/pkg/log"
)

type (
	fakeSource struct {
		mu    sync.Mutex
		flows []*api.Flow
		err   error
	}

	fakeLauncher struct {
		mu       sync.Mutex
		launched []api.FlowID
		ctxs     []context.Context
		block    chan struct{}
	}
)

func (f *fakeSource) EnabledFlows(context.Context) ([]*api.Flow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flows, f.err
}

func (f *fakeLauncher) Execute(ctx context.Context, flow *api.Flow) {
	f.mu.Lock()
	f.launched = append(f.launched, flow.ID)
	f.ctxs = append(f.ctxs, ctx)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeLauncher) launchCtx(i int) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxs[i]
}

func (f *fakeLauncher) launchCount(id api.FlowID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, got := range f.launched {
		if got == id {
			count++
		}
	}
	return count
}

func flowEvery(id api.FlowID, intervalSec int) *api.Flow {
	return &api.Flow{
		ID:          id,
		Name:        string(id),
		Kind:        api.FlowKindAPI,
		IntervalSec: intervalSec,
		Enabled:     true,
	}
}

func newScheduler(
	source *fakeSource, launcher *fakeLauncher, now schedule.Clock,
) *schedule.Scheduler {
	return schedule.New(source, launcher, 10*time.Second, now,
		log.New("test", "test", "0.0.0"))
}

func waitForLaunches(t *testing.T, l *fakeLauncher, id api.FlowID, n int) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if l.launchCount(id) >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("flow %s launched %d times, wanted %d",
				id, l.launchCount(id), n)
		case <-time.After(time.Millisecond):
		}
	}
}

// waitForIdle blocks until the flow's in-flight mark clears; launch
// goroutines clear it asynchronously after the launcher returns
func waitForIdle(t *testing.T, s *schedule.Scheduler, id api.FlowID) {
	t.Helper()
	deadline := time.After(time.Second)
	for s.InFlight(id) {
		select {
		case <-deadline:
			t.Fatalf("flow %s still in flight", id)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestFirstSightIsDueImmediately(t *testing.T) {
	source := &fakeSource{flows: []*api.Flow{flowEvery("checkout", 60)}}
	launcher := &fakeLauncher{}
	sched := newScheduler(source, launcher, time.Now)

	sched.Tick(context.Background())

	waitForLaunches(t, launcher, "checkout", 1)
}

func TestIntervalGatesSubsequentRuns(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	source := &fakeSource{flows: []*api.Flow{flowEvery("checkout", 60)}}
	launcher := &fakeLauncher{}
	sched := newScheduler(source, launcher, clock)

	sched.Tick(context.Background())
	waitForLaunches(t, launcher, "checkout", 1)

	// Not yet due
	now = now.Add(30 * time.Second)
	sched.Tick(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, launcher.launchCount("checkout"))

	// Due again
	now = now.Add(31 * time.Second)
	waitForIdle(t, sched, "checkout")
	sched.Tick(context.Background())
	waitForLaunches(t, launcher, "checkout", 2)
}

func TestInFlightGuard(t *testing.T) {
	source := &fakeSource{flows: []*api.Flow{flowEvery("checkout", 0)}}
	source.flows[0].IntervalSec = 1
	launcher := &fakeLauncher{block: make(chan struct{})}
	sched := newScheduler(source, launcher, time.Now)

	sched.Tick(context.Background())
	waitForLaunches(t, launcher, "checkout", 1)
	assert.True(t, sched.InFlight("checkout"))

	// Still running; later ticks must not overlap it
	sched.Tick(context.Background())
	sched.Tick(context.Background())
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, launcher.launchCount("checkout"))

	close(launcher.block)
}

func TestDueTimeRecomputedBeforeLaunch(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	source := &fakeSource{flows: []*api.Flow{flowEvery("checkout", 60)}}
	launcher := &fakeLauncher{block: make(chan struct{})}
	sched := newScheduler(source, launcher, clock)

	sched.Tick(context.Background())
	waitForLaunches(t, launcher, "checkout", 1)
	close(launcher.block)
	waitForIdle(t, sched, "checkout")

	// The slow first run must not delay the next cycle: one interval
	// after the launch the flow is due again
	now = now.Add(61 * time.Second)
	sched.Tick(context.Background())
	waitForLaunches(t, launcher, "checkout", 2)
}

func TestSourceFailureSkipsTick(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	launcher := &fakeLauncher{}
	sched := newScheduler(source, launcher, time.Now)

	assert.NotPanics(t, func() {
		sched.Tick(context.Background())
	})
	assert.Empty(t, launcher.launched)

	// Source recovers; next tick proceeds
	source.mu.Lock()
	source.err = nil
	source.flows = []*api.Flow{flowEvery("checkout", 60)}
	source.mu.Unlock()

	sched.Tick(context.Background())
	waitForLaunches(t, launcher, "checkout", 1)
}

func TestFlowsRunIndependently(t *testing.T) {
	source := &fakeSource{flows: []*api.Flow{
		flowEvery("checkout", 60),
		flowEvery("signup", 60),
	}}
	launcher := &fakeLauncher{}
	sched := newScheduler(source, launcher, time.Now)

	sched.Tick(context.Background())

	waitForLaunches(t, launcher, "checkout", 1)
	waitForLaunches(t, launcher, "signup", 1)
}

func TestTriggerNow(t *testing.T) {
	source := &fakeSource{}
	launcher := &fakeLauncher{block: make(chan struct{})}
	sched := newScheduler(source, launcher, time.Now)

	flow := flowEvery("checkout", 60)
	assert.True(t, sched.TriggerNow(context.Background(), flow))
	waitForLaunches(t, launcher, "checkout", 1)

	// Already in flight
	assert.False(t, sched.TriggerNow(context.Background(), flow))
	close(launcher.block)
}

func TestRunsSurviveSchedulerCancellation(t *testing.T) {
	source := &fakeSource{flows: []*api.Flow{flowEvery("checkout", 60)}}
	launcher := &fakeLauncher{}
	sched := newScheduler(source, launcher, time.Now)

	ctx, cancel := context.WithCancel(context.Background())
	sched.Tick(ctx)
	waitForLaunches(t, launcher, "checkout", 1)

	// Shutdown must not abort a run mid-step
	cancel()
	assert.NoError(t, launcher.launchCtx(0).Err())
}

func TestTriggerNowSurvivesCallerCancellation(t *testing.T) {
	source := &fakeSource{}
	launcher := &fakeLauncher{}
	sched := newScheduler(source, launcher, time.Now)

	ctx, cancel := context.WithCancel(context.Background())
	assert.True(t, sched.TriggerNow(ctx, flowEvery("checkout", 60)))
	waitForLaunches(t, launcher, "checkout", 1)

	// The triggering request is long gone by the time the run executes
	cancel()
	assert.NoError(t, launcher.launchCtx(0).Err())
}
