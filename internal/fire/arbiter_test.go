package fire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turret-ctrl/internal/ballistics"
	"turret-ctrl/internal/state"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func testArbiter() *Arbiter {
	return NewArbiter(Config{
		RequiredSamples: 5,
		Cooldown:        3 * time.Second,
		AimTolerancePx:  32,
		Power:           LinearPower(0, 100),
	})
}

func onTarget() state.Reading[int32] { return state.Valid[int32](4) }

func TestInvalidSampleClearsRun(t *testing.T) {
	a := testArbiter()
	now := t0
	for i := 0; i < 4; i++ {
		now = now.Add(100 * time.Millisecond)
		require.False(t, a.Observe(state.Valid(10.0), onTarget(), now).Requested)
	}
	require.Equal(t, 4, a.Collected())

	now = now.Add(100 * time.Millisecond)
	d := a.Observe(state.Invalid[float64](), onTarget(), now)
	assert.False(t, d.Requested)
	assert.Zero(t, a.Collected())

	// the run starts over
	for i := 0; i < 4; i++ {
		now = now.Add(100 * time.Millisecond)
		require.False(t, a.Observe(state.Valid(10.0), onTarget(), now).Requested)
	}
}

func TestFullRunRequestsOnLastSample(t *testing.T) {
	a := testArbiter()
	now := t0
	ranges := []float64{10, 12, 14, 16, 18}
	var d Decision
	for i, r := range ranges {
		now = now.Add(100 * time.Millisecond)
		d = a.Observe(state.Valid(r), onTarget(), now)
		if i < len(ranges)-1 {
			require.False(t, d.Requested, "sample %d", i)
		}
	}
	assert.True(t, d.Requested)
	assert.InDelta(t, 14.0, d.MeanRange, 1e-9)
	assert.Equal(t, 14, d.Power)
	assert.True(t, a.InProgress())
	assert.Zero(t, a.Collected())
}

func TestNoRequestWhileInProgress(t *testing.T) {
	a := testArbiter()
	now := t0
	for i := 0; i < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		a.Observe(state.Valid(10.0), onTarget(), now)
	}
	require.True(t, a.InProgress())

	for i := 0; i < 50; i++ {
		now = now.Add(time.Second)
		assert.False(t, a.Observe(state.Valid(10.0), onTarget(), now).Requested)
	}
}

func TestCooldownAfterCompletion(t *testing.T) {
	a := testArbiter()
	now := t0
	for i := 0; i < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		a.Observe(state.Valid(10.0), onTarget(), now)
	}
	a.Complete(now)
	require.False(t, a.InProgress())

	// still cooling down: samples are rejected
	for i := 0; i < 10; i++ {
		now = now.Add(100 * time.Millisecond)
		assert.False(t, a.Observe(state.Valid(10.0), onTarget(), now).Requested)
		assert.Zero(t, a.Collected())
	}

	now = now.Add(2 * time.Second)
	var d Decision
	for i := 0; i < 5; i++ {
		now = now.Add(100 * time.Millisecond)
		d = a.Observe(state.Valid(10.0), onTarget(), now)
	}
	assert.True(t, d.Requested)
}

func TestAimToleranceGate(t *testing.T) {
	a := testArbiter()
	now := t0
	for i := 0; i < 3; i++ {
		now = now.Add(100 * time.Millisecond)
		a.Observe(state.Valid(10.0), onTarget(), now)
	}
	now = now.Add(100 * time.Millisecond)
	a.Observe(state.Valid(10.0), state.Valid[int32](-32), now)
	assert.Zero(t, a.Collected())

	a.Observe(state.Valid(10.0), state.Invalid[int32](), now.Add(time.Millisecond))
	assert.Zero(t, a.Collected())
}

func TestCompletionTimeout(t *testing.T) {
	a := NewArbiter(Config{
		RequiredSamples:   1,
		Cooldown:          time.Second,
		AimTolerancePx:    10,
		CompletionTimeout: 5 * time.Second,
	})
	require.True(t, a.Observe(state.Valid(3.0), onTarget(), t0).Requested)

	assert.False(t, a.Observe(state.Valid(3.0), onTarget(), t0.Add(4*time.Second)).Requested)
	assert.True(t, a.InProgress())

	// timeout at t0+5s, cooldown until t0+6s
	assert.False(t, a.Observe(state.Valid(3.0), onTarget(), t0.Add(5*time.Second)).Requested)
	assert.False(t, a.InProgress())
	assert.True(t, a.Observe(state.Valid(3.0), onTarget(), t0.Add(6*time.Second+time.Millisecond)).Requested)
}

func TestPowerFunctions(t *testing.T) {
	lin := LinearPower(20, 50)
	assert.Equal(t, 20, lin(0))
	assert.Equal(t, 60, lin(25))
	assert.Equal(t, 100, lin(80))

	sim := ballistics.DefaultSimulator()
	bp := BallisticPower(sim, 0.1)
	near, far := bp(sim.Distance(4, 0.1)), bp(sim.Distance(10, 0.1))
	assert.Less(t, near, far)
	assert.Equal(t, 100, bp(1e6))
}
