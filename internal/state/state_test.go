package state

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsAllInvalid(t *testing.T) {
	c := New()

	assert.False(t, c.YawError().Valid())
	assert.False(t, c.Range().Valid())
	assert.False(t, c.Encoder().Valid())
	assert.False(t, c.ExitRequested())

	want := Snapshot{}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotCarriesValues(t *testing.T) {
	c := New()
	c.SetTarget(Target{Bounds: Valid(Bounds{Left: 300, Right: 400}), YawError: Valid[int32](30)})
	c.SetRange(Valid(12.5))
	c.SetEncoder(Valid[int32](-40))
	c.SetDuty(150)
	c.SetFireRequested(true, 42)

	yaw, bounds, rng, enc := int32(30), Bounds{Left: 300, Right: 400}, 12.5, int32(-40)
	want := Snapshot{
		YawError:      &yaw,
		Bounds:        &bounds,
		Range:         &rng,
		Encoder:       &enc,
		Duty:          150,
		FireRequested: true,
		FirePower:     42,
	}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestTakeFlagsAreOneShot(t *testing.T) {
	c := New()

	c.RequestYawReset()
	assert.True(t, c.TakeYawReset())
	assert.False(t, c.TakeYawReset())

	c.SignalFireComplete()
	assert.True(t, c.TakeFireComplete())
	assert.False(t, c.TakeFireComplete())
}

func TestYawHomingsCount(t *testing.T) {
	c := New()
	before := c.YawHomings()
	c.MarkYawHomed()
	c.MarkYawHomed()
	assert.Equal(t, before+2, c.YawHomings())
}

func TestBoundsYawError(t *testing.T) {
	b := Bounds{Left: 300, Right: 420}
	assert.Equal(t, int32(360), b.Center())
	assert.Equal(t, int32(40), b.YawError(640))
	assert.Equal(t, int32(-320), Bounds{}.YawError(640))
}

// Writer stores pairs with Left == -Right; a torn read would break that.
func TestTargetIsNeverTorn(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int32(0); ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			c.SetTarget(Target{Bounds: Valid(Bounds{Left: -i, Right: i}), YawError: Valid(i)})
		}
	}()

	for i := 0; i < 10000; i++ {
		tgt := c.Target()
		b, ok := tgt.Bounds.Get()
		if !ok {
			continue
		}
		require.Equal(t, -b.Left, b.Right)
		yaw, _ := tgt.YawError.Get()
		require.Equal(t, b.Right, yaw)
	}
	close(stop)
	wg.Wait()
}

func TestReadingString(t *testing.T) {
	assert.Equal(t, "invalid", Invalid[float64]().String())
	assert.Equal(t, "3.5", Valid(3.5).String())
}
