package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/relay/pkg/core"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNewAggregator_Empty(t *testing.T) {
	a := NewAggregator()

	s := a.Snapshot()
	assert.Nil(t, s.Timestamp)
	assert.Empty(t, s.Platforms)
	assert.Empty(t, s.Targets)
	assert.Equal(t, "none", s.MessageKind)
	assert.Equal(t, uint64(0), a.Seq())
}

func TestUpdate_ReplacesSnapshot(t *testing.T) {
	a := NewAggregator()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	a.now = fixedClock(now)

	platforms := []core.PlatformState{{ID: 1, Pos: core.Vec2{X: 1000, Y: 2000}}}
	targets := []core.TargetState{{ID: 2, Pos: core.Vec2{X: 3000, Y: 4000}, Value: 50}}

	got, _ := a.Update(platforms, targets, 12.5)

	s := a.Snapshot()
	assert.Equal(t, got, s)
	require.NotNil(t, s.Timestamp)
	assert.Equal(t, now, *s.Timestamp)
	assert.Equal(t, 12.5, s.SimTime)
	assert.Equal(t, platforms, s.Platforms)
	assert.Equal(t, targets, s.Targets)
	assert.Equal(t, "status_report", s.MessageKind)
	assert.Equal(t, uint64(1), s.Seq)
}

func TestUpdate_CopiesInput(t *testing.T) {
	a := NewAggregator()
	platforms := []core.PlatformState{{ID: 1, TargetTypes: []int32{1}}}

	a.Update(platforms, nil, 0)
	platforms[0].ID = 99
	platforms[0].TargetTypes[0] = 99

	s := a.Snapshot()
	assert.Equal(t, uint32(1), s.Platforms[0].ID)
	assert.Equal(t, int32(1), s.Platforms[0].TargetTypes[0])
	assert.NotNil(t, s.Targets)
}

func TestSnapshot_IsNotAnAlias(t *testing.T) {
	a := NewAggregator()
	a.Update([]core.PlatformState{{ID: 1}}, nil, 0)

	s := a.Snapshot()
	s.Platforms[0].ID = 42

	assert.Equal(t, uint32(1), a.Snapshot().Platforms[0].ID)
}

func TestUpdate_AlwaysStoresEvenWithoutChange(t *testing.T) {
	a := NewAggregator()
	platforms := []core.PlatformState{{ID: 1, Pos: core.Vec2{X: 5, Y: 5}}}

	_, changed := a.Update(platforms, nil, 1)
	assert.True(t, changed)

	_, changed = a.Update(platforms, nil, 2)
	assert.False(t, changed)
	assert.Equal(t, uint64(2), a.Seq())
	assert.Equal(t, 2.0, a.Snapshot().SimTime)
}

func TestWatch_CoalescesSignals(t *testing.T) {
	a := NewAggregator()
	ch := a.Watch()

	a.Update(nil, nil, 1)
	a.Update(nil, nil, 2)
	a.Update(nil, nil, 3)

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should coalesce")
	default:
	}
	assert.Equal(t, 3.0, a.Snapshot().SimTime)
}

func TestUnwatch(t *testing.T) {
	a := NewAggregator()
	ch := a.Watch()
	a.Unwatch(ch)

	a.Update(nil, nil, 1)

	select {
	case <-ch:
		t.Fatal("unwatched channel received a signal")
	default:
	}
}

func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	a := NewAggregator()
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				s := a.Snapshot()
				// Every update writes matching platform and target counts.
				if len(s.Platforms) != len(s.Targets) {
					t.Errorf("torn snapshot: %d platforms, %d targets", len(s.Platforms), len(s.Targets))
					return
				}
			}
		}()
	}

	for n := 0; n < 200; n++ {
		platforms := make([]core.PlatformState, n%7)
		targets := make([]core.TargetState, n%7)
		a.Update(platforms, targets, float64(n))
	}
	close(done)
	wg.Wait()
}

func TestHasMeaningfullyChanged(t *testing.T) {
	at := func(x, y float64) []core.PlatformState {
		return []core.PlatformState{{Pos: core.Vec2{X: x, Y: y}}}
	}

	tests := []struct {
		name string
		prev []core.PlatformState
		next []core.PlatformState
		want bool
	}{
		{"both empty", nil, nil, false},
		{"count grows", nil, at(0, 0), true},
		{"count shrinks", at(0, 0), nil, true},
		{"stationary", at(10, 10), at(10, 10), false},
		{"below threshold", at(10, 10), at(10.05, 10.05), false},
		{"above threshold", at(10, 10), at(10.2, 10), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HasMeaningfullyChanged(core.Snapshot{Platforms: tt.prev}, core.Snapshot{Platforms: tt.next})
			assert.Equal(t, tt.want, got)
		})
	}
}
