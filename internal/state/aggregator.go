package state

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OCAP2/relay/pkg/core"
)

// MovementThreshold is the displacement of the first platform, in world
// units, above which a new snapshot counts as meaningfully changed.
const MovementThreshold = 0.1

// Aggregator holds the current snapshot. It has exactly one writer, the
// ingestion loop, and any number of readers. Each update publishes a new
// immutable snapshot with a single pointer store.
type Aggregator struct {
	current atomic.Pointer[core.Snapshot]
	now     func() time.Time

	mu       sync.Mutex
	watchers []chan struct{}
}

// NewAggregator creates an Aggregator holding the empty snapshot.
func NewAggregator() *Aggregator {
	a := &Aggregator{now: time.Now}
	empty := core.EmptySnapshot()
	a.current.Store(&empty)
	return a
}

// Snapshot returns a deep copy of the current snapshot.
func (a *Aggregator) Snapshot() core.Snapshot {
	return a.current.Load().Clone()
}

// Seq returns the sequence number of the current snapshot without
// copying it.
func (a *Aggregator) Seq() uint64 {
	return a.current.Load().Seq
}

// Update replaces the snapshot with the given platforms and targets and
// wakes every watcher. The inputs are copied. The returned flag is the
// HasMeaningfullyChanged diagnostic; it is informational only.
func (a *Aggregator) Update(platforms []core.PlatformState, targets []core.TargetState, simTime float64) (core.Snapshot, bool) {
	prev := a.current.Load()

	ts := a.now().UTC()
	next := &core.Snapshot{
		Seq:         prev.Seq + 1,
		Timestamp:   &ts,
		SimTime:     simTime,
		Platforms:   core.ClonePlatforms(platforms),
		Targets:     core.CloneTargets(targets),
		MessageKind: core.KindStatusReport.String(),
	}
	if next.Platforms == nil {
		next.Platforms = []core.PlatformState{}
	}
	if next.Targets == nil {
		next.Targets = []core.TargetState{}
	}

	a.current.Store(next)
	a.notify()

	return next.Clone(), HasMeaningfullyChanged(*prev, *next)
}

// Watch returns a channel that receives a value after each update.
// Signals coalesce: a slow watcher sees one pending signal however many
// updates happened, and should read Snapshot for the latest state.
func (a *Aggregator) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	a.mu.Lock()
	a.watchers = append(a.watchers, ch)
	a.mu.Unlock()
	return ch
}

// Unwatch stops signalling ch.
func (a *Aggregator) Unwatch(ch <-chan struct{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, w := range a.watchers {
		if w == ch {
			a.watchers = append(a.watchers[:i], a.watchers[i+1:]...)
			return
		}
	}
}

func (a *Aggregator) notify() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, w := range a.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// HasMeaningfullyChanged compares platform counts and the position of the
// first platform. It exists for operator diagnostics and must not decide
// whether a snapshot is stored or pushed.
func HasMeaningfullyChanged(prev, next core.Snapshot) bool {
	if len(prev.Platforms) != len(next.Platforms) {
		return true
	}
	if len(next.Platforms) == 0 {
		return false
	}
	a, b := prev.Platforms[0].Pos, next.Platforms[0].Pos
	return math.Hypot(b.X-a.X, b.Y-a.Y) > MovementThreshold
}
