// Package progress tracks the percent-complete and status message of a scan.
package progress

import (
	"math/rand"
	"sync"
	"time"
)

// Phase is a state of the scan state machine.
type Phase string

const (
	Idle          Phase = "idle"
	Preprocessing Phase = "preprocessing"
	Tiling        Phase = "tiling"
	Recognizing   Phase = "recognizing"
	Extracting    Phase = "extracting"
	Done          Phase = "done"
	Failed        Phase = "failed"
)

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool { return p == Done || p == Failed }

// Fixed progress points.
const (
	Preprocessed   = 10
	Tiled          = 15
	EngineStarted  = 20
	EngineReady    = 30
	RegionsDone    = 80
	ExtractStarted = 90
	Complete       = 100
)

// RegionPercent returns the progress for region i of n. With mid set it is
// the midpoint of that region's share, otherwise its end.
func RegionPercent(i, n int, mid bool) int {
	if n <= 0 {
		return RegionsDone
	}
	span := float64(RegionsDone - EngineReady)
	share := span / float64(n)
	p := float64(EngineReady) + share*float64(i)
	if mid {
		p += share / 2
	} else {
		p += share
	}
	return int(p)
}

// Update is sent to observers on every change.
type Update struct {
	RunID   string `json:"run_id"`
	Phase   Phase  `json:"phase"`
	Percent int    `json:"percent"`
	Region  string `json:"region,omitempty"`
	Index   int    `json:"index,omitempty"`
	Regions int    `json:"regions,omitempty"`
	Message string `json:"message"`
}

// Options configures a Tracker.
type Options struct {
	// Messages rotate while a run is active unless Reset supplies its own.
	// Fewer than two messages disables rotation.
	Messages []string

	// Interval between rotations. Defaults to 2.5s.
	Interval time.Duration

	// Rand picks the next message. Defaults to a time-seeded source.
	Rand *rand.Rand

	// Observer receives updates synchronously and in order, with the
	// tracker locked; it must not call back into the Tracker.
	Observer func(Update)
}

// DefaultInterval is the status rotation period.
const DefaultInterval = 2500 * time.Millisecond

// Tracker holds the progress of the current run. Percent never decreases
// within a run and only reaches 100 on a terminal transition.
type Tracker struct {
	mu     sync.Mutex
	opts   Options
	rng    *rand.Rand
	state  Update
	msgs   []string
	stop   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// New creates an idle tracker.
func New(opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Tracker{
		opts:  opts,
		rng:   rng,
		state: Update{Phase: Idle},
	}
}

// Reset starts a new run at 0% and begins rotating status messages. A nil
// messages slice uses Options.Messages.
func (t *Tracker) Reset(runID string, messages []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.stopRotationLocked()
	if messages == nil {
		messages = t.opts.Messages
	}
	t.msgs = messages
	t.state = Update{RunID: runID, Phase: Preprocessing, Message: t.pickLocked()}
	if len(t.msgs) > 1 {
		t.stop = make(chan struct{})
		t.wg.Add(1)
		go t.rotate(runID, t.stop)
	}
	t.notifyLocked()
}

// Advance moves to phase at percent. Lower percents than the current one are
// raised to it; terminal phases must use Finish.
func (t *Tracker) Advance(phase Phase, percent int) {
	t.set(func(s *Update) {
		s.Phase = phase
		s.Region = ""
		s.Index = 0
		s.Regions = 0
		s.Percent = clampRunning(s.Percent, percent)
	})
}

// Region reports progress on region index of regions.
func (t *Tracker) Region(name string, index, regions, percent int) {
	t.set(func(s *Update) {
		s.Phase = Recognizing
		s.Region = name
		s.Index = index
		s.Regions = regions
		s.Percent = clampRunning(s.Percent, percent)
	})
}

// Finish ends the run in phase (Done or Failed) at 100% and stops rotation.
func (t *Tracker) Finish(phase Phase) {
	if !phase.Terminal() {
		phase = Done
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.state.Phase.Terminal() || t.state.Phase == Idle {
		return
	}
	t.stopRotationLocked()
	t.state.Phase = phase
	t.state.Percent = Complete
	t.state.Region = ""
	t.notifyLocked()
}

// Abort ends a run that failed before producing output: the phase becomes
// Failed and progress returns to 0 so the caller can retry.
func (t *Tracker) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.state.Phase == Idle {
		return
	}
	t.stopRotationLocked()
	t.state.Phase = Failed
	t.state.Percent = 0
	t.state.Region = ""
	t.notifyLocked()
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Percent returns the current percentage.
func (t *Tracker) Percent() int { return t.Snapshot().Percent }

// Close stops rotation and waits for the ticker goroutine to exit. The
// tracker ignores further calls.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.stopRotationLocked()
	t.closed = true
	t.mu.Unlock()
	t.wg.Wait()
}

// Rotating reports whether the status message timer is running.
func (t *Tracker) Rotating() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

func (t *Tracker) set(f func(*Update)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.state.Phase.Terminal() || t.state.Phase == Idle {
		return
	}
	f(&t.state)
	t.notifyLocked()
}

func (t *Tracker) notifyLocked() {
	if t.opts.Observer != nil {
		t.opts.Observer(t.state)
	}
}

// clampRunning keeps percent monotonic and below 100 while running.
func clampRunning(current, next int) int {
	if next >= Complete {
		next = Complete - 1
	}
	if next < current {
		return current
	}
	return next
}

func (t *Tracker) pickLocked() string {
	msgs := t.msgs
	if len(msgs) == 0 {
		return ""
	}
	return msgs[t.rng.Intn(len(msgs))]
}

// stopRotationLocked signals the ticker goroutine. The goroutine checks the
// signal under t.mu, so no rotation lands after this returns.
func (t *Tracker) stopRotationLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	t.stop = nil
}

func (t *Tracker) rotate(runID string, stop <-chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		select {
		case <-stop:
			t.mu.Unlock()
			return
		default:
		}
		if t.state.RunID != runID || t.state.Phase.Terminal() {
			t.mu.Unlock()
			return
		}
		prev := t.state.Message
		next := t.pickLocked()
		for i := 0; next == prev && i < 3; i++ {
			next = t.pickLocked()
		}
		t.state.Message = next
		t.notifyLocked()
		t.mu.Unlock()
	}
}
