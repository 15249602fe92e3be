package ratelimit

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/atomic"
)

// defaultTicksPerSecond is the default refill cadence: tick = 200ms, 5 ticks/sec.
const defaultTicksPerSecond = 5

// Manager is the root of the rate-limit tree. It drives a periodic refill
// of every attached Limiter subtree, stopping itself during idle stretches
// and resuming on demand so there are no wakeups when nothing is waiting.
type Manager struct {
	sched Scheduler
	tick  time.Duration

	mu       sync.Mutex
	children []*Limiter
	timerID  uint64
	timerSet bool

	// activity ∈ {0, 1, 2}: 0 means "something happened this tick", 2
	// means "dormant" (two consecutive quiet ticks).
	activity *atomic.Int32

	histMu sync.Mutex
	hist   *hdrhistogram.Histogram
}

// NewManager creates a manager whose tick cadence divides a one-second
// window into ticksPerSecond refills (5, the design default, if 0).
func NewManager(sched Scheduler, ticksPerSecond int) *Manager {
	if ticksPerSecond <= 0 {
		ticksPerSecond = defaultTicksPerSecond
	}
	return &Manager{
		sched:    sched,
		tick:     time.Second / time.Duration(ticksPerSecond),
		activity: atomic.NewInt32(2),
		hist:     hdrhistogram.New(1, 1_000_000, 3),
	}
}

func (m *Manager) ticksPerSecond() uint64 {
	if m.tick <= 0 {
		return defaultTicksPerSecond
	}
	return uint64(time.Second / m.tick)
}

// AddLimiter attaches l as a direct child of the manager, the root of the
// tree l now belongs to.
func (m *Manager) AddLimiter(l *Limiter) {
	if p, _ := l.getParent(); p != nil {
		detach(l)
	}

	m.mu.Lock()
	idx := len(m.children)
	m.children = append(m.children, l)
	m.mu.Unlock()

	l.setParent(nil, idx) // a top-level limiter's "parent" is the manager, tracked separately below
	l.propagateManager(m)

	m.RecordActivity()
}

// RemoveLimiter detaches l from the manager's direct children.
func (m *Manager) RemoveLimiter(l *Limiter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.children {
		if c == l {
			last := len(m.children) - 1
			m.children[i] = m.children[last]
			m.children = m.children[:last]
			return
		}
	}
}

// RecordActivity is called by any bucket with waiters, or any limiter whose
// limits changed, or a newly attached child. It atomically marks the tree
// active and, if it had gone dormant, arms a fresh timer.
func (m *Manager) RecordActivity() {
	prev := m.activity.Swap(0)
	if prev == 2 {
		m.armTimer()
	}
}

func (m *Manager) armTimer() {
	m.mu.Lock()
	if m.timerSet {
		m.mu.Unlock()
		return
	}
	m.timerSet = true
	m.mu.Unlock()

	id, err := m.sched.AddTimer(int(m.tick.Milliseconds()), false, m.onTick)
	if err != nil {
		m.mu.Lock()
		m.timerSet = false
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.timerID = id
	m.mu.Unlock()
}

func (m *Manager) disarmTimer() {
	m.mu.Lock()
	if !m.timerSet {
		m.mu.Unlock()
		return
	}
	id := m.timerID
	m.timerSet = false
	m.mu.Unlock()

	m.sched.StopTimer(id)
}

// onTick runs one refill pass: for each direction, walk the direct
// children under the tree's top-down-lock/bottom-up-unlock discipline,
// then advance (or retire) the activity counter.
func (m *Manager) onTick() {
	start := time.Now()

	m.mu.Lock()
	children := append([]*Limiter(nil), m.children...)
	m.mu.Unlock()

	active := false
	for d := Direction(0); d < numDirections; d++ {
		for _, l := range children {
			l.lockTree()
			if l.updateStats(d) {
				active = true
			}
			l.addTokens(d, Unlimited, Unlimited)
			l.unlockTree()
		}
	}

	m.recordTick(time.Since(start))

	cur := m.activity.Add(1)
	if cur >= 2 && !active {
		m.disarmTimer()
		m.activity.Store(2)
	}
}

func (m *Manager) recordTick(d time.Duration) {
	m.histMu.Lock()
	m.hist.RecordValue(d.Microseconds())
	m.histMu.Unlock()
}

// TickLatency reports the distribution of time spent inside onTick, in
// microseconds, for diagnosing a tree grown too large to refill within one
// tick. The returned snapshot is a fresh copy; the running histogram keeps
// accumulating.
func (m *Manager) TickLatency() *hdrhistogram.Histogram {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	return hdrhistogram.Import(m.hist.Export())
}
