package loop

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler for tests. Time only moves through
// Advance or Fire, posted functions only run in Flush, and Go work runs
// inline unless Hold is set.
type Manual struct {
	// Hold queues Go work instead of running it, so a fetch stays in
	// flight until Release.
	Hold bool

	now    time.Duration
	seq    int
	timers []*manualTimer
	posted []func()
	held   []func()
}

type manualTimer struct {
	due       time.Duration
	seq       int
	fn        func()
	cancelled bool
	fired     bool
}

func (t *manualTimer) Cancel() { t.cancelled = true }

// NewManual creates a manual scheduler at time zero.
func NewManual() *Manual {
	return &Manual{}
}

// After registers fn to run once the clock reaches now+d.
func (m *Manual) After(d time.Duration, fn func()) Handle {
	m.seq++
	t := &manualTimer{due: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Post queues fn until the next Flush.
func (m *Manual) Post(fn func()) {
	m.posted = append(m.posted, fn)
}

// Go runs fn immediately, or holds it when Hold is set.
func (m *Manual) Go(fn func()) {
	if m.Hold {
		m.held = append(m.held, fn)
		return
	}
	fn()
}

// Flush runs posted functions, including ones they post, until none remain.
func (m *Manual) Flush() {
	for len(m.posted) > 0 {
		fn := m.posted[0]
		m.posted = m.posted[1:]
		fn()
	}
}

// Release runs held Go work and flushes what it posts.
func (m *Manual) Release() {
	held := m.held
	m.held = nil
	for _, fn := range held {
		fn()
	}
	m.Flush()
}

// Held returns how many Go calls are waiting for Release.
func (m *Manual) Held() int {
	return len(m.held)
}

// Now returns the manual clock.
func (m *Manual) Now() time.Duration {
	return m.now
}

// Pending returns the number of live timers.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.timers {
		if !t.cancelled && !t.fired {
			n++
		}
	}
	return n
}

// NextDelay returns the delay until the earliest live timer.
func (m *Manual) NextDelay() (time.Duration, bool) {
	t := m.earliest()
	if t == nil {
		return 0, false
	}
	return t.due - m.now, true
}

// Fire moves the clock to the earliest live timer, runs it and flushes.
// It returns false when no timer is pending.
func (m *Manual) Fire() bool {
	t := m.earliest()
	if t == nil {
		return false
	}
	if t.due > m.now {
		m.now = t.due
	}
	t.fired = true
	t.fn()
	m.Flush()
	m.compact()
	return true
}

// Advance moves the clock by d, firing every timer that comes due in order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		t := m.earliest()
		if t == nil || t.due > target {
			break
		}
		m.Fire()
	}
	m.now = target
}

// RunUntilIdle fires timers until none are pending or limit timers have
// fired. It returns the number fired.
func (m *Manual) RunUntilIdle(limit int) int {
	fired := 0
	for fired < limit && m.Fire() {
		fired++
	}
	return fired
}

func (m *Manual) earliest() *manualTimer {
	var best *manualTimer
	for _, t := range m.timers {
		if t.cancelled || t.fired {
			continue
		}
		if best == nil || t.due < best.due || (t.due == best.due && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) compact() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.cancelled && !t.fired {
			live = append(live, t)
		}
	}
	for i := len(live); i < len(m.timers); i++ {
		m.timers[i] = nil
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool { return m.timers[i].seq < m.timers[j].seq })
}
