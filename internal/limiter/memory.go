package limiter

import (
	"sync"
	"time"
)

const (
	defaultFreeAttempts = 3
	defaultBaseDelay    = 2 * time.Second
	defaultMaxDelay     = 5 * time.Minute
)

type entry struct {
	failures     int
	blockedUntil time.Time
}

// Memory is an in-process Limiter. The first few failures per username are
// free; each one after that doubles the block, up to a cap. State does not
// survive a restart.
type Memory struct {
	freeAttempts int
	baseDelay    time.Duration
	maxDelay     time.Duration
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewMemory constructs a Memory limiter with the default thresholds.
func NewMemory() *Memory {
	return &Memory{
		freeAttempts: defaultFreeAttempts,
		baseDelay:    defaultBaseDelay,
		maxDelay:     defaultMaxDelay,
		now:          time.Now,
		entries:      map[string]*entry{},
	}
}

func (m *Memory) Allow(username string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[username]
	if !ok {
		return true, 0
	}
	if wait := e.blockedUntil.Sub(m.now()); wait > 0 {
		return false, wait
	}
	return true, 0
}

func (m *Memory) Success(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, username)
}

func (m *Memory) Failure(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[username]
	if !ok {
		e = &entry{}
		m.entries[username] = e
	}
	e.failures++
	over := e.failures - m.freeAttempts
	if over <= 0 {
		return
	}
	delay := m.baseDelay << (over - 1)
	if delay > m.maxDelay || delay <= 0 {
		delay = m.maxDelay
	}
	e.blockedUntil = m.now().Add(delay)
}
