package locks

import (
	"sync"
	"sync/atomic"
)

// Handle is a lock domain injected into components.
type Handle interface {
	sync.Locker
	Name() string
}

// Mutex is a named in-process lock.
type Mutex struct {
	name string
	mu   sync.Mutex
}

// New returns a named mutex.
func New(name string) *Mutex {
	return &Mutex{name: name}
}

func (m *Mutex) Lock()        { m.mu.Lock() }
func (m *Mutex) Unlock()      { m.mu.Unlock() }
func (m *Mutex) Name() string { return m.name }

// Do runs fn while holding h. A nil handle runs fn unguarded.
func Do(h sync.Locker, fn func() error) error {
	if h == nil {
		return fn()
	}
	h.Lock()
	defer h.Unlock()
	return fn()
}

// DoValue runs fn while holding h and returns its result.
func DoValue[T any](h sync.Locker, fn func() (T, error)) (T, error) {
	if h == nil {
		return fn()
	}
	h.Lock()
	defer h.Unlock()
	return fn()
}

// Instrumented wraps a mutex and records how many goroutines held it at once.
// A correct caller never observes more than one holder.
type Instrumented struct {
	name         string
	mu           sync.Mutex
	holders      atomic.Int32
	maxHolders   atomic.Int32
	acquisitions atomic.Int64
}

// NewInstrumented returns an instrumented lock.
func NewInstrumented(name string) *Instrumented {
	return &Instrumented{name: name}
}

func (l *Instrumented) Name() string { return l.name }

func (l *Instrumented) Lock() {
	l.mu.Lock()
	l.enter()
}

func (l *Instrumented) Unlock() {
	l.holders.Add(-1)
	l.mu.Unlock()
}

// Enter records a critical section without taking the mutex. Fakes call it
// to assert that a caller already holds the real lock around them.
func (l *Instrumented) Enter() { l.enter() }

// Exit ends a section started by Enter.
func (l *Instrumented) Exit() { l.holders.Add(-1) }

func (l *Instrumented) enter() {
	n := l.holders.Add(1)
	l.acquisitions.Add(1)
	for {
		cur := l.maxHolders.Load()
		if n <= cur || l.maxHolders.CompareAndSwap(cur, n) {
			return
		}
	}
}

// MaxHolders returns the highest number of simultaneous holders observed.
func (l *Instrumented) MaxHolders() int { return int(l.maxHolders.Load()) }

// Acquisitions returns the number of completed Lock or Enter calls.
func (l *Instrumented) Acquisitions() int { return int(l.acquisitions.Load()) }
