package client

import (
	"sync"
	"time"
)

// Lock is the single-flight guard for authentication attempts within
// one client process. Acquire never blocks or queues: a second attempt
// while one is in flight is refused. Each successful acquire yields an
// Attempt whose Release balances exactly that acquire; a stale release
// touches nothing but its own attempt's cancellation signal.
type Lock struct {
	mu      sync.Mutex
	current *Attempt
}

// Attempt is one granted hold on the lock. Its cancellation signal
// belongs to this attempt alone and stays fired after release, even
// when the lock has since been re-acquired.
type Attempt struct {
	lock          *Lock
	walletAddress string
	startTime     time.Time
	released      bool
	cancel        chan struct{}
}

// NewLock creates an unheld lock.
func NewLock() *Lock {
	return &Lock{}
}

// Acquire takes the lock for the wallet address. Returns (nil, false)
// immediately when another attempt holds it.
func (l *Lock) Acquire(walletAddress string) (*Attempt, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		return nil, false
	}

	attempt := &Attempt{
		lock:          l,
		walletAddress: walletAddress,
		startTime:     time.Now(),
		cancel:        make(chan struct{}),
	}
	l.current = attempt
	return attempt, true
}

// Release fires this attempt's cancellation signal exactly once and,
// when the attempt still holds the lock, frees it. Releasing twice, or
// after another attempt has taken the lock, never disturbs the
// current holder.
func (a *Attempt) Release() {
	a.lock.mu.Lock()
	defer a.lock.mu.Unlock()

	if a.released {
		return
	}
	a.released = true
	close(a.cancel)

	if a.lock.current == a {
		a.lock.current = nil
	}
}

// IsCancelled reports whether this attempt's cancellation signal has
// fired. Checkpoints poll this between suspension points.
func (a *Attempt) IsCancelled() bool {
	select {
	case <-a.cancel:
		return true
	default:
		return false
	}
}

// CancelCurrent releases whichever attempt currently holds the lock.
// Disconnect handlers use this to abort an in-flight authentication.
func (l *Lock) CancelCurrent() {
	l.mu.Lock()
	current := l.current
	l.mu.Unlock()

	if current != nil {
		current.Release()
	}
}

// Held reports whether the lock is currently taken, and by which
// wallet address.
func (l *Lock) Held() (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return false, ""
	}
	return true, l.current.walletAddress
}
