package engine

import "sync"

// tickerLocks serializes all mutating operations for a given ticker while
// letting different tickers proceed fully in parallel. Locks are created
// lazily and never removed; the set of tracked tickers is small.
type tickerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTickerLocks() *tickerLocks {
	return &tickerLocks{locks: make(map[string]*sync.Mutex)}
}

// forTicker returns the mutex owning the given ticker.
func (t *tickerLocks) forTicker(ticker string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[ticker]
	if !ok {
		l = &sync.Mutex{}
		t.locks[ticker] = l
	}
	return l
}
