// ABOUTME: Time-window claim set used to reject repeated feedback submissions
// ABOUTME: Bounded in size, entries expire in claim order

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key     string
	expires time.Time
}

// Window remembers claimed keys for a fixed duration. Every entry shares the
// same TTL, so the list is ordered by expiry and sweeping stops at the first
// live entry.
type Window struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // *entry, soonest expiry at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewWindow creates a Window and starts its background sweeper.
func NewWindow(ttl time.Duration, maxSize int) *Window {
	w := newWindow(ttl, maxSize, time.Now)
	go w.sweepLoop(sweepInterval(ttl))
	return w
}

func newWindow(ttl time.Duration, maxSize int, now func() time.Time) *Window {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &Window{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     now,
		stop:    make(chan struct{}),
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

// FeedbackKey identifies one rating of one reply within a session.
func FeedbackKey(sessionID, messageID string) string {
	return sessionID + "\x00" + messageID
}

// Claim records key and returns true if it was not already claimed within
// the window. A false result means the caller holds a duplicate.
func (w *Window) Claim(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.expireLocked(now)

	if _, ok := w.entries[key]; ok {
		return false
	}

	if w.order.Len() >= w.maxSize {
		oldest := w.order.Front()
		w.order.Remove(oldest)
		delete(w.entries, oldest.Value.(*entry).key)
	}

	w.entries[key] = w.order.PushBack(&entry{key: key, expires: now.Add(w.ttl)})
	return true
}

// Release forgets key so it can be claimed again, e.g. after the claimed
// write failed.
func (w *Window) Release(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if el, ok := w.entries[key]; ok {
		w.order.Remove(el)
		delete(w.entries, key)
	}
}

// Seen reports whether key is currently claimed.
func (w *Window) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	el, ok := w.entries[key]
	return ok && w.now().Before(el.Value.(*entry).expires)
}

// Len returns the number of live claims.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expireLocked(w.now())
	return w.order.Len()
}

// expireLocked drops expired entries from the front. Caller holds mu.
func (w *Window) expireLocked(now time.Time) {
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		e := front.Value.(*entry)
		if now.Before(e.expires) {
			return
		}
		w.order.Remove(front)
		delete(w.entries, e.key)
	}
}

func (w *Window) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.mu.Lock()
			w.expireLocked(w.now())
			w.mu.Unlock()
		case <-w.stop:
			return
		}
	}
}

// Close stops the sweeper. It is safe to call more than once.
func (w *Window) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
}
