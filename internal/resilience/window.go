package resilience

import "sync"

// window is a ring of the last N call outcomes.
type window struct {
	mu       sync.Mutex
	failed   []bool
	next     int
	size     int
	failures int
}

func newWindow(n int) *window {
	return &window{failed: make([]bool, n)}
}

func (w *window) record(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size == len(w.failed) {
		if w.failed[w.next] {
			w.failures--
		}
	} else {
		w.size++
	}
	w.failed[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.failed)
}

// counts returns the failures and the total number of recorded outcomes.
func (w *window) counts() (failures, total int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failures, w.size
}

func (w *window) tripped(minCalls int, threshold float64) bool {
	failures, total := w.counts()
	if total == 0 || total < minCalls {
		return false
	}
	return float64(failures)/float64(total) >= threshold
}

func (w *window) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.failed)
	w.next, w.size, w.failures = 0, 0, 0
}
