package u

import (
	"sync"
	"sync/atomic"
	"time"
)

// Debouncer calls the most recently scheduled function once Timeout
// has passed since the first Debounce() call of a burst
type Debouncer struct {
	Timeout      time.Duration
	isDebouncing atomic.Bool
	mu           sync.Mutex
	f            func()
	timer        *time.Timer
}

func (d *Debouncer) run() {
	// clear isDebouncing before calling f() so that a Debounce()
	// racing with us schedules a new run instead of getting lost
	d.mu.Lock()
	f := d.f
	d.f = nil
	d.isDebouncing.Store(false)
	d.mu.Unlock()
	if f != nil {
		f()
	}
}

func (d *Debouncer) Debounce(f func()) {
	d.mu.Lock()
	d.f = f
	d.mu.Unlock()
	didSwap := d.isDebouncing.CompareAndSwap(false, true)
	if !didSwap {
		// already debouncing, the pending run will pick up f
		return
	}
	if d.Timeout == 0 {
		panic("debounce timeout is 0")
	}
	timer := time.AfterFunc(d.Timeout, d.run)
	d.mu.Lock()
	d.timer = timer
	d.mu.Unlock()
}

// Stop cancels the pending call, if any
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.f = nil
	d.isDebouncing.Store(false)
}
