package observer

import "time"

// debouncer turns a stream of mutation bursts into one fire per quiet
// period. Every burst restarts the window.
type debouncer struct {
	window  time.Duration
	pending int
	timer   *time.Timer
	timerCh <-chan time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	if window <= 0 {
		window = 250 * time.Millisecond
	}
	return &debouncer{window: window}
}

// touch records a burst and (re)starts the window.
func (d *debouncer) touch() {
	d.pending++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
}

// timerC fires when the window expires. Nil while idle.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// fire resets the debouncer and returns how many bursts it absorbed.
func (d *debouncer) fire() int {
	n := d.pending
	d.pending = 0
	d.stop()
	return n
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}
