package main

// powerState is the debounced binary state of the monitored host.
type powerState string

const (
	powerOn  powerState = "on"
	powerOff powerState = "off"
)

func (s powerState) valid() bool {
	return s == powerOn || s == powerOff
}

// debounceClassifier turns a noisy stream of per-tick up/down verdicts
// into confirmed on/off events. It counts consecutive same-direction
// ticks and fires exactly when a counter reaches its threshold, then
// resets that counter so the next event needs a fresh run. At most one
// counter is ever positive.
type debounceClassifier struct {
	onThreshold  int
	offThreshold int
	consecUp     int
	consecDown   int
}

func newDebounceClassifier(onThreshold, offThreshold int) *debounceClassifier {
	if onThreshold < 1 {
		onThreshold = 1
	}
	if offThreshold < 1 {
		offThreshold = 1
	}
	return &debounceClassifier{
		onThreshold:  onThreshold,
		offThreshold: offThreshold,
	}
}

// Observe feeds one tick's verdict into the classifier. It returns the
// confirmed state and fired=true only on the tick the threshold run
// completes; every other tick returns fired=false.
func (d *debounceClassifier) Observe(up bool) (state powerState, fired bool) {
	if up {
		d.consecDown = 0
		d.consecUp++
		if d.consecUp == d.onThreshold {
			d.consecUp = 0
			return powerOn, true
		}
		return powerOn, false
	}
	d.consecUp = 0
	d.consecDown++
	if d.consecDown == d.offThreshold {
		d.consecDown = 0
		return powerOff, true
	}
	return powerOff, false
}
