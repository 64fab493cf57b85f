package main

import "testing"

// TestDebounceFiresOnExactThreshold verifies that the classifier fires
// exactly when the consecutive count reaches the threshold, not before
// and not again on the following tick.
func TestDebounceFiresOnExactThreshold(t *testing.T) {
	d := newDebounceClassifier(3, 3)

	for i := 0; i < 2; i++ {
		if _, fired := d.Observe(true); fired {
			t.Fatalf("fired after %d up ticks, threshold is 3", i+1)
		}
	}
	state, fired := d.Observe(true)
	if !fired {
		t.Fatalf("expected fire on the 3rd consecutive up tick")
	}
	if state != powerOn {
		t.Fatalf("expected %q, got %q", powerOn, state)
	}
	// Counter reset after firing: the next up tick starts a new run.
	if _, fired := d.Observe(true); fired {
		t.Fatalf("fired again immediately after a fire; counter should have reset")
	}
}

// TestDebounceOppositeObservationResetsCounter verifies that a single
// contrary tick restarts the streak from zero.
func TestDebounceOppositeObservationResetsCounter(t *testing.T) {
	d := newDebounceClassifier(3, 3)

	d.Observe(true)
	d.Observe(true)
	if _, fired := d.Observe(false); fired {
		t.Fatalf("single down tick should not fire with threshold 3")
	}
	// The earlier up streak must be gone: two more ups should not fire.
	d.Observe(true)
	if _, fired := d.Observe(true); fired {
		t.Fatalf("up streak was not reset by the down tick")
	}
	if _, fired := d.Observe(true); !fired {
		t.Fatalf("expected fire after 3 fresh consecutive up ticks")
	}
}

// TestDebounceNeverBothCountersPositive verifies the invariant that at
// most one directional counter is positive at any point.
func TestDebounceNeverBothCountersPositive(t *testing.T) {
	d := newDebounceClassifier(5, 5)
	pattern := []bool{true, true, false, true, false, false, true, false, false, false}
	for i, up := range pattern {
		d.Observe(up)
		if d.consecUp > 0 && d.consecDown > 0 {
			t.Fatalf("both counters positive after tick %d: up=%d down=%d", i, d.consecUp, d.consecDown)
		}
	}
}

// TestDebounceAsymmetricThresholds verifies that on/off thresholds are
// applied independently.
func TestDebounceAsymmetricThresholds(t *testing.T) {
	d := newDebounceClassifier(2, 4)

	d.Observe(true)
	if state, fired := d.Observe(true); !fired || state != powerOn {
		t.Fatalf("expected on-fire after 2 up ticks, fired=%v state=%q", fired, state)
	}

	for i := 0; i < 3; i++ {
		if _, fired := d.Observe(false); fired {
			t.Fatalf("fired after %d down ticks, off threshold is 4", i+1)
		}
	}
	if state, fired := d.Observe(false); !fired || state != powerOff {
		t.Fatalf("expected off-fire after 4 down ticks, fired=%v state=%q", fired, state)
	}
}

// TestDebounceFlappingBelowThresholdNeverFires verifies that alternating
// verdicts shorter than the threshold produce no events at all.
func TestDebounceFlappingBelowThresholdNeverFires(t *testing.T) {
	d := newDebounceClassifier(3, 3)
	for i := 0; i < 50; i++ {
		up := i%2 == 0
		if _, fired := d.Observe(up); fired {
			t.Fatalf("flapping input fired at tick %d", i)
		}
	}
}

// TestDebounceThresholdOne fires on every tick in a steady state change
// but still resets, so a constant signal fires once per threshold run.
func TestDebounceThresholdOne(t *testing.T) {
	d := newDebounceClassifier(1, 1)
	if _, fired := d.Observe(true); !fired {
		t.Fatalf("threshold 1 should fire on the first up tick")
	}
	if _, fired := d.Observe(false); !fired {
		t.Fatalf("threshold 1 should fire on the first down tick")
	}
}
