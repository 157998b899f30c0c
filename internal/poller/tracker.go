// internal/poller/tracker.go
package poller

// suppressThreshold is the consecutive-failure count at which an address is
// dropped from polling for the rest of the process lifetime. There is no
// unsuppress path: a register that fails this persistently is misconfigured
// and should not spam the log every cycle until someone fixes the mapping.
const suppressThreshold = 12

type addressState struct {
	failCount  int
	suppressed bool
}

// FailureTracker keeps one failure streak per register address. Keying by
// address (not measurement key) matches how the device misbehaves: a broken
// address is broken for every read of it.
type FailureTracker struct {
	states map[uint16]*addressState
}

func NewFailureTracker() *FailureTracker {
	return &FailureTracker{states: make(map[uint16]*addressState)}
}

// FailOutcome reports what a failed read did to the address state.
type FailOutcome struct {
	Count          int
	JustSuppressed bool
}

// Fail records one failed cycle for addr, creating state lazily.
func (t *FailureTracker) Fail(addr uint16) FailOutcome {
	st := t.states[addr]
	if st == nil {
		st = &addressState{}
		t.states[addr] = st
	}
	st.failCount++
	out := FailOutcome{Count: st.failCount}
	if !st.suppressed && st.failCount >= suppressThreshold {
		st.suppressed = true
		out.JustSuppressed = true
	}
	return out
}

// Success resets the streak and returns how many failures preceded it, so the
// caller can emit a recovery diagnostic. A suppressed address never reaches
// here because suppressed addresses are not read.
func (t *FailureTracker) Success(addr uint16) int {
	st := t.states[addr]
	if st == nil || st.failCount == 0 {
		return 0
	}
	prior := st.failCount
	st.failCount = 0
	return prior
}

func (t *FailureTracker) Suppressed(addr uint16) bool {
	st := t.states[addr]
	return st != nil && st.suppressed
}

// shouldLogFailure rate-limits failure diagnostics: the first three streaks
// log, then every third one. Kept as a pure predicate on the count so the
// cadence is testable without capturing output.
func shouldLogFailure(count int) bool {
	return count <= 3 || count%3 == 0
}
