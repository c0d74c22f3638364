package display

import "time"

// Scheduler abstracts delayed one-shot callbacks so the reconciliation flow
// can sequence follow-up steps explicitly and tests can run them
// deterministically. The returned function cancels the callback if it has not
// fired yet.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler schedules callbacks on real timers.
type TimerScheduler struct{}

// After implements Scheduler using time.AfterFunc.
func (TimerScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
