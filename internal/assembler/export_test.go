package assembler

import "time"

// SetClock replaces the time source of a.
func SetClock(a *Assembler, now func() time.Time) {
	a.now = now
}
