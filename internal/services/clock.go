package services

import "time"

// Clock abstracts the server time source so expiry logic is testable.
// Production code always uses RealClock; nothing in the engine ever reads
// client-supplied timestamps for timing decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// RealClock returns the wall-clock time source.
func RealClock() Clock { return systemClock{} }
