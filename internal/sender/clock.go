package sender

import "time"

// Clock abstracts wall time so the pacer and heartbeat can be driven
// deterministically in tests, generalizing the teacher's sleepFn hook
// (cmd/can-server/backend_serial.go) into an interface.
type Clock interface {
	Now() time.Time
}

// systemClock is the default, real-time Clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production Clock implementation.
var SystemClock Clock = systemClock{}
