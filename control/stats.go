// control/stats.go
// Author: momentics <momentics@gmail.com>
//
// Point-in-time statistics of a running job-queue service.

package control

import "time"

// ServiceStats is a snapshot taken from Service.Stats.
type ServiceStats struct {
	Name     string
	Pending  int
	Capacity int
	// Executed counts jobs that ran, including ones that panicked.
	Executed uint64
	Panics   uint64
	// JobsPerSecond is measured over the last full one-second window.
	JobsPerSecond uint64
	// WorkTime is the duration of the last job loop.
	WorkTime time.Duration
	// IdleTime is the duration of the last idle callback round.
	IdleTime time.Duration
}

// StatsSource is anything that can produce a ServiceStats snapshot.
type StatsSource interface {
	Stats() ServiceStats
}
