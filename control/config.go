// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Job-queue service configuration with defaults and validation.

package control

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-tcp/api"
	"go.uber.org/multierr"
)

const (
	// DefaultCapacity is the bounded job queue length of a service.
	DefaultCapacity = 10000
	// DefaultPeriod is the loop budget between idle callbacks.
	DefaultPeriod = 10 * time.Millisecond
	// DrainFactor multiplies Period to bound the wait for each job while draining on stop.
	DrainFactor = 10
)

// ServiceConfig tunes a single-consumer job queue.
type ServiceConfig struct {
	// Capacity bounds the number of pending jobs. Producers block when full.
	Capacity int
	// Period is the loop budget; idle callbacks fire at least this often.
	Period time.Duration
}

// DefaultServiceConfig returns the stock 10000 / 10ms configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{Capacity: DefaultCapacity, Period: DefaultPeriod}
}

// WithDefaults fills zero fields from DefaultServiceConfig.
func (c ServiceConfig) WithDefaults() ServiceConfig {
	if c.Capacity == 0 {
		c.Capacity = DefaultCapacity
	}
	if c.Period == 0 {
		c.Period = DefaultPeriod
	}
	return c
}

// DrainWait is the per-job wait used while draining a stopping service.
func (c ServiceConfig) DrainWait() time.Duration {
	return c.Period * DrainFactor
}

// Validate reports every invalid field at once.
func (c ServiceConfig) Validate() error {
	var err error
	if c.Capacity <= 0 {
		err = multierr.Append(err, api.NewError(api.ErrCodeInvalidArgument,
			fmt.Sprintf("service capacity must be positive, got %d", c.Capacity)))
	}
	if c.Period <= 0 {
		err = multierr.Append(err, api.NewError(api.ErrCodeInvalidArgument,
			fmt.Sprintf("service period must be positive, got %s", c.Period)))
	}
	return err
}
