package pipeline

import (
	"math"
	"slices"
	"time"
)

// RetryPolicy is the retry configuration attached to a task node.
type RetryPolicy struct {
	Name        string        `json:"name" yaml:"name"`
	ErrorKinds  []ErrorKind   `json:"error_kinds" yaml:"error_kinds"`
	Interval    time.Duration `json:"interval" yaml:"interval"`
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	BackoffRate float64       `json:"backoff_rate" yaml:"backoff_rate"`
}

const (
	DefaultRetryAttempts  = 3
	DefaultRetryInterval  = time.Second
	DefaultBackoffRate    = 2.0
	EventLagRetryInterval = 10 * time.Second
)

// DefaultRetryPolicy retries transient infrastructure failures on every task.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Name:        "transient",
		ErrorKinds:  slices.Clone(TransientKinds),
		Interval:    DefaultRetryInterval,
		MaxAttempts: DefaultRetryAttempts,
		BackoffRate: DefaultBackoffRate,
	}
}

// EventLagRetryPolicy retries updates that raced ahead of the record they
// reference.
func EventLagRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Name:        "event_lag",
		ErrorKinds:  []ErrorKind{KindEventLag},
		Interval:    EventLagRetryInterval,
		MaxAttempts: DefaultRetryAttempts,
		BackoffRate: DefaultBackoffRate,
	}
}

// Matches reports whether kind is retryable under p.
func (p RetryPolicy) Matches(kind ErrorKind) bool {
	return slices.Contains(p.ErrorKinds, kind)
}

// Delay returns the wait before retry number n (1-based): Interval for the
// first retry, multiplied by BackoffRate for each subsequent one.
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	rate := p.BackoffRate
	if rate < 1 {
		rate = 1
	}
	return time.Duration(float64(p.Interval) * math.Pow(rate, float64(n-1)))
}

// Retries is the number of retries p allows after the first attempt.
func (p RetryPolicy) Retries() int {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return p.MaxAttempts - 1
}

// selectPolicy returns the index of the first policy matching kind, or -1.
func selectPolicy(policies []RetryPolicy, kind ErrorKind) int {
	for i, p := range policies {
		if p.Matches(kind) {
			return i
		}
	}
	return -1
}
