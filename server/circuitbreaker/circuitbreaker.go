// Package circuitbreaker fails completion calls fast while the endpoint
// keeps failing. It never retries.
package circuitbreaker

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/lumiverse/lumiverse/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// State represents the current state of the circuit breaker
type State int

const (
	StateClosed   State = iota // Circuit is closed (allowing requests)
	StateOpen                  // Circuit is open (blocking requests)
	StateHalfOpen              // Circuit is half-open (testing if service is healthy)
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds configuration for the circuit breaker
type Config struct {
	FailureThreshold uint32        // Consecutive failures before opening circuit
	ResetTimeout     time.Duration // Time to wait in open state before trying again
	HalfOpenRequests uint32        // Requests allowed through in half-open state
	Interval         time.Duration // Closed-state period after which counts reset; zero never resets
	TestMode         bool          // Skip metric registration in test mode
}

// FromConfig converts the file configuration.
func FromConfig(c config.CircuitBreakerConfig) Config {
	return Config{
		FailureThreshold: c.FailureThreshold,
		ResetTimeout:     c.Timeout,
		HalfOpenRequests: c.MaxRequests,
		Interval:         c.Interval,
	}
}

// CircuitBreaker wraps gobreaker with Prometheus metrics and logging.
type CircuitBreaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger

	// Metrics
	stateGauge    prometheus.Gauge
	failuresCount prometheus.Counter
	tripsTotal    prometheus.Counter
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(name string, cfg Config, logger *zap.Logger, registry *prometheus.Registry) *CircuitBreaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := &CircuitBreaker{
		name:   name,
		logger: logger,
	}

	cb.stateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "lumiverse_circuit_breaker_state",
		Help:        "Current state of the circuit breaker (0=closed, 1=open, 2=half-open)",
		ConstLabels: prometheus.Labels{"name": name},
	})
	cb.failuresCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "lumiverse_circuit_breaker_failures_total",
		Help:        "Total number of failures recorded by the circuit breaker",
		ConstLabels: prometheus.Labels{"name": name},
	})
	cb.tripsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "lumiverse_circuit_breaker_trips_total",
		Help:        "Total number of times the circuit breaker has tripped",
		ConstLabels: prometheus.Labels{"name": name},
	})

	if !cfg.TestMode && registry != nil {
		registry.MustRegister(cb.stateGauge)
		registry.MustRegister(cb.failuresCount)
		registry.MustRegister(cb.tripsTotal)
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 1
	}

	cb.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			cb.stateGauge.Set(float64(fromGobreaker(to)))
			if to == gobreaker.StateOpen {
				cb.tripsTotal.Inc()
				cb.logger.Warn("Circuit breaker tripped",
					zap.String("name", name),
					zap.String("from", from.String()),
				)
				return
			}
			cb.logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return cb
}

// isSuccessful does not count a caller giving up as an endpoint failure.
func isSuccessful(err error) bool {
	return err == nil || stderrors.Is(err, context.Canceled)
}

// ErrCircuitOpen replaces gobreaker's open-state and too-many-requests
// errors; its text is what callers show the user.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// Execute runs f if the breaker allows it. When the breaker rejects the call
// f is not run and ErrCircuitOpen is returned; otherwise f's error is
// returned unchanged.
func (cb *CircuitBreaker) Execute(f func() error) error {
	_, err := cb.cb.Execute(func() (interface{}, error) {
		if ferr := f(); ferr != nil {
			if !isSuccessful(ferr) {
				cb.failuresCount.Inc()
			}
			return nil, ferr
		}
		return nil, nil
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	return fromGobreaker(cb.cb.State())
}

// Counts returns the counters of the current generation.
func (cb *CircuitBreaker) Counts() gobreaker.Counts {
	return cb.cb.Counts()
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
