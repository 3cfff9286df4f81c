package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Outcome classifies one outbound call.
type Outcome string

const (
	OutcomeOK             Outcome = "ok"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeTransportError Outcome = "transport_error"
	OutcomeDecodeError    Outcome = "decode_error"
	OutcomeRejected       Outcome = "rejected"
)

// ErrRejected is returned by Do when the call was never attempted, either
// because the breaker is open or the limiter wait was abandoned.
var ErrRejected = errors.New("upstream call rejected")

// Observation describes one outbound call after it finished.
type Observation struct {
	Service  string
	Target   string
	Outcome  Outcome
	Duration time.Duration
	Detail   string
	At       time.Time
}

// Observer receives an Observation for every call made through a Guard.
type Observer interface {
	Observe(Observation)
}

// Observers fans an observation out to each non-nil observer in order.
type Observers []Observer

func (o Observers) Observe(obs Observation) {
	for _, observer := range o {
		if observer != nil {
			observer.Observe(obs)
		}
	}
}

// Settings configures a Guard.
type Settings struct {
	Service string

	// RequestsPerSecond <= 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int

	// FailureThreshold <= 0 disables the circuit breaker.
	FailureThreshold float64
	MinRequests      uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultSettings returns breaker and limiter values suitable for a public
// read-only API.
func DefaultSettings(service string) Settings {
	return Settings{
		Service:           service,
		RequestsPerSecond: 5,
		Burst:             5,
		FailureThreshold:  0.8,
		MinRequests:       5,
		MaxRequests:       1,
		Interval:          30 * time.Second,
		Timeout:           60 * time.Second,
	}
}

// Guard serializes access to one remote service behind a token bucket and a
// circuit breaker, and reports every call to an Observer.
//
// A nil *Guard runs calls directly.
type Guard struct {
	service  string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	observer Observer
	logger   *zap.Logger
}

// Call performs the outbound request. The returned error marks the call as a
// failure for the breaker; the outcome is reported to the observer together
// with detail.
type Call func(ctx context.Context) (outcome Outcome, detail string, err error)

func New(s Settings, observer Observer, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		service:  s.Service,
		observer: observer,
		logger:   logger.With(zap.String("service", s.Service)),
	}

	if s.RequestsPerSecond > 0 {
		burst := s.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(s.RequestsPerSecond), burst)
	}

	if s.FailureThreshold > 0 {
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Service,
			MaxRequests: s.MaxRequests,
			Interval:    s.Interval,
			Timeout:     s.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < s.MinRequests {
					return false
				}
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return failureRatio >= s.FailureThreshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				g.logger.Warn("circuit breaker state changed",
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return g
}

// Service returns the name the guard reports observations under.
func (g *Guard) Service() string {
	if g == nil {
		return ""
	}
	return g.service
}

// State returns the breaker state ("closed", "half-open", "open"), or
// "disabled" when no breaker is configured.
func (g *Guard) State() string {
	if g == nil || g.breaker == nil {
		return "disabled"
	}
	return g.breaker.State().String()
}

// Do waits for a limiter token, runs call through the breaker and records the
// result. It returns the call's error, or an error wrapping ErrRejected when
// the call was not attempted.
func (g *Guard) Do(ctx context.Context, target string, call Call) error {
	if g == nil {
		_, _, err := call(ctx)
		return err
	}

	start := time.Now()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			rejected := fmt.Errorf("%w: rate limiter: %v", ErrRejected, err)
			g.record(target, OutcomeRejected, rejected.Error(), start)
			return rejected
		}
	}

	if g.breaker == nil {
		outcome, detail, err := call(ctx)
		g.record(target, outcome, detail, start)
		return err
	}

	var (
		outcome Outcome
		detail  string
	)
	_, err := g.breaker.Execute(func() (interface{}, error) {
		var callErr error
		outcome, detail, callErr = call(ctx)
		return nil, callErr
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		rejected := fmt.Errorf("%w: %s circuit breaker: %v", ErrRejected, g.service, err)
		g.logger.Debug("call rejected", zap.String("target", target), zap.Error(err))
		g.record(target, OutcomeRejected, rejected.Error(), start)
		return rejected
	}

	g.record(target, outcome, detail, start)
	return err
}

func (g *Guard) record(target string, outcome Outcome, detail string, start time.Time) {
	if g.observer == nil {
		return
	}
	g.observer.Observe(Observation{
		Service:  g.service,
		Target:   target,
		Outcome:  outcome,
		Duration: time.Since(start),
		Detail:   detail,
		At:       start,
	})
}
