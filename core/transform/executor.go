package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/pano/core/graph"
	"github.com/siherrmann/pano/model"
	"github.com/sony/gobreaker"
)

// BreakerConfig controls the circuit breaker kept per transform.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig trips a transform after 5 runs with a failure rate
// of 80% and retries it after a minute.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         5 * time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Executor runs transforms with input and output validation, a timeout
// and a circuit breaker per transform name.
type Executor struct {
	timeout time.Duration
	breaker BreakerConfig
	log     *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewExecutor creates an executor. A timeout <= 0 disables the timeout.
func NewExecutor(timeout time.Duration, breaker BreakerConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		timeout:  timeout,
		breaker:  breaker,
		log:      logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

type runResult struct {
	entities []*model.Entity
	err      error
}

// Execute validates the input type, runs t and validates the output types.
// A run that returns entities together with an error keeps the entities and
// reports a *PartialError. All errors are of type *TransformError.
func (e *Executor) Execute(ctx context.Context, t Transform, entity *model.Entity, g graph.Reader) ([]*model.Entity, error) {
	if entity == nil || !Accepts(t, entity.Type) {
		var id uuid.UUID
		var entityType model.EntityType
		if entity != nil {
			id, entityType = entity.ID, entity.Type
		}
		return nil, &TransformError{Transform: t.Name(), EntityID: id, Err: fmt.Errorf("%w: %s", ErrUnsupportedInput, entityType)}
	}

	e.log.Info("Executing transform", slog.String("transform", t.Name()), slog.String("entity_id", entity.ID.String()))

	var result runResult
	_, err := e.breakerFor(t.Name()).Execute(func() (any, error) {
		result = e.run(ctx, t, entity, g)
		if result.err != nil && len(result.entities) == 0 {
			return nil, result.err
		}
		return nil, nil
	})
	if err != nil {
		e.log.Error("Transform failed", slog.String("transform", t.Name()), slog.String("error", err.Error()))
		return nil, &TransformError{Transform: t.Name(), EntityID: entity.ID, Err: err}
	}

	for _, produced := range result.entities {
		if produced == nil || !Produces(t, produced.Type) {
			return nil, &TransformError{Transform: t.Name(), EntityID: entity.ID, Err: ErrInvalidOutput}
		}
	}

	if result.err != nil {
		e.log.Warn("Transform returned partial result", slog.String("transform", t.Name()), slog.Int("entities", len(result.entities)), slog.String("error", result.err.Error()))
		return result.entities, &TransformError{
			Transform: t.Name(),
			EntityID:  entity.ID,
			Err:       &PartialError{Produced: len(result.entities), Err: result.err},
		}
	}

	e.log.Info("Transform completed", slog.String("transform", t.Name()), slog.Int("entities", len(result.entities)))
	return result.entities, nil
}

// run calls t.Run on its own goroutine so a transform that ignores its
// context still cannot hold the caller past the timeout.
func (e *Executor) run(ctx context.Context, t Transform, entity *model.Entity, g graph.Reader) runResult {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: fmt.Errorf("transform panicked: %v", r)}
			}
		}()
		entities, err := t.Run(ctx, entity.Clone(), g)
		done <- runResult{entities: entities, err: err}
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return runResult{err: ctx.Err()}
	}
}

func (e *Executor) breakerFor(name string) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[name]; ok {
		return cb
	}

	config := e.breaker
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			e.log.Warn("Transform circuit breaker changed state", slog.String("transform", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	e.breakers[name] = cb

	return cb
}

// State returns the breaker state of the named transform.
func (e *Executor) State(name string) gobreaker.State {
	return e.breakerFor(name).State()
}
