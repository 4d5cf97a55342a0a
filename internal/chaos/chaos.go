// Package chaos runs hypothesis-driven experiments against a live rental
// service: verify a steady state, inject load or faults, observe, roll back
// and assert.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrSteadyStateInvalid aborts an experiment before any fault is injected.
var ErrSteadyStateInvalid = errors.New("steady state invalid - aborting experiment")

// ErrBlastRadius rejects an experiment whose blast radius is outside [0, 1].
var ErrBlastRadius = errors.New("blast radius must be within [0, 1]")

// Experiment defines a chaos engineering test.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	Duration    time.Duration
	BlastRadius float64 // 0.0 to 1.0
}

// Metric is a measurable system property.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Action is a fault injection or recovery step.
type Action struct {
	Type       string
	Target     string
	Parameters map[string]any
	Execute    func(context.Context) error
}

// Assertion checks the last observation of Metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

type Result struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []MetricViolation      `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
	FailedAssertions []string               `json:"failed_assertions,omitempty"`
	MTTR             *time.Duration         `json:"mttr,omitempty"`
}

type MetricViolation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine orchestrates experiments.
type Engine struct {
	tracer      trace.Tracer
	logger      *slog.Logger
	sampleEvery time.Duration
	pause       time.Duration
	experiments []Experiment
	results     []Result
	mu          sync.Mutex
}

type Option func(*Engine)

// WithSampleEvery sets how often metrics are sampled while observing.
func WithSampleEvery(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sampleEvery = d
		}
	}
}

// WithPause sets the wait between game day experiments.
func WithPause(d time.Duration) Option {
	return func(e *Engine) { e.pause = d }
}

func NewEngine(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		tracer:      otel.Tracer("rentalnexus/chaos"),
		logger:      logger,
		sampleEvery: time.Second,
		pause:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns the results of completed experiments.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// RunExperiment executes a single experiment.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) (*Result, error) {
	if exp.BlastRadius < 0 || exp.BlastRadius > 1 {
		return nil, fmt.Errorf("%w: %s has %v", ErrBlastRadius, exp.Name, exp.BlastRadius)
	}

	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(
			attribute.String("experiment.name", exp.Name),
			attribute.String("experiment.hypothesis", exp.Hypothesis),
			attribute.Float64("experiment.blast_radius", exp.BlastRadius),
			attribute.Int("experiment.actions", len(exp.Method)),
		),
	)
	defer span.End()
	e.logger.InfoContext(ctx, "starting experiment",
		"experiment", exp.Name,
		"hypothesis", exp.Hypothesis,
		"blast_radius", exp.BlastRadius,
		"duration", exp.Duration,
	)

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
		ErrorEvents:    make([]ErrorEvent, 0),
	}

	span.AddEvent("validating_steady_state")
	if valid, violations := e.validateSteadyState(ctx, exp.SteadyState); !valid {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		span.AddEvent("action", trace.WithAttributes(
			attribute.String("action.type", action.Type),
			attribute.String("action.target", action.Target),
			attribute.String("action.parameters", fmt.Sprint(action.Parameters)),
		))
		e.logger.InfoContext(ctx, "injecting action",
			"experiment", exp.Name,
			"type", action.Type,
			"target", action.Target,
			"parameters", action.Parameters,
		)
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: action.Target,
			})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			span.RecordError(err)
			e.logger.WarnContext(ctx, "rollback action failed", "experiment", exp.Name, "target", action.Target, "error", err)
		}
	}

	span.AddEvent("validating_assertions")
	result.FailedAssertions = e.validateAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.FailedAssertions) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

// observe samples every steady-state metric once immediately and then on each
// tick until the experiment duration ends.
func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	observationCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	var recoveryStart time.Time
	recovered := false

	sample := func() {
		for _, metric := range exp.SteadyState {
			value, err := metric.Query(ctx)
			if err != nil {
				result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
					Timestamp: time.Now(),
					Error:     err.Error(),
					Component: metric.Name,
				})
				continue
			}
			result.Observations[metric.Name] = append(result.Observations[metric.Name],
				DataPoint{Timestamp: time.Now(), Value: value})

			if !evaluateThreshold(value, metric.Threshold) {
				if recoveryStart.IsZero() {
					recoveryStart = time.Now()
				}
				result.Violations = append(result.Violations, MetricViolation{
					MetricName: metric.Name,
					Expected:   metric.Threshold.Value,
					Actual:     value,
					Timestamp:  time.Now(),
				})
			} else if !recoveryStart.IsZero() && !recovered {
				mttr := time.Since(recoveryStart)
				result.MTTR = &mttr
				recovered = true
			}
		}
	}

	sample()
	ticker := time.NewTicker(e.sampleEvery)
	defer ticker.Stop()
	for {
		select {
		case <-observationCtx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

func (e *Engine) validateSteadyState(ctx context.Context, metrics []Metric) (bool, []MetricViolation) {
	violations := make([]MetricViolation, 0)
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     -1,
				Timestamp:  time.Now(),
			})
			continue
		}
		if !evaluateThreshold(value, metric.Threshold) {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
	return len(violations) == 0, violations
}

func evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}

// validateAssertions returns the messages of assertions that do not hold on
// the final observation of their metric.
func (e *Engine) validateAssertions(assertions []Assertion, result *Result) []string {
	var failed []string
	for _, a := range assertions {
		observations := result.Observations[a.Metric]
		if len(observations) == 0 {
			failed = append(failed, fmt.Sprintf("%s: no observations", a.Message))
			continue
		}
		if !a.Condition(observations[len(observations)-1].Value) {
			failed = append(failed, a.Message)
		}
	}
	return failed
}

// GameDay is a named series of experiments.
type GameDay struct {
	Name         string
	Date         time.Time
	Scenarios    []Experiment
	Participants []string
}

// ExecuteGameDay runs every scenario in order and reports whether all
// hypotheses held.
func (e *Engine) ExecuteGameDay(ctx context.Context, gameDay GameDay) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", gameDay.Name)),
	)
	defer span.End()

	e.logger.InfoContext(ctx, "starting game day",
		"name", gameDay.Name,
		"date", gameDay.Date.Format(time.DateOnly),
		"participants", gameDay.Participants,
		"experiments", len(gameDay.Scenarios),
	)

	allHeld := true
	for i, scenario := range gameDay.Scenarios {
		if i > 0 && e.pause > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(e.pause):
			}
		}
		e.logger.InfoContext(ctx, "running experiment",
			"index", i+1,
			"name", scenario.Name,
			"hypothesis", scenario.Hypothesis,
		)

		result, err := e.RunExperiment(ctx, scenario)
		if err != nil {
			allHeld = false
			e.logger.ErrorContext(ctx, "experiment failed", "name", scenario.Name, "error", err)
			continue
		}
		e.logResult(ctx, result)
		allHeld = allHeld && result.HypothesisHeld
	}
	span.SetAttributes(attribute.Bool("gameday.passed", allHeld))
	return allHeld, nil
}

func (e *Engine) logResult(ctx context.Context, result *Result) {
	attrs := []any{
		"name", result.ExperimentName,
		"hypothesis_held", result.HypothesisHeld,
		"violations", len(result.Violations),
		"errors", len(result.ErrorEvents),
		"duration", result.Duration.String(),
	}
	if result.MTTR != nil {
		attrs = append(attrs, "mttr", result.MTTR.String())
	}
	if result.HypothesisHeld {
		e.logger.InfoContext(ctx, "hypothesis held", attrs...)
		return
	}
	attrs = append(attrs, "failed_assertions", result.FailedAssertions)
	e.logger.WarnContext(ctx, "hypothesis violated", attrs...)
}
