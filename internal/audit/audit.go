// internal/audit/audit.go
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Check measures one property of the stored data. The property holds when
// the measured value satisfies Threshold.
type Check struct {
	Name       string
	Hypothesis string
	Query      func(context.Context) (float64, error)
	Threshold  Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Zero is the threshold of checks that count violating rows.
var Zero = Threshold{Operator: "==", Value: 0}

type CheckResult struct {
	Name       string  `json:"name"`
	Hypothesis string  `json:"hypothesis"`
	Expected   string  `json:"expected"`
	Actual     float64 `json:"actual"`
	Held       bool    `json:"held"`
	Error      string  `json:"error,omitempty"`
}

type Report struct {
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Results   []CheckResult `json:"results"`
}

// Healthy reports whether every check ran and held.
func (r Report) Healthy() bool {
	for _, res := range r.Results {
		if !res.Held {
			return false
		}
	}
	return true
}

func (r Report) Violations() []CheckResult {
	out := []CheckResult{}
	for _, res := range r.Results {
		if !res.Held {
			out = append(out, res)
		}
	}
	return out
}

// Auditor runs registered checks against the live data.
type Auditor struct {
	tracer trace.Tracer
	logger *zap.Logger
	checks []Check
	mu     sync.Mutex
}

func NewAuditor(logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{
		tracer: otel.Tracer("librecords/audit"),
		logger: logger.Named("audit"),
	}
}

func (a *Auditor) Register(checks ...Check) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checks = append(a.checks, checks...)
}

func (a *Auditor) Checks() []Check {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Check(nil), a.checks...)
}

// Run evaluates every check once. A check whose query fails counts as not
// held; the remaining checks still run.
func (a *Auditor) Run(ctx context.Context) Report {
	ctx, span := a.tracer.Start(ctx, "audit.run")
	defer span.End()

	report := Report{StartTime: time.Now()}
	for _, p := range a.Checks() {
		res := CheckResult{
			Name:       p.Name,
			Hypothesis: p.Hypothesis,
			Expected:   fmt.Sprintf("%s %g", p.Threshold.Operator, p.Threshold.Value),
		}

		value, err := p.Query(ctx)
		switch {
		case err != nil:
			res.Error = err.Error()
			span.RecordError(err, trace.WithAttributes(attribute.String("check.name", p.Name)))
			a.logger.Error("check failed", zap.String("check", p.Name), zap.Error(err))
		default:
			res.Actual = value
			res.Held = p.Threshold.Holds(value)
			if !res.Held {
				a.logger.Warn("invariant violated",
					zap.String("check", p.Name),
					zap.Float64("actual", value),
					zap.String("expected", res.Expected),
				)
			}
		}
		report.Results = append(report.Results, res)
	}

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)

	violations := len(report.Violations())
	span.SetAttributes(
		attribute.Int("checks", len(report.Results)),
		attribute.Int("violations", violations),
	)
	if violations > 0 {
		span.SetStatus(codes.Error, "invariants violated")
	}
	return report
}
