// Package jobtype is the static job type registry. The set of job types is
// closed: adding one is a compile-time change to this package, and every
// switch over Type is expected to be exhaustive.
package jobtype

import (
	"fmt"
	"time"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/backoff"
)

// Type is a symbolic work category. The zero value is invalid.
type Type uint8

const (
	ExperimentExecution Type = iota + 1
	DatasetProcessing
	TraceAnalysis
	LLMBatchRequest
	DataExport
	ModelEvaluation
	FeedbackAggregation
	CleanupTask
	ReportGeneration
	WebhookDelivery
	Custom
)

// MinConcurrency and MaxConcurrency bound every pool size.
const (
	MinConcurrency = 1
	MaxConcurrency = 10
)

// All lists every job type in declaration order.
var All = []Type{
	ExperimentExecution,
	DatasetProcessing,
	TraceAnalysis,
	LLMBatchRequest,
	DataExport,
	ModelEvaluation,
	FeedbackAggregation,
	CleanupTask,
	ReportGeneration,
	WebhookDelivery,
	Custom,
}

// String returns the wire name of t, e.g. "webhook_delivery".
func (t Type) String() string {
	switch t {
	case ExperimentExecution:
		return "experiment_execution"
	case DatasetProcessing:
		return "dataset_processing"
	case TraceAnalysis:
		return "trace_analysis"
	case LLMBatchRequest:
		return "llm_batch_request"
	case DataExport:
		return "data_export"
	case ModelEvaluation:
		return "model_evaluation"
	case FeedbackAggregation:
		return "feedback_aggregation"
	case CleanupTask:
		return "cleanup_task"
	case ReportGeneration:
		return "report_generation"
	case WebhookDelivery:
		return "webhook_delivery"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("jobtype(%d)", uint8(t))
	}
}

// Valid reports whether t is a registered job type.
func (t Type) Valid() bool {
	_, ok := table[t]
	return ok
}

// Parse resolves a wire name to a Type. Unknown names wrap
// conductor.ErrUnsupportedType.
func Parse(s string) (Type, error) {
	for _, t := range All {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", conductor.ErrUnsupportedType, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", conductor.ErrUnsupportedType, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Spec is the registry entry for one job type.
type Spec struct {
	Type Type

	// Queue is the name of the type's single queue.
	Queue string

	// DefaultConcurrency is the pool size used unless overridden.
	DefaultConcurrency int

	// Backoff and MaxAttempts form the default retry policy.
	Backoff     backoff.Policy
	MaxAttempts int
}

func exp(base, maxDelay time.Duration) backoff.Policy {
	return backoff.Policy{Type: backoff.TypeExponential, BaseDelay: base, MaxDelay: maxDelay}
}

func fixed(d time.Duration) backoff.Policy {
	return backoff.Policy{Type: backoff.TypeFixed, BaseDelay: d}
}

// table is the static registry. API-rate-limited types run one at a time;
// I/O-bound types run up to five.
var table = map[Type]Spec{
	ExperimentExecution: {ExperimentExecution, "experiment-execution", 2, exp(2*time.Second, 0), 3},
	DatasetProcessing:   {DatasetProcessing, "dataset-processing", 3, exp(time.Second, 0), 3},
	TraceAnalysis:       {TraceAnalysis, "trace-analysis", 5, exp(time.Second, 0), 3},
	LLMBatchRequest:     {LLMBatchRequest, "llm-batch-request", 1, exp(5*time.Second, 5*time.Minute), 5},
	DataExport:          {DataExport, "data-export", 2, fixed(5 * time.Second), 3},
	ModelEvaluation:     {ModelEvaluation, "model-evaluation", 2, exp(2*time.Second, 0), 3},
	FeedbackAggregation: {FeedbackAggregation, "feedback-aggregation", 3, exp(time.Second, 0), 3},
	CleanupTask:         {CleanupTask, "cleanup-task", 1, fixed(10 * time.Second), 2},
	ReportGeneration:    {ReportGeneration, "report-generation", 2, exp(2*time.Second, 0), 3},
	WebhookDelivery:     {WebhookDelivery, "webhook-delivery", 5, exp(time.Second, time.Minute), 5},
	Custom:              {Custom, "custom", 3, exp(time.Second, 0), 3},
}

// Lookup returns the registry entry for t.
func Lookup(t Type) (Spec, bool) {
	s, ok := table[t]
	return s, ok
}

// MustLookup is like Lookup but panics for an unregistered type.
func MustLookup(t Type) Spec {
	s, ok := table[t]
	if !ok {
		panic(fmt.Sprintf("jobtype: %s is not registered", t))
	}
	return s
}
