package types

import "time"

// TaskStatus tracks a task through the orchestration loop.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskDispatched TaskStatus = "dispatched"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// IsTerminal returns true if the status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is a unit of work produced by decomposition and dispatched to a
// resource. Description and Payload are opaque to the core.
type Task struct {
	ID          string `json:"id"`
	Description string `json:"description"`

	// Requirements is the ordered set of capability tokens a resource must
	// satisfy, possibly including key:value qualifier tokens.
	Requirements []string `json:"requirements"`

	// Payload is forwarded verbatim to the selected resource.
	Payload Document `json:"payload,omitempty"`

	Status             TaskStatus `json:"status"`
	AssignedResourceID string     `json:"assigned_resource_id,omitempty"`

	// Result holds the resource's output once the task completes.
	Result Document `json:"result,omitempty"`

	// Err carries the structured failure when Status is TaskFailed.
	Err *Error `json:"error,omitempty"`

	// Attempts is the number of delegation attempts made, including retries.
	Attempts int `json:"attempts"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// RequestState is the per-request orchestration state machine.
type RequestState string

const (
	StateReceived    RequestState = "received"
	StateDecomposed  RequestState = "decomposed"
	StateDiscovering RequestState = "discovering"
	StateDelegating  RequestState = "delegating"
	StateAwaiting    RequestState = "awaiting"
	StateAggregating RequestState = "aggregating"
	StateCompleted   RequestState = "completed"
	StateFailed      RequestState = "failed"
)

// OperationMode selects how decomposition is obtained. Modes change step 2
// of the orchestration loop only; the remaining steps are identical.
type OperationMode string

const (
	// ModeNoLLM runs a deterministic workflow: tasks are pre-supplied or
	// produced by the rule-based decomposer.
	ModeNoLLM OperationMode = "no_llm"
	// ModeAssisted requires human confirmation of the decomposition.
	ModeAssisted OperationMode = "assisted"
	// ModeAgent delegates decomposition to a fully autonomous planner.
	ModeAgent OperationMode = "agent"
	// ModeHybrid tries the autonomous planner and falls back to rules.
	ModeHybrid OperationMode = "hybrid"
)

// Response is the assembled outcome of a request. A request that cannot
// complete all mandatory tasks is Failed but still carries per-task status;
// failed subtasks are never silently dropped.
type Response struct {
	RequestID string       `json:"request_id"`
	SessionID string       `json:"session_id"`
	State     RequestState `json:"state"`
	Tasks     []*Task      `json:"tasks"`
	Partial   bool         `json:"partial"`
	Mode      OperationMode `json:"mode"`
	StartedAt time.Time    `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// CompletedTasks returns the tasks that reached TaskCompleted.
func (r *Response) CompletedTasks() []*Task {
	out := make([]*Task, 0, len(r.Tasks))
	for _, t := range r.Tasks {
		if t.Status == TaskCompleted {
			out = append(out, t)
		}
	}
	return out
}
