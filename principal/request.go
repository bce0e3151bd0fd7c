package principal

import (
	"github.com/aegisframework/aegis/types"
)

// TaskSpec is one unit of a decomposition: what a task needs, before it is
// scheduled.
type TaskSpec struct {
	Description  string         `json:"description"`
	Requirements []string       `json:"requirements"`
	Payload      types.Document `json:"payload,omitempty"`
}

// Request is an incoming user request. Either Tasks carries a pre-supplied
// decomposition or Requirements describes a single-task request; otherwise
// the decomposer (per operation mode) must produce the plan.
type Request struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	// Description is the natural-language request, opaque to the core.
	Description string `json:"description"`

	// Requirements, when set, short-circuits decomposition into one task.
	Requirements []string `json:"requirements,omitempty"`

	// Payload is forwarded to the selected resource.
	Payload types.Document `json:"payload,omitempty"`

	// Tasks is a pre-supplied decomposition. Takes precedence over
	// Requirements.
	Tasks []TaskSpec `json:"tasks,omitempty"`
}
