package principal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aegisframework/aegis/types"
)

// Decomposer turns a request into task specs.
type Decomposer interface {
	Decompose(ctx context.Context, req *Request, sess *types.Session) ([]TaskSpec, error)
}

// Planner is an external planning collaborator (typically an LLM-backed
// agent). The core never interprets what it returns beyond the task specs.
type Planner interface {
	Plan(ctx context.Context, req *Request, sess *types.Session) ([]TaskSpec, error)
}

// Confirmer approves or amends a decomposition before it runs. Used by the
// assisted mode; a human sits behind it.
type Confirmer interface {
	Confirm(ctx context.Context, specs []TaskSpec) ([]TaskSpec, error)
}

// RuleBasedDecomposer is the deterministic decomposer: it uses a
// pre-supplied plan when the request carries one, and otherwise folds the
// request's requirements into a single task. It never consults a model.
type RuleBasedDecomposer struct {
	logger *zap.Logger
}

// NewRuleBasedDecomposer creates the deterministic decomposer.
func NewRuleBasedDecomposer(logger *zap.Logger) *RuleBasedDecomposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RuleBasedDecomposer{logger: logger.With(zap.String("component", "decomposer"))}
}

func (d *RuleBasedDecomposer) Decompose(ctx context.Context, req *Request, sess *types.Session) ([]TaskSpec, error) {
	if len(req.Tasks) > 0 {
		for i, spec := range req.Tasks {
			if len(spec.Requirements) == 0 {
				return nil, types.NewError(types.ErrDecomposition,
					fmt.Sprintf("task %d has no requirements", i))
			}
		}
		return req.Tasks, nil
	}

	if len(req.Requirements) > 0 {
		return []TaskSpec{{
			Description:  req.Description,
			Requirements: req.Requirements,
			Payload:      req.Payload,
		}}, nil
	}

	return nil, types.NewError(types.ErrDecomposition,
		"request carries neither tasks nor requirements")
}

// modalDecomposer applies the configured operation mode. The mode changes
// how the plan is obtained and nothing else.
type modalDecomposer struct {
	mode      types.OperationMode
	rules     *RuleBasedDecomposer
	planner   Planner
	confirmer Confirmer
	logger    *zap.Logger
}

func (d *modalDecomposer) Decompose(ctx context.Context, req *Request, sess *types.Session) ([]TaskSpec, error) {
	switch d.mode {
	case types.ModeNoLLM:
		return d.rules.Decompose(ctx, req, sess)

	case types.ModeAssisted:
		specs, err := d.rules.Decompose(ctx, req, sess)
		if err != nil {
			return nil, err
		}
		if d.confirmer == nil {
			return nil, types.NewError(types.ErrDecomposition, "assisted mode requires a confirmer")
		}
		confirmed, err := d.confirmer.Confirm(ctx, specs)
		if err != nil {
			return nil, types.NewError(types.ErrDecomposition, "decomposition rejected").WithCause(err)
		}
		return confirmed, nil

	case types.ModeAgent:
		if d.planner == nil {
			return nil, types.NewError(types.ErrDecomposition, "agent mode requires a planner")
		}
		specs, err := d.planner.Plan(ctx, req, sess)
		if err != nil {
			return nil, types.NewError(types.ErrDecomposition, "planner failed").WithCause(err)
		}
		return specs, nil

	case types.ModeHybrid:
		if d.planner != nil {
			specs, err := d.planner.Plan(ctx, req, sess)
			if err == nil {
				return specs, nil
			}
			d.logger.Warn("planner failed, falling back to rules", zap.Error(err))
		}
		return d.rules.Decompose(ctx, req, sess)

	default:
		return nil, types.NewError(types.ErrDecomposition,
			fmt.Sprintf("unknown operation mode %q", d.mode))
	}
}

// buildTasks materializes specs into scheduled tasks.
func buildTasks(specs []TaskSpec) []*types.Task {
	now := time.Now()
	tasks := make([]*types.Task, 0, len(specs))
	for _, spec := range specs {
		tasks = append(tasks, &types.Task{
			ID:           uuid.NewString(),
			Description:  spec.Description,
			Requirements: append([]string(nil), spec.Requirements...),
			Payload:      spec.Payload.Clone(),
			Status:       types.TaskPending,
			CreatedAt:    now,
		})
	}
	return tasks
}
