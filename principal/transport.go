package principal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/types"
)

// Invoker delivers one task to a resource endpoint and returns its result.
// Implementations map transport failures onto the runtime error taxonomy:
// TIMEOUT for deadline hits, REMOTE_ERROR for everything else.
type Invoker interface {
	Invoke(ctx context.Context, endpoint string, task *types.Task) (types.Document, error)
}

// invocation is the wire form of a delegated task.
type invocation struct {
	TaskID       string         `json:"task_id"`
	Description  string         `json:"description,omitempty"`
	Requirements []string       `json:"requirements"`
	Payload      types.Document `json:"payload,omitempty"`
}

// HTTPInvoker posts tasks to <endpoint>/invoke as JSON.
type HTTPInvoker struct {
	client *http.Client
	logger *zap.Logger
}

// NewHTTPInvoker creates an invoker. The per-call deadline comes from the
// caller's context; the client itself carries no timeout.
func NewHTTPInvoker(logger *zap.Logger) *HTTPInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPInvoker{
		client: &http.Client{},
		logger: logger.With(zap.String("component", "http_invoker")),
	}
}

func (i *HTTPInvoker) Invoke(ctx context.Context, endpoint string, task *types.Task) (types.Document, error) {
	body, err := json.Marshal(invocation{
		TaskID:       task.ID,
		Description:  task.Description,
		Requirements: task.Requirements,
		Payload:      task.Payload,
	})
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "failed to encode task").WithCause(err)
	}

	url := strings.TrimRight(endpoint, "/") + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrRemote, "invalid endpoint").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.NewError(types.ErrTimeout, "delegation timed out").WithRetryable(true)
		}
		return nil, types.NewError(types.ErrRemote, "delegation transport failed").
			WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, types.NewError(types.ErrRemote, "failed to read response").
			WithRetryable(true).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.NewError(types.ErrRemote,
			fmt.Sprintf("resource returned %d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	var result types.Document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, types.NewError(types.ErrRemote, "undecodable response body").WithCause(err)
		}
	}
	return result, nil
}

// delegationTimeout guards against a zero configuration value.
func delegationTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
