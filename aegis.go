// Package aegis provides a top-level convenience entry point for running an
// in-process coordination pair: a gateway (capability registry and
// discovery) and a principal (orchestration) wired directly to it, with no
// HTTP transport between them.
//
// Usage:
//
//	import "github.com/aegisframework/aegis"
//
//	coord, err := aegis.New()
//	coord, err := aegis.New(aegis.WithConfig(cfg), aegis.WithLogger(logger))
//
// For the networked service with persistence, metrics, and auth, run the
// aegis command instead.
package aegis

import (
	"context"

	"go.uber.org/zap"

	"github.com/aegisframework/aegis/config"
	"github.com/aegisframework/aegis/gateway"
	"github.com/aegisframework/aegis/principal"
)

// Coordinator bundles a gateway and a principal sharing one process.
type Coordinator struct {
	Gateway   *gateway.Service
	Principal *principal.Principal
}

type options struct {
	cfg     *config.Config
	logger  *zap.Logger
	invoker principal.Invoker
	planner principal.Planner
}

// Option configures the coordinator created by [New].
type Option func(*options)

// WithConfig supplies a full configuration tree. Defaults are used
// otherwise.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger supplies the logger shared by both services.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithInvoker replaces the HTTP delegation transport, typically with an
// in-process invoker in tests or embedded deployments.
func WithInvoker(inv principal.Invoker) Option {
	return func(o *options) { o.invoker = inv }
}

// WithPlanner supplies the autonomous planner used by the agent and hybrid
// operation modes.
func WithPlanner(p principal.Planner) Option {
	return func(o *options) { o.planner = p }
}

// New creates an unstarted coordinator. Call [Coordinator.Start] before use.
func New(opts ...Option) (*Coordinator, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.invoker == nil {
		o.invoker = principal.NewHTTPInvoker(o.logger)
	}

	gw := gateway.NewService(o.cfg.Gateway, o.logger)

	var prOpts []principal.PrincipalOption
	if o.planner != nil {
		prOpts = append(prOpts, principal.WithPlanner(o.planner))
	}
	pr := principal.NewPrincipal(
		o.cfg.Principal,
		[]principal.Gateway{gw},
		o.invoker,
		o.logger,
		prOpts...,
	)

	return &Coordinator{Gateway: gw, Principal: pr}, nil
}

// Start brings up the gateway's background work (restore, revalidation).
func (c *Coordinator) Start(ctx context.Context) error {
	return c.Gateway.Start(ctx)
}

// Stop shuts down the gateway. The principal has no background work.
func (c *Coordinator) Stop() {
	c.Gateway.Stop()
}
