package deploy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/storegen/backend/internal/domain/store"
	"go.uber.org/zap"
)

// GatewayConfig holds the gateway's resource limits
type GatewayConfig struct {
	TargetConcurrency int           // concurrent deploys per target type
	VerifyTimeout     time.Duration // budget for the post-upload check
	BreakerThreshold  int           // consecutive failures before a target's breaker opens
	BreakerCooldown   time.Duration // open duration before half-open
}

func (c *GatewayConfig) applyDefaults() {
	if c.TargetConcurrency < 1 {
		c.TargetConcurrency = 3
	}
	if c.VerifyTimeout == 0 {
		c.VerifyTimeout = 15 * time.Second
	}
	if c.BreakerThreshold < 1 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown == 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// Gateway fans an artifact out to the configured deployment targets.
// Targets deploy concurrently under a per-type concurrency cap; each
// named target is guarded by its own circuit breaker. Results are
// append-only, one per target.
type Gateway struct {
	deployers map[store.TargetType]Deployer
	config    GatewayConfig
	logger    *zap.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	slots    map[store.TargetType]chan struct{}
}

// GatewayOption configures the gateway
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the logger for the gateway
func WithGatewayLogger(logger *zap.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// NewGateway creates a deployment gateway over the given deployers
func NewGateway(deployers []Deployer, cfg GatewayConfig, opts ...GatewayOption) *Gateway {
	cfg.applyDefaults()
	g := &Gateway{
		deployers: make(map[store.TargetType]Deployer, len(deployers)),
		config:    cfg,
		logger:    zap.NewNop(),
		breakers:  make(map[string]*CircuitBreaker),
		slots:     make(map[store.TargetType]chan struct{}),
	}
	for _, d := range deployers {
		g.deployers[d.Type()] = d
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Deploy ships the artifact to every target concurrently and returns
// exactly one result per target, in target order. A failure on one
// target never aborts or invalidates the others.
func (g *Gateway) Deploy(ctx context.Context, artifact *Artifact, targets []store.DeploymentTarget) []store.DeploymentResult {
	results := make([]store.DeploymentResult, len(targets))
	var wg sync.WaitGroup

	for i := range targets {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = g.deployOne(ctx, artifact, targets[idx])
		}(i)
	}
	wg.Wait()
	return results
}

// deployOne walks one target through the deployment state machine:
// pending -> uploading -> verifying -> succeeded|failed.
func (g *Gateway) deployOne(ctx context.Context, artifact *Artifact, target store.DeploymentTarget) store.DeploymentResult {
	result := store.DeploymentResult{
		Target:    target.Name,
		Type:      target.Type,
		State:     store.DeploymentStatePending,
		StartedAt: time.Now().UTC(),
	}

	fail := func(detail string) store.DeploymentResult {
		result.State = store.DeploymentStateFailed
		result.Detail = detail
		result.FinishedAt = time.Now().UTC()
		g.logger.Warn("Deployment failed",
			zap.String("target", target.Name),
			zap.String("type", string(target.Type)),
			zap.String("detail", detail),
		)
		return result
	}

	deployer, ok := g.deployers[target.Type]
	if !ok {
		return fail(fmt.Sprintf("no deployer registered for target type %q", target.Type))
	}

	breaker := g.breakerFor(target.Name)
	if !breaker.Allow() {
		return fail("circuit breaker open: target is cooling down after repeated failures")
	}

	release, err := g.acquireSlot(ctx, target.Type)
	if err != nil {
		return fail("cancelled while waiting for a deploy slot")
	}
	defer release()

	result.State = store.DeploymentStateUploading
	url, err := deployer.Push(ctx, artifact, target)
	if err != nil {
		breaker.Failure()
		return fail(err.Error())
	}
	result.URL = url

	result.State = store.DeploymentStateVerifying
	verifyCtx, cancel := context.WithTimeout(ctx, g.config.VerifyTimeout)
	defer cancel()
	if err := deployer.Verify(verifyCtx, url, target); err != nil {
		breaker.Failure()
		return fail("verification failed: " + err.Error())
	}

	breaker.Success()
	result.State = store.DeploymentStateSucceeded
	result.FinishedAt = time.Now().UTC()
	g.logger.Info("Deployment succeeded",
		zap.String("target", target.Name),
		zap.String("type", string(target.Type)),
		zap.String("url", url),
	)
	return result
}

// breakerFor returns the breaker guarding one named target
func (g *Gateway) breakerFor(name string) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[name]
	if !ok {
		b = NewCircuitBreaker(g.config.BreakerThreshold, g.config.BreakerCooldown)
		g.breakers[name] = b
	}
	return b
}

// acquireSlot blocks until a concurrency slot for the target type is
// free, or the context is done.
func (g *Gateway) acquireSlot(ctx context.Context, t store.TargetType) (func(), error) {
	g.mu.Lock()
	slot, ok := g.slots[t]
	if !ok {
		slot = make(chan struct{}, g.config.TargetConcurrency)
		g.slots[t] = slot
	}
	g.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
