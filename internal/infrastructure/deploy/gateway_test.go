package deploy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDeployer struct {
	targetType store.TargetType
	pushErr    error
	verifyErr  error
	delay      time.Duration

	mu        sync.Mutex
	pushes    int
	inFlight  int32
	maxFlight int32
}

func (f *fakeDeployer) Type() store.TargetType { return f.targetType }

func (f *fakeDeployer) Push(ctx context.Context, _ *Artifact, target store.DeploymentTarget) (string, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxFlight, max, cur) {
			break
		}
	}

	f.mu.Lock()
	f.pushes++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.pushErr != nil {
		return "", f.pushErr
	}
	return "https://deployed.example.com/" + target.Name, nil
}

func (f *fakeDeployer) Verify(context.Context, string, store.DeploymentTarget) error {
	return f.verifyErr
}

func (f *fakeDeployer) pushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes
}

func testArtifact() *Artifact {
	structure := store.NewStoreStructure(uuid.New(), "classic", "1.0.0")
	structure.AddPage(store.Page{ID: "home", Type: store.PageTypeHome, Path: "/", Title: "Test"})
	return &Artifact{Structure: structure}
}

func TestGatewayDeployIsolatesTargetFailures(t *testing.T) {
	static := &fakeDeployer{targetType: store.TargetTypeStaticHost}
	object := &fakeDeployer{targetType: store.TargetTypeObjectStorage, pushErr: errors.New("bucket denied")}

	gw := NewGateway([]Deployer{static, object}, GatewayConfig{})
	targets := []store.DeploymentTarget{
		{Name: "prod-a", Type: store.TargetTypeStaticHost, Destination: "https://a.example.com"},
		{Name: "prod-b", Type: store.TargetTypeObjectStorage, Destination: "stores/b"},
		{Name: "prod-c", Type: store.TargetTypeStaticHost, Destination: "https://c.example.com"},
	}

	results := gw.Deploy(context.Background(), testArtifact(), targets)
	require.Len(t, results, 3, "exactly one result per target")

	assert.Equal(t, "prod-a", results[0].Target)
	assert.Equal(t, store.DeploymentStateSucceeded, results[0].State)
	assert.NotEmpty(t, results[0].URL)
	assert.False(t, results[0].FinishedAt.IsZero())

	assert.Equal(t, "prod-b", results[1].Target)
	assert.Equal(t, store.DeploymentStateFailed, results[1].State)
	assert.Contains(t, results[1].Detail, "bucket denied")

	assert.Equal(t, store.DeploymentStateSucceeded, results[2].State)
}

func TestGatewayUnregisteredTargetType(t *testing.T) {
	gw := NewGateway([]Deployer{&fakeDeployer{targetType: store.TargetTypeStaticHost}}, GatewayConfig{})

	results := gw.Deploy(context.Background(), testArtifact(), []store.DeploymentTarget{
		{Name: "theme", Type: store.TargetTypeThemePlatform, Destination: "shop.example.com"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, store.DeploymentStateFailed, results[0].State)
	assert.Contains(t, results[0].Detail, "no deployer registered")
}

func TestGatewayVerificationFailureFailsTarget(t *testing.T) {
	d := &fakeDeployer{targetType: store.TargetTypeStaticHost, verifyErr: errors.New("got 404")}
	gw := NewGateway([]Deployer{d}, GatewayConfig{})

	results := gw.Deploy(context.Background(), testArtifact(), []store.DeploymentTarget{
		{Name: "prod", Type: store.TargetTypeStaticHost, Destination: "https://a.example.com"},
	})
	require.Len(t, results, 1)
	assert.Equal(t, store.DeploymentStateFailed, results[0].State)
	assert.Contains(t, results[0].Detail, "verification failed")
}

func TestGatewayBreakerShortCircuits(t *testing.T) {
	d := &fakeDeployer{targetType: store.TargetTypeStaticHost, pushErr: errors.New("host down")}
	gw := NewGateway([]Deployer{d}, GatewayConfig{BreakerThreshold: 2, BreakerCooldown: time.Hour})

	target := []store.DeploymentTarget{
		{Name: "prod", Type: store.TargetTypeStaticHost, Destination: "https://a.example.com"},
	}

	gw.Deploy(context.Background(), testArtifact(), target)
	gw.Deploy(context.Background(), testArtifact(), target)
	require.Equal(t, 2, d.pushCount())

	// The breaker is open: the third attempt is rejected without
	// touching the target.
	results := gw.Deploy(context.Background(), testArtifact(), target)
	assert.Equal(t, store.DeploymentStateFailed, results[0].State)
	assert.Contains(t, results[0].Detail, "circuit breaker open")
	assert.Equal(t, 2, d.pushCount())
}

func TestGatewayBreakerIsPerTarget(t *testing.T) {
	d := &fakeDeployer{targetType: store.TargetTypeStaticHost, pushErr: errors.New("host down")}
	gw := NewGateway([]Deployer{d}, GatewayConfig{BreakerThreshold: 1, BreakerCooldown: time.Hour})

	gw.Deploy(context.Background(), testArtifact(), []store.DeploymentTarget{
		{Name: "prod-a", Type: store.TargetTypeStaticHost, Destination: "https://a.example.com"},
	})

	// prod-a's breaker is open, but prod-b still gets its attempt
	results := gw.Deploy(context.Background(), testArtifact(), []store.DeploymentTarget{
		{Name: "prod-a", Type: store.TargetTypeStaticHost, Destination: "https://a.example.com"},
		{Name: "prod-b", Type: store.TargetTypeStaticHost, Destination: "https://b.example.com"},
	})
	assert.Contains(t, results[0].Detail, "circuit breaker open")
	assert.Contains(t, results[1].Detail, "host down")
}

func TestGatewayCapsConcurrencyPerType(t *testing.T) {
	d := &fakeDeployer{targetType: store.TargetTypeStaticHost, delay: 20 * time.Millisecond}
	gw := NewGateway([]Deployer{d}, GatewayConfig{TargetConcurrency: 1})

	targets := []store.DeploymentTarget{
		{Name: "a", Type: store.TargetTypeStaticHost, Destination: "https://a.example.com"},
		{Name: "b", Type: store.TargetTypeStaticHost, Destination: "https://b.example.com"},
		{Name: "c", Type: store.TargetTypeStaticHost, Destination: "https://c.example.com"},
	}

	results := gw.Deploy(context.Background(), testArtifact(), targets)
	for _, r := range results {
		assert.Equal(t, store.DeploymentStateSucceeded, r.State)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&d.maxFlight))
}
