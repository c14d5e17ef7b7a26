package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	appcatalog "github.com/storegen/backend/internal/application/catalog"
	"github.com/storegen/backend/internal/domain/catalog"
	"github.com/storegen/backend/internal/domain/generation"
	"github.com/storegen/backend/internal/domain/shared"
	"github.com/storegen/backend/internal/domain/store"
	"github.com/storegen/backend/internal/infrastructure/assets"
	"github.com/storegen/backend/internal/infrastructure/cache"
	"github.com/storegen/backend/internal/infrastructure/deploy"
	"github.com/storegen/backend/internal/infrastructure/render"
	"github.com/storegen/backend/internal/infrastructure/seo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	products []catalog.Product
	err      error
}

func (r *stubRepo) FindActive(context.Context, catalog.Filter) ([]catalog.Product, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.products, nil
}

func (r *stubRepo) FindBrands(context.Context, []uuid.UUID) ([]catalog.Brand, error) {
	return nil, nil
}

func (r *stubRepo) FindCategories(context.Context) ([]catalog.Category, error) {
	return nil, nil
}

func (r *stubRepo) FindScores(context.Context, []uuid.UUID) ([]catalog.CompatibilityScore, error) {
	return nil, nil
}

type stubTranscoder struct{}

func (stubTranscoder) Transcode(_ context.Context, req assets.TranscodeRequest) (*assets.TranscodeResult, error) {
	return &assets.TranscodeResult{Payload: []byte("variant"), SourceBytes: 1000}, nil
}

type stubPublisher struct{}

func (stubPublisher) Publish(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "https://cdn.example.com/" + key, nil
}

func (stubPublisher) PublishMutable(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return "https://cdn.example.com/" + key, nil
}

func (stubPublisher) Invalidate(context.Context, string) error { return nil }

type stubDeployer struct {
	targetType store.TargetType
	pushErr    error
}

func (d *stubDeployer) Type() store.TargetType { return d.targetType }

func (d *stubDeployer) Push(_ context.Context, _ *deploy.Artifact, target store.DeploymentTarget) (string, error) {
	if d.pushErr != nil {
		return "", d.pushErr
	}
	return "https://deployed.example.com/" + target.Name, nil
}

func (d *stubDeployer) Verify(context.Context, string, store.DeploymentTarget) error {
	return nil
}

// capturingDeployer renders every page it is asked to push, the way the
// real deployers do, so tests can inspect the deployed HTML.
type capturingDeployer struct {
	targetType store.TargetType

	mu    sync.Mutex
	pages []string
}

func (d *capturingDeployer) Type() store.TargetType { return d.targetType }

func (d *capturingDeployer) Push(_ context.Context, artifact *deploy.Artifact, target store.DeploymentTarget) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range artifact.Structure.Pages {
		d.pages = append(d.pages, artifact.PageHTML(&artifact.Structure.Pages[i]))
	}
	return "https://deployed.example.com/" + target.Name, nil
}

func (d *capturingDeployer) Verify(context.Context, string, store.DeploymentTarget) error {
	return nil
}

func (d *capturingDeployer) deployedHTML() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.pages, "\n")
}

func catalogProducts(names ...string) []catalog.Product {
	products := make([]catalog.Product, 0, len(names))
	for _, name := range names {
		products = append(products, catalog.Product{
			ID:       uuid.New(),
			Name:     name,
			Slug:     name,
			Price:    decimal.NewFromInt(100),
			Currency: "USD",
			Status:   catalog.ProductStatusActive,
			Media: []catalog.ProductMedia{
				{ID: uuid.New(), URL: "https://img.example.com/" + name + ".jpg", Kind: catalog.MediaKindImage},
			},
		})
	}
	return products
}

type pipelineEnv struct {
	orchestrator *Orchestrator
	store        *MemoryJobStore
	done         chan generation.Snapshot
}

func newPipelineEnv(t *testing.T, repo *stubRepo, deployers []deploy.Deployer) *pipelineEnv {
	t.Helper()

	tiered := cache.NewTieredCache(cache.NewMemoryCache(1000, time.Hour), nil, nil)
	aggregator := appcatalog.NewAggregator(repo)
	engine := render.NewEngine(render.NewInMemoryTemplateStore(), render.WithCache(tiered))
	optimizer := assets.NewOptimizer(stubTranscoder{}, stubPublisher{}, tiered)
	synthesizer := seo.NewSynthesizer()
	gateway := deploy.NewGateway(deployers, deploy.GatewayConfig{})

	env := &pipelineEnv{
		store: NewMemoryJobStore(),
		done:  make(chan generation.Snapshot, 16),
	}
	env.orchestrator = NewOrchestrator(
		aggregator, engine, optimizer, synthesizer, gateway, env.store,
		Config{
			StoreName:      "Test Store",
			BaseURL:        "https://store.example.com",
			Workers:        2,
			QueueCapacity:  16,
			JobTimeout:     30 * time.Second,
			CallTimeout:    5 * time.Second,
			RetryAttempts:  2,
			RetryBaseDelay: time.Millisecond,
		},
		WithObserver(generation.ObserverFunc(func(_ context.Context, snap generation.Snapshot) {
			env.done <- snap
		})),
	)
	return env
}

func (e *pipelineEnv) waitTerminal(t *testing.T) generation.Snapshot {
	t.Helper()
	select {
	case snap := <-e.done:
		return snap
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the job to reach a terminal state")
		return generation.Snapshot{}
	}
}

func pipelineRequest(targets ...store.DeploymentTarget) generation.Request {
	return generation.Request{
		TemplateID:   render.DefaultTemplateID,
		Filter:       catalog.Filter{MaxProducts: 10},
		Optimization: generation.DefaultOptimizationConfig(),
		Targets:      targets,
		RequestedBy:  "tester",
	}
}

func staticTarget(name string) store.DeploymentTarget {
	return store.DeploymentTarget{Name: name, Type: store.TargetTypeStaticHost, Destination: "https://" + name + ".example.com"}
}

func TestPipelineSucceedsOnAllTargets(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones", "speaker")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost}},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	snap, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)
	assert.Equal(t, generation.StatusQueued, snap.Status)

	final := env.waitTerminal(t)
	assert.Equal(t, snap.ID, final.ID)
	assert.Equal(t, generation.StatusSucceeded, final.Status)
	require.Len(t, final.Results, 1)
	assert.True(t, final.Results[0].Succeeded())

	// home + listing + two product pages
	assert.Equal(t, 4, final.PageCount)

	structure, err := env.orchestrator.Structure(context.Background(), final.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, structure.Sitemap)
	require.NotNil(t, structure.PageByID("home").Meta)
}

func TestPipelineDeploysOptimizedAssetURLs(t *testing.T) {
	capturing := &capturingDeployer{targetType: store.TargetTypeStaticHost}
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones")},
		[]deploy.Deployer{capturing},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	_, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	final := env.waitTerminal(t)
	require.Equal(t, generation.StatusSucceeded, final.Status)

	// Deployed pages reference the published variants, never the raw
	// catalog media the optimizer just replaced.
	html := capturing.deployedHTML()
	require.NotEmpty(t, html)
	assert.Contains(t, html, "https://cdn.example.com/")
	assert.NotContains(t, html, "img.example.com")
}

func TestStructureUnavailableUntilRendered(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{err: errors.New("connection refused")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost}},
	)

	// Queued: rendering has not happened yet
	snap, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)
	_, err = env.orchestrator.Structure(context.Background(), snap.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	// A job that failed before rendering never gains a structure, even
	// once terminal.
	env.orchestrator.Start()
	defer env.orchestrator.Stop()
	final := env.waitTerminal(t)
	require.Equal(t, generation.StatusFailed, final.Status)

	_, err = env.orchestrator.Structure(context.Background(), final.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPipelinePartialSuccess(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones", "speaker", "cable")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost}},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	// Second target has no registered deployer, so only the first can land
	_, err := env.orchestrator.Submit(context.Background(), pipelineRequest(
		staticTarget("prod"),
		store.DeploymentTarget{Name: "theme", Type: store.TargetTypeThemePlatform, Destination: "shop.example.com"},
	))
	require.NoError(t, err)

	final := env.waitTerminal(t)
	assert.Equal(t, generation.StatusPartialSuccess, final.Status)
	require.Len(t, final.Results, 2)
	assert.Equal(t, store.DeploymentStateSucceeded, final.Results[0].State)
	assert.Equal(t, store.DeploymentStateFailed, final.Results[1].State)

	// The failed target is recorded on the job, not thrown away
	require.NotEmpty(t, final.Errors)
	assert.Equal(t, shared.ErrCodeDeployment, final.Errors[len(final.Errors)-1].Code)
	assert.Equal(t, 5, final.PageCount, "pages exist even though one target failed")
}

func TestPipelineFailsWhenNoTargetLands(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost, pushErr: errors.New("host down")}},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	_, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	final := env.waitTerminal(t)
	assert.Equal(t, generation.StatusFailed, final.Status)
}

func TestPipelineZeroProducts(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost}},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	req := pipelineRequest(staticTarget("prod"))
	req.Filter.MaxProducts = 0

	_, err := env.orchestrator.Submit(context.Background(), req)
	require.NoError(t, err)

	// A zero-product store is a valid request: structural pages only
	final := env.waitTerminal(t)
	assert.Equal(t, generation.StatusSucceeded, final.Status)
	assert.Equal(t, 2, final.PageCount)
}

func TestPipelineAggregationFailure(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{err: errors.New("connection refused")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost}},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	_, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	final := env.waitTerminal(t)
	assert.Equal(t, generation.StatusFailed, final.Status)
	require.NotEmpty(t, final.Errors)
	assert.Equal(t, shared.ErrCodeAggregation, final.Errors[len(final.Errors)-1].Code)
	// The retryable failure was attempted more than once before giving up
	assert.GreaterOrEqual(t, len(final.Errors), 2)
}

func TestPipelineTemplateNotFound(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost}},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	req := pipelineRequest(staticTarget("prod"))
	req.TemplateID = "missing"

	_, err := env.orchestrator.Submit(context.Background(), req)
	require.NoError(t, err)

	final := env.waitTerminal(t)
	assert.Equal(t, generation.StatusFailed, final.Status)
	require.NotEmpty(t, final.Errors)
	assert.Equal(t, shared.ErrCodeTemplateNotFound, final.Errors[0].Code)
}

func TestSubmitDeduplicatesByFingerprint(t *testing.T) {
	// Not started: submitted jobs stay queued, i.e. active for dedup
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost}},
	)

	first, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	second, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "identical active request dedups onto the same job")

	// Targets are excluded from the fingerprint: a different destination
	// still dedups.
	third, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("other")))
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)

	// A semantically different request gets its own job
	req := pipelineRequest(staticTarget("prod"))
	req.Filter.MaxProducts = 5
	fourth, err := env.orchestrator.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fourth.ID)
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	env := newPipelineEnv(t, &stubRepo{}, nil)

	req := pipelineRequest(staticTarget("prod"))
	req.TemplateID = ""
	_, err := env.orchestrator.Submit(context.Background(), req)
	require.Error(t, err)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.ErrCodeValidation, domainErr.Code)
}

func TestSubmitQueueFull(t *testing.T) {
	env := newPipelineEnv(t, &stubRepo{}, nil)
	env.orchestrator.queue = make(chan *generation.Job, 1)

	_, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	req := pipelineRequest(staticTarget("prod"))
	req.Filter.MaxProducts = 5
	_, err = env.orchestrator.Submit(context.Background(), req)
	require.Error(t, err)

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, shared.ErrCodeQueueFull, domainErr.Code)

	// The rejected job leaves no record behind
	snaps, err := env.orchestrator.List(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestCancelQueuedJob(t *testing.T) {
	env := newPipelineEnv(t, &stubRepo{}, nil)

	snap, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	cancelled, err := env.orchestrator.Cancel(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, generation.StatusCancelled, cancelled.Status)

	// Observers hear about the immediate cancellation
	final := env.waitTerminal(t)
	assert.Equal(t, generation.StatusCancelled, final.Status)

	_, err = env.orchestrator.Cancel(context.Background(), snap.ID)
	assert.Error(t, err, "cancelling a terminal job is rejected")
}

func TestRetryResubmitsFailedJob(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost, pushErr: errors.New("host down")}},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	snap, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	final := env.waitTerminal(t)
	require.Equal(t, generation.StatusFailed, final.Status)

	retried, err := env.orchestrator.Retry(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.NotEqual(t, snap.ID, retried.ID, "retry creates a fresh job")
	assert.Equal(t, snap.Fingerprint, retried.Fingerprint)

	env.waitTerminal(t)
}

func TestRetryRejectsActiveJob(t *testing.T) {
	env := newPipelineEnv(t, &stubRepo{}, nil)

	snap, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	_, err = env.orchestrator.Retry(context.Background(), snap.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
}

func TestPurgeRejectsActiveJob(t *testing.T) {
	env := newPipelineEnv(t, &stubRepo{}, nil)

	snap, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	assert.ErrorIs(t, env.orchestrator.Purge(context.Background(), snap.ID), shared.ErrInvalidState)
}

func TestPurgeRemovesTerminalJob(t *testing.T) {
	env := newPipelineEnv(t,
		&stubRepo{products: catalogProducts("headphones")},
		[]deploy.Deployer{&stubDeployer{targetType: store.TargetTypeStaticHost}},
	)
	env.orchestrator.Start()
	defer env.orchestrator.Stop()

	snap, err := env.orchestrator.Submit(context.Background(), pipelineRequest(staticTarget("prod")))
	require.NoError(t, err)

	env.waitTerminal(t)
	require.NoError(t, env.orchestrator.Purge(context.Background(), snap.ID))

	_, err = env.orchestrator.Status(context.Background(), snap.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
