// Package generation is the application-level front door of the store
// generation pipeline: it owns the job queue, sequences the pipeline
// stages per job, and keeps the partial-failure bookkeeping.
package generation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	appcatalog "github.com/storegen/backend/internal/application/catalog"
	"github.com/storegen/backend/internal/domain/catalog"
	"github.com/storegen/backend/internal/domain/generation"
	"github.com/storegen/backend/internal/domain/shared"
	"github.com/storegen/backend/internal/domain/store"
	"github.com/storegen/backend/internal/infrastructure/assets"
	"github.com/storegen/backend/internal/infrastructure/deploy"
	"github.com/storegen/backend/internal/infrastructure/render"
	"github.com/storegen/backend/internal/infrastructure/seo"
	"go.uber.org/zap"
)

// Config holds the orchestrator's queue and retry settings
type Config struct {
	StoreName      string        // display name carried into rendering and SEO
	BaseURL        string        // canonical base URL of the generated store
	Workers        int           // bounded worker concurrency
	QueueCapacity  int           // queued-job buffer size
	JobTimeout     time.Duration // overall per-job budget
	CallTimeout    time.Duration // per stage-call budget
	RetryAttempts  int           // max attempts for retryable stage errors
	RetryBaseDelay time.Duration // initial backoff delay
	JobRetention   time.Duration // how long terminal jobs stay queryable
}

func (c *Config) applyDefaults() {
	if c.Workers < 1 {
		c.Workers = 4
	}
	if c.QueueCapacity < 1 {
		c.QueueCapacity = 100
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = 5 * time.Minute
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = time.Second
	}
	if c.JobRetention == 0 {
		c.JobRetention = 24 * time.Hour
	}
}

// Orchestrator sequences the pipeline stages for each submitted job:
// aggregation, render, optimize, SEO, deploy. Jobs run on a bounded
// worker pool; identical in-flight requests are deduplicated by
// fingerprint so only one aggregation+render pass executes.
type Orchestrator struct {
	aggregator  *appcatalog.Aggregator
	engine      *render.Engine
	optimizer   *assets.Optimizer
	synthesizer *seo.Synthesizer
	gateway     *deploy.Gateway
	jobs        generation.JobStore
	config      Config
	logger      *zap.Logger
	observers   []generation.Observer

	queue chan *generation.Job
	wg    sync.WaitGroup
	stop  chan struct{}

	submitMu sync.Mutex
	stopOnce sync.Once
}

// Option configures the orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger for the orchestrator
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithObserver registers an observer notified after each job reaches a
// terminal state. Observers are invoked in registration order.
func WithObserver(obs generation.Observer) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, obs)
	}
}

// NewOrchestrator wires the pipeline stages behind the job queue
func NewOrchestrator(
	aggregator *appcatalog.Aggregator,
	engine *render.Engine,
	optimizer *assets.Optimizer,
	synthesizer *seo.Synthesizer,
	gateway *deploy.Gateway,
	jobs generation.JobStore,
	cfg Config,
	opts ...Option,
) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		aggregator:  aggregator,
		engine:      engine,
		optimizer:   optimizer,
		synthesizer: synthesizer,
		gateway:     gateway,
		jobs:        jobs,
		config:      cfg,
		logger:      zap.NewNop(),
		queue:       make(chan *generation.Job, cfg.QueueCapacity),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the worker pool and the retention sweeper
func (o *Orchestrator) Start() {
	for i := 0; i < o.config.Workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
	o.wg.Add(1)
	go o.sweeper()
	o.logger.Info("Generation orchestrator started",
		zap.Int("workers", o.config.Workers),
		zap.Int("queue_capacity", o.config.QueueCapacity),
	)
}

// Stop drains the workers. Queued jobs that have not started remain
// queued in the store; no new stage work begins after Stop returns.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	o.wg.Wait()
	o.logger.Info("Generation orchestrator stopped")
}

func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()
	for {
		select {
		case <-o.stop:
			return
		case job := <-o.queue:
			o.run(job)
		}
	}
}

// sweeper periodically purges terminal jobs past the retention window
func (o *Orchestrator) sweeper() {
	defer o.wg.Done()
	sweeper, ok := o.jobs.(interface {
		DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error)
	})
	if !ok {
		return
	}
	interval := o.config.JobRetention / 10
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-o.config.JobRetention)
			if removed, err := sweeper.DeleteFinishedBefore(context.Background(), cutoff); err == nil && removed > 0 {
				o.logger.Debug("Purged expired jobs", zap.Int("removed", removed))
			}
		}
	}
}

// Submit validates the request, deduplicates it against in-flight jobs
// by fingerprint, enqueues a new job, and returns immediately. When an
// active job with the same fingerprint exists, its snapshot is returned
// instead of creating a second job.
func (o *Orchestrator) Submit(ctx context.Context, req generation.Request) (generation.Snapshot, error) {
	if len(req.Optimization.Formats) == 0 && len(req.Optimization.Breakpoints) == 0 {
		req.Optimization = generation.DefaultOptimizationConfig()
	}
	if err := req.Validate(); err != nil {
		return generation.Snapshot{}, err
	}

	fingerprint := generation.Fingerprint(&req)

	// The lock covers lookup plus insert so two identical concurrent
	// submissions cannot both miss the dedup check.
	o.submitMu.Lock()
	defer o.submitMu.Unlock()

	if existing, err := o.jobs.FindActiveByFingerprint(ctx, fingerprint); err == nil {
		o.logger.Info("Submission deduplicated onto active job",
			zap.String("job_id", existing.ID.String()),
			zap.String("fingerprint", fingerprint),
		)
		return existing.Snapshot(), nil
	}

	job := generation.NewJob(req, fingerprint)
	if err := o.jobs.Save(ctx, job); err != nil {
		return generation.Snapshot{}, err
	}

	select {
	case o.queue <- job:
	default:
		_ = o.jobs.Delete(ctx, job.ID)
		return generation.Snapshot{}, shared.NewDomainError(shared.ErrCodeQueueFull, "Generation queue is at capacity")
	}

	o.logger.Info("Job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("template", req.TemplateID),
		zap.String("fingerprint", fingerprint),
		zap.Int("targets", len(req.Targets)),
	)
	return job.Snapshot(), nil
}

// Status returns a coherent snapshot of the job, including partial
// results already available while other parts are still running.
func (o *Orchestrator) Status(ctx context.Context, id uuid.UUID) (generation.Snapshot, error) {
	job, err := o.jobs.FindByID(ctx, id)
	if err != nil {
		return generation.Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// Cancel requests best-effort cancellation: no new stage work starts,
// in-flight stage calls drain, and their results are discarded.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) (generation.Snapshot, error) {
	job, err := o.jobs.FindByID(ctx, id)
	if err != nil {
		return generation.Snapshot{}, err
	}
	if err := job.RequestCancel(); err != nil {
		return generation.Snapshot{}, err
	}
	snap := job.Snapshot()
	if snap.Status == generation.StatusCancelled {
		o.notify(snap)
	}
	o.logger.Info("Job cancellation requested", zap.String("job_id", id.String()))
	return snap, nil
}

// Retry resubmits the request of a terminal, unsuccessful job as a
// fresh job. The original record is left untouched.
func (o *Orchestrator) Retry(ctx context.Context, id uuid.UUID) (generation.Snapshot, error) {
	job, err := o.jobs.FindByID(ctx, id)
	if err != nil {
		return generation.Snapshot{}, err
	}
	snap := job.Snapshot()
	switch snap.Status {
	case generation.StatusFailed, generation.StatusPartialSuccess, generation.StatusCancelled:
		return o.Submit(ctx, snap.Request)
	default:
		return generation.Snapshot{}, shared.ErrInvalidState
	}
}

// List returns snapshots of up to limit jobs, newest first
func (o *Orchestrator) List(ctx context.Context, status generation.Status, limit int) ([]generation.Snapshot, error) {
	jobs, err := o.jobs.List(ctx, status, limit)
	if err != nil {
		return nil, err
	}
	snaps := make([]generation.Snapshot, 0, len(jobs))
	for _, job := range jobs {
		snaps = append(snaps, job.Snapshot())
	}
	return snaps, nil
}

// Purge deletes a terminal job record
func (o *Orchestrator) Purge(ctx context.Context, id uuid.UUID) error {
	job, err := o.jobs.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.CurrentStatus().Terminal() {
		return shared.ErrInvalidState
	}
	return o.jobs.Delete(ctx, id)
}

// Structure returns the rendered structure of a job once rendering has
// completed. A job that has not rendered yet, or that failed before
// rendering, has no structure to return.
func (o *Orchestrator) Structure(ctx context.Context, id uuid.UUID) (*store.StoreStructure, error) {
	job, err := o.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	structure := job.RenderedStructure()
	if structure == nil {
		return nil, shared.ErrInvalidState
	}
	return structure, nil
}

// run executes the stage sequence for one job under the job's overall
// time budget. Cancellation is checked between stages; in-flight stage
// calls are never forcibly aborted, their results are just discarded.
func (o *Orchestrator) run(job *generation.Job) {
	if job.CancelRequested() {
		job.MarkCancelled()
		o.finish(job)
		return
	}
	if err := job.Start(); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.config.JobTimeout)
	defer cancel()

	logger := o.logger.With(zap.String("job_id", job.ID.String()))
	logger.Info("Job started", zap.Int("attempt", job.Snapshot().Attempts))

	o.execute(ctx, job, logger)

	if ctx.Err() != nil && !job.CurrentStatus().Terminal() {
		job.FailTimeout()
	}
	o.finish(job)
}

func (o *Orchestrator) execute(ctx context.Context, job *generation.Job, logger *zap.Logger) {
	req := job.Request

	// Aggregation: snapshot-at-start. The product set is read once here
	// and carried through the rest of the job untouched by later
	// catalog writes.
	var products []catalog.EnhancedProduct
	err := o.withRetry(ctx, job, generation.StageAggregation, func(callCtx context.Context) error {
		var ferr error
		products, ferr = o.aggregator.Fetch(callCtx, req.Filter)
		return ferr
	})
	if err != nil {
		o.failStage(job, generation.StageAggregation, shared.ErrCodeAggregation, err)
		return
	}
	job.SetProgress(generation.StageAggregation, len(products), len(products))
	if o.cancelled(job) {
		return
	}

	// Render: template failures are fatal and never retried.
	structure, err := o.engine.Render(ctx, &render.Request{
		JobID:      job.ID,
		TemplateID: req.TemplateID,
		StoreName:  o.config.StoreName,
		BaseURL:    o.config.BaseURL,
		Products:   products,
	})
	if err != nil {
		o.failStage(job, generation.StageRender, shared.ErrCodeTemplateValidation, err)
		return
	}
	job.SetStructure(structure)
	job.SetProgress(generation.StageRender, len(structure.Pages), len(structure.Pages))
	if o.cancelled(job) {
		return
	}

	// Optimize: per-asset failures are recorded on the job, not fatal.
	optimized, issues, err := o.optimizer.Optimize(ctx, structure.Assets, req.Optimization)
	if err != nil {
		o.failStage(job, generation.StageOptimize, shared.ErrCodeAssetProcessing, err)
		return
	}
	assets.SortIssues(issues)
	for _, issue := range issues {
		job.RecordError(generation.StageOptimize, shared.ErrCodeAssetProcessing,
			"Asset "+issue.AssetID+": "+issue.Message)
	}
	job.SetProgress(generation.StageOptimize, len(optimized), len(structure.Assets))
	if o.cancelled(job) {
		return
	}

	// SEO: a pure, deterministic transform over the rendered pages.
	if err := o.synthesizer.Annotate(structure, products, seo.Config{StoreName: o.config.StoreName}); err != nil {
		o.failStage(job, generation.StageSEO, shared.ErrCodeValidation, err)
		return
	}
	job.SetProgress(generation.StageSEO, len(structure.Pages), len(structure.Pages))
	if o.cancelled(job) {
		return
	}

	// Deploy: fan out to all targets; per-target failures shape the
	// terminal state instead of aborting the others.
	results := o.gateway.Deploy(ctx, &deploy.Artifact{Structure: structure, Assets: optimized}, req.Targets)
	for i := range results {
		if !results[i].Succeeded() {
			job.RecordError(generation.StageDeploy, shared.ErrCodeDeployment,
				"Target "+results[i].Target+": "+results[i].Detail)
		}
	}
	job.SetProgress(generation.StageDeploy, succeededCount(results), len(results))
	job.CompleteDeployment(results)

	logger.Info("Job finished",
		zap.String("status", string(job.CurrentStatus())),
		zap.Int("pages", len(structure.Pages)),
		zap.Int("targets_succeeded", succeededCount(results)),
		zap.Int("targets_total", len(results)),
	)
}

// withRetry runs one stage call with a per-call timeout and exponential
// backoff for retryable errors, up to the configured attempt limit.
func (o *Orchestrator) withRetry(ctx context.Context, job *generation.Job, stage generation.Stage, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.config.RetryBaseDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(o.config.RetryAttempts-1)), ctx)

	return backoff.Retry(func() error {
		if job.CancelRequested() {
			return backoff.Permanent(context.Canceled)
		}
		callCtx, cancel := context.WithTimeout(ctx, o.config.CallTimeout)
		defer cancel()

		err := op(callCtx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		job.RecordError(stage, errorCode(err, shared.ErrCodeTimeout), err.Error())
		o.logger.Warn("Retryable stage error",
			zap.String("job_id", job.ID.String()),
			zap.String("stage", string(stage)),
			zap.Error(err),
		)
		return err
	}, policy)
}

func (o *Orchestrator) failStage(job *generation.Job, stage generation.Stage, fallbackCode string, err error) {
	if errors.Is(err, context.Canceled) && job.CancelRequested() {
		job.MarkCancelled()
		return
	}
	job.Fail(stage, errorCode(err, fallbackCode), err.Error())
}

// cancelled transitions the job if cancellation was requested between
// stages.
func (o *Orchestrator) cancelled(job *generation.Job) bool {
	if job.CancelRequested() {
		job.MarkCancelled()
		return true
	}
	return job.CurrentStatus().Terminal()
}

// finish persists the terminal job and notifies observers exactly once
func (o *Orchestrator) finish(job *generation.Job) {
	_ = o.jobs.Save(context.Background(), job)
	if job.CurrentStatus().Terminal() {
		o.notify(job.Snapshot())
	}
}

func (o *Orchestrator) notify(snap generation.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, obs := range o.observers {
		obs.JobFinished(ctx, snap)
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var derr *shared.DomainError
	if errors.As(err, &derr) {
		return shared.Retryable(derr.Code)
	}
	return false
}

func errorCode(err error, fallback string) string {
	var derr *shared.DomainError
	if errors.As(err, &derr) {
		return derr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return shared.ErrCodeTimeout
	}
	return fallback
}

func succeededCount(results []store.DeploymentResult) int {
	n := 0
	for i := range results {
		if results[i].Succeeded() {
			n++
		}
	}
	return n
}
