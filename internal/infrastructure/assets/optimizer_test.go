package assets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/storegen/backend/internal/domain/generation"
	"github.com/storegen/backend/internal/domain/store"
	"github.com/storegen/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscoder struct {
	mu       sync.Mutex
	calls    int
	failURLs map[string]bool
}

func (f *fakeTranscoder) Transcode(_ context.Context, req TranscodeRequest) (*TranscodeResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failURLs[req.SourceURL] {
		return nil, errors.New("source fetch failed")
	}
	return &TranscodeResult{
		Payload:     []byte("0123456789"),
		SourceBytes: 100,
		ContentType: contentTypeFor(req.Format),
	}, nil
}

func (f *fakeTranscoder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][]byte
	failing   bool
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{published: make(map[string][]byte)}
}

func (f *fakePublisher) Publish(_ context.Context, key string, payload []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return "", errors.New("storage unavailable")
	}
	f.published[key] = payload
	return "https://cdn.example.com/" + key, nil
}

func (f *fakePublisher) PublishMutable(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	return f.Publish(ctx, key, payload, contentType)
}

func (f *fakePublisher) Invalidate(context.Context, string) error {
	return nil
}

func testCache() *cache.TieredCache {
	return cache.NewTieredCache(cache.NewMemoryCache(1000, time.Hour), nil, nil)
}

func testOptConfig() generation.OptimizationConfig {
	return generation.OptimizationConfig{
		Formats:          []string{generation.FormatWebP, generation.FormatJPEG},
		Breakpoints:      []int{320, 640},
		Quality:          80,
		Placeholder:      true,
		PlaceholderWidth: 32,
	}
}

func TestOptimizeBuildsVariantMatrix(t *testing.T) {
	transcoder := &fakeTranscoder{}
	publisher := newFakePublisher()
	opt := NewOptimizer(transcoder, publisher, testCache())

	asset := store.NewAsset("https://img.example.com/a.jpg", store.AssetKindImage, "a")
	results, issues, err := opt.Optimize(context.Background(), []store.Asset{asset}, testOptConfig())
	require.NoError(t, err)
	require.Empty(t, issues)
	require.Len(t, results, 1)

	// 2 formats x 2 breakpoints, plus one placeholder
	require.Len(t, results[0].Variants, 5)

	placeholders := 0
	for _, v := range results[0].Variants {
		assert.NotEmpty(t, v.URL)
		assert.NotEmpty(t, v.Key)
		if v.Kind == store.VariantKindPlaceholder {
			placeholders++
			assert.Equal(t, 32, v.Width)
		}
	}
	assert.Equal(t, 1, placeholders)

	stats := opt.Stats()
	assert.Equal(t, int64(5), stats.VariantsBuilt)
	assert.Equal(t, int64(0), stats.VariantsReused)
	assert.Len(t, publisher.published, 5)
}

func TestOptimizeFormatsApplyByKind(t *testing.T) {
	transcoder := &fakeTranscoder{}
	opt := NewOptimizer(transcoder, newFakePublisher(), testCache())

	video := store.NewAsset("https://img.example.com/v.mp4", store.AssetKindVideo, "")
	cfg := generation.OptimizationConfig{
		Formats:          []string{generation.FormatWebP, generation.FormatMP4},
		Breakpoints:      []int{640},
		Quality:          80,
		Placeholder:      true,
		PlaceholderWidth: 32,
	}

	results, issues, err := opt.Optimize(context.Background(), []store.Asset{video}, cfg)
	require.NoError(t, err)
	require.Empty(t, issues)
	require.Len(t, results, 1)

	// Only the video format applies, and videos get no placeholder
	require.Len(t, results[0].Variants, 1)
	assert.Equal(t, generation.FormatMP4, results[0].Variants[0].Format)
	assert.Equal(t, store.VariantKindResponsive, results[0].Variants[0].Kind)
}

func TestOptimizeNoApplicableFormat(t *testing.T) {
	opt := NewOptimizer(&fakeTranscoder{}, newFakePublisher(), testCache())

	video := store.NewAsset("https://img.example.com/v.mp4", store.AssetKindVideo, "")
	cfg := generation.OptimizationConfig{
		Formats:     []string{generation.FormatWebP},
		Breakpoints: []int{640},
		Quality:     80,
	}

	results, issues, err := opt.Optimize(context.Background(), []store.Asset{video}, cfg)
	require.NoError(t, err)
	assert.Empty(t, results)
	require.Len(t, issues, 1)
	assert.Equal(t, video.ID, issues[0].AssetID)
}

func TestOptimizeReusesCachedVariants(t *testing.T) {
	transcoder := &fakeTranscoder{}
	opt := NewOptimizer(transcoder, newFakePublisher(), testCache())

	asset := store.NewAsset("https://img.example.com/a.jpg", store.AssetKindImage, "a")
	_, _, err := opt.Optimize(context.Background(), []store.Asset{asset}, testOptConfig())
	require.NoError(t, err)
	firstCalls := transcoder.callCount()

	results, issues, err := opt.Optimize(context.Background(), []store.Asset{asset}, testOptConfig())
	require.NoError(t, err)
	require.Empty(t, issues)
	require.Len(t, results, 1)
	require.Len(t, results[0].Variants, 5)

	// The second pass resolves every variant from the content-addressed
	// cache without touching the transcoder.
	assert.Equal(t, firstCalls, transcoder.callCount())
	assert.Equal(t, int64(5), opt.Stats().VariantsReused)
}

func TestOptimizeChangedQualityRegenerates(t *testing.T) {
	transcoder := &fakeTranscoder{}
	opt := NewOptimizer(transcoder, newFakePublisher(), testCache())

	asset := store.NewAsset("https://img.example.com/a.jpg", store.AssetKindImage, "a")
	_, _, err := opt.Optimize(context.Background(), []store.Asset{asset}, testOptConfig())
	require.NoError(t, err)
	firstCalls := transcoder.callCount()

	cfg := testOptConfig()
	cfg.Quality = 50
	_, _, err = opt.Optimize(context.Background(), []store.Asset{asset}, cfg)
	require.NoError(t, err)

	// Quality participates in the variant key, so nothing is reused
	assert.Equal(t, firstCalls*2, transcoder.callCount())
}

func TestOptimizeIsolatesPerAssetFailures(t *testing.T) {
	good := store.NewAsset("https://img.example.com/good.jpg", store.AssetKindImage, "")
	bad := store.NewAsset("https://img.example.com/bad.jpg", store.AssetKindImage, "")

	transcoder := &fakeTranscoder{failURLs: map[string]bool{bad.URL: true}}
	opt := NewOptimizer(transcoder, newFakePublisher(), testCache())

	results, issues, err := opt.Optimize(context.Background(), []store.Asset{bad, good}, testOptConfig())
	require.NoError(t, err, "per-asset failures are not fatal")

	require.Len(t, results, 1)
	assert.Equal(t, good.ID, results[0].Source.ID)

	require.Len(t, issues, 1)
	assert.Equal(t, bad.ID, issues[0].AssetID)
	assert.Contains(t, issues[0].Message, "source fetch failed")
}

func TestOptimizePublishFailureFailsTheAsset(t *testing.T) {
	publisher := newFakePublisher()
	publisher.failing = true
	opt := NewOptimizer(&fakeTranscoder{}, publisher, testCache())

	asset := store.NewAsset("https://img.example.com/a.jpg", store.AssetKindImage, "")
	results, issues, err := opt.Optimize(context.Background(), []store.Asset{asset}, testOptConfig())
	require.NoError(t, err)
	assert.Empty(t, results)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "publishing variant")
}

func TestOptimizeMeasuresCompression(t *testing.T) {
	opt := NewOptimizer(&fakeTranscoder{}, newFakePublisher(), testCache())

	asset := store.NewAsset("https://img.example.com/a.jpg", store.AssetKindImage, "")
	_, _, err := opt.Optimize(context.Background(), []store.Asset{asset}, testOptConfig())
	require.NoError(t, err)

	stats := opt.Stats()
	assert.Greater(t, stats.SourceBytes, int64(0))
	assert.Less(t, stats.OutputBytes, stats.SourceBytes)
}

func TestOptimizeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := NewOptimizer(&fakeTranscoder{}, newFakePublisher(), testCache())
	asset := store.NewAsset("https://img.example.com/a.jpg", store.AssetKindImage, "")

	_, _, err := opt.Optimize(ctx, []store.Asset{asset}, testOptConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSortIssuesIsStable(t *testing.T) {
	issues := []Issue{{AssetID: "b"}, {AssetID: "a"}, {AssetID: "c"}}
	SortIssues(issues)
	assert.Equal(t, "a", issues[0].AssetID)
	assert.Equal(t, "b", issues[1].AssetID)
	assert.Equal(t, "c", issues[2].AssetID)
}
